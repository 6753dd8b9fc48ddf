package repository

import (
	"context"

	"github.com/splax/stackgen/internal/domain"
)

// HistoryRepository persists history records.
type HistoryRepository interface {
	CreateHistory(ctx context.Context, record *domain.HistoryRecord) error
	GetHistory(ctx context.Context, id string) (*domain.HistoryRecord, error)
	ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error)
	UpdateHistory(ctx context.Context, update domain.HistoryUpdate) (*domain.HistoryRecord, error)
	DeleteHistory(ctx context.Context, id string) (*domain.HistoryRecord, error)
}
