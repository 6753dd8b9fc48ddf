package domain

import "time"

// History statuses.
const (
	HistoryStatusPending   = "pending"
	HistoryStatusGenerated = "generated"
	HistoryStatusSuccess   = "success"
	HistoryStatusFailed    = "failed"
)

// HistoryRecord captures one executed action against a repository.
type HistoryRecord struct {
	ID          string
	Username    string
	Owner       string
	Repo        string
	Command     string
	Output      string
	Status      string
	SealedToken []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HistoryUpdate carries the mutable fields of a record. Nil fields are left untouched.
type HistoryUpdate struct {
	ID      string
	Command *string
	Output  *string
	Status  *string
}

// HistoryFilter narrows history listings.
type HistoryFilter struct {
	Owner string
	Repo  string
	Limit int
}

// ValidHistoryStatus reports whether status is one of the known values.
func ValidHistoryStatus(status string) bool {
	switch status {
	case HistoryStatusPending, HistoryStatusGenerated, HistoryStatusSuccess, HistoryStatusFailed:
		return true
	}
	return false
}
