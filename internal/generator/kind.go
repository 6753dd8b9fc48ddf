package generator

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a supported artifact template.
type Kind string

// Supported artifact kinds.
const (
	KindDockerfile    Kind = "dockerfile"
	KindDockerCompose Kind = "docker-compose"
	KindPrisma        Kind = "prisma"
	KindSequelize     Kind = "sequelize"
)

// ErrUnsupportedKind is returned for artifact kinds without a template.
var ErrUnsupportedKind = errors.New("unsupported artifact kind")

// Kinds lists every supported kind in presentation order.
func Kinds() []Kind {
	return []Kind{KindDockerfile, KindDockerCompose, KindPrisma, KindSequelize}
}

// ParseKind normalizes and validates a kind string.
func ParseKind(value string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, k := range Kinds() {
		if k == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, value)
}

// ValidationError reports an option value that cannot be rendered.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
