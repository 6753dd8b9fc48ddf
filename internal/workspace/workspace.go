package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Manager hands out per-attempt working directories under a common root.
type Manager struct {
	root string
}

// New ensures the workspace root exists and is accessible.
func New(root string) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: abs}, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Lease is a directory owned by exactly one publish attempt.
type Lease struct {
	Dir string
	m   *Manager
}

// Acquire creates a fresh, uniquely named directory. It never reuses an
// existing path.
func (m *Manager) Acquire() (*Lease, error) {
	dir := filepath.Join(m.root, "publish-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Lease{Dir: dir, m: m}, nil
}

// Release removes the leased directory and everything in it.
func (l *Lease) Release() error {
	if l == nil || l.Dir == "" {
		return nil
	}
	// Only remove directories within the configured root.
	rel, err := filepath.Rel(l.m.root, l.Dir)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %s outside workspace root", l.Dir)
	}
	return os.RemoveAll(l.Dir)
}
