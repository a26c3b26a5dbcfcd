package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the pdfduo home directory.
	DefaultDirName = ".pdfduo"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// LedgerFileName is the cross-run failure ledger file name.
	LedgerFileName = "fail_log.txt"

	// OutcomeLogFileName is the append-only batch outcome log.
	OutcomeLogFileName = "batch_log.csv"
)

// Dir represents the pdfduo home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.pdfduo).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// LedgerPath returns the path to the failure ledger file.
func (d *Dir) LedgerPath() string {
	return filepath.Join(d.path, LedgerFileName)
}

// OutcomeLogPath returns the default path to the outcome CSV log.
func (d *Dir) OutcomeLogPath() string {
	return filepath.Join(d.path, OutcomeLogFileName)
}

// EnsureExists creates the home directory if it doesn't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	return nil
}
