// Package home manages the recap home directory layout.
package home

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	// DefaultDirName is the default name for the recap home directory.
	DefaultDirName = ".recap"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the default SQLite database file name.
	DatabaseFileName = "recap.db"

	// lockFileName guards the home directory against concurrent processes.
	lockFileName = "recap.lock"
)

// Dir represents the recap home directory structure.
type Dir struct {
	path string
	lock *flock.Flock
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.recap).
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

// DatabasePath returns the path to the SQLite database.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// LogsDir returns the directory for log files.
func (d *Dir) LogsDir() string {
	return filepath.Join(d.path, "logs")
}

// EnsureExists creates the home directory and subdirectories if they don't
// exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.LogsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// Lock takes an exclusive file lock on the home directory so that only one
// serving process uses it at a time. Returns an error when another process
// already holds the lock.
func (d *Dir) Lock() error {
	if err := d.EnsureExists(); err != nil {
		return err
	}
	d.lock = flock.New(filepath.Join(d.path, lockFileName))
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock home directory: %w", err)
	}
	if !locked {
		return fmt.Errorf("home directory %s is in use by another process", d.path)
	}
	return nil
}

// Unlock releases the home directory lock.
func (d *Dir) Unlock() error {
	if d.lock == nil {
		return nil
	}
	return d.lock.Unlock()
}
