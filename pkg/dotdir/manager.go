// Package dotdir manages the .escrowd/ and ~/.escrowd directories.
//
// The directory holds config.toml, the merchant fact logs under facts/, the
// cached merchant search index, the serve log, and the pending settlement
// ledger used to resume orders that only partially settled.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the escrowd directory.
	dirName = ".escrowd"

	factsDirName = "facts"
	logFileName  = "escrowd.log"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .escrowd/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.escrowd/ dir
//  3. Home ~/.escrowd/ dir, created if missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating escrowd directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// FactsDir returns the directory holding the per-merchant fact logs,
// creating it when needed.
func (m *Manager) FactsDir(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(target, factsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating facts directory %s: %w", dir, err)
	}

	return dir, nil
}

// OpenLog opens escrowd.log for appending, creating it when needed.
func (m *Manager) OpenLog(overrideDir string) (*os.File, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, logFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return f, nil
}

// localDirExists checks whether a .escrowd/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
