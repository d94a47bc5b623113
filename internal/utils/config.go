package utils

import (
	"os"
	"path/filepath"
)

// GetProjectRoot returns the closest directory above the working directory that holds a go.mod.
func GetProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "." // fallback
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached root
		}
		dir = parent
	}
	return "." // fallback
}

// GetDataDir returns ~/.steamguard, falling back to the project root when there is no home directory.
func GetDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(GetProjectRoot(), ".steamguard")
	}
	return filepath.Join(home, ".steamguard")
}

// GetAccountsDir holds one secrets file per account.
func GetAccountsDir() string {
	return filepath.Join(GetDataDir(), "accounts")
}
