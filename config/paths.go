package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DataDirectory returns the platform-appropriate directory for the agent's
// persistent data (config file, encryption key, history database),
// creating it if absent.
func DataDirectory() (string, error) {
	var dir string

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		dir = filepath.Join(os.Getenv("ProgramData"), "CleverPrint", "agent")
	case "darwin":
		dir = filepath.Join(homeDir, "Library", "Application Support", "CleverPrint", "agent")
	default:
		dir = filepath.Join(homeDir, ".local", "share", "cleverprint", "agent")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
