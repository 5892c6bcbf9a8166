// ABOUTME: XDG-style locations for the gateway config, data and admin token files
// ABOUTME: Shared by the server binary and auditctl so both find the same files

package config

import (
	"os"
	"path/filepath"
)

// Path returns the path to the gateway config file.
// Priority: AUDITLOG_CONFIG env var > XDG_CONFIG_HOME/auditlog/gateway.yaml > ~/.config/auditlog/gateway.yaml
func Path() string {
	if envPath := os.Getenv("AUDITLOG_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join(configDir(), "gateway.yaml")
}

// TokenPath returns where an issued admin token is saved for CLI use.
func TokenPath() string {
	return filepath.Join(filepath.Dir(Path()), "token")
}

// DataPath returns the auditlog data directory.
// Priority: XDG_DATA_HOME/auditlog > ~/.local/share/auditlog
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "auditlog")
}

func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, "auditlog")
}
