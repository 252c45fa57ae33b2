// Package config resolves file locations for the CLI.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// defaultDatabasePath is where expenses are recorded when database.path
// is not configured.
const defaultDatabasePath = "~/.local/share/pennyflow/pennyflow.db"

// DatabasePath resolves the configured expense database location,
// falling back to the default under the user's home directory. A
// leading ~ and $VAR environment references are expanded.
func DatabasePath(configured string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = defaultDatabasePath
	}
	return expand(path)
}

func expand(path string) string {
	switch {
	case path == "~":
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return os.ExpandEnv(path)
}
