package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order; earlier files win because godotenv.Load never
// overrides variables that are already set.
var envFiles = []string{".env.local", ".env"}

// loadEnvFiles loads .env.local and .env from dir into the process
// environment. Variables already present in the environment take precedence.
func loadEnvFiles(dir string) {
	for _, name := range envFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("Failed to load environment file", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("Loaded environment file", slog.String("path", path))
	}
}
