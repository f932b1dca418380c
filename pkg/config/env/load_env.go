package env

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Load reads environment variables from a .env file so store and tracker
// credentials stay out of config.yaml. ENV_PATH overrides the default
// location. A missing file is not an error: the variables may already be set
// in the real environment.
func Load(defaultPath string) {
	envPath := defaultPath
	if v := os.Getenv("ENV_PATH"); v != "" {
		envPath = v
	}

	if err := godotenv.Load(envPath); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not load env file", "path", envPath, "error", err)
		}
		return
	}
	slog.Debug("environment file loaded", "path", envPath)
}
