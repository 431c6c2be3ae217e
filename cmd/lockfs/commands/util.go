package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig loads the --config file, the default file when it exists, or
// built-in defaults. The returned path is empty when no file was used.
func loadConfig() (*config.Config, string, error) {
	path := GetConfigFile()
	if path == "" && config.DefaultConfigExists() {
		path = config.GetDefaultConfigPath()
	}
	if path == "" {
		cfg, err := config.Load("")
		return cfg, "", err
	}
	cfg, err := config.MustLoad(path)
	return cfg, path, err
}

// GetDefaultStateDir returns $XDG_STATE_HOME/lockfs or ~/.local/state/lockfs.
func GetDefaultStateDir() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "lockfs")
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, "lockfs")
}

// GetDefaultPidFile returns the default PID file path.
func GetDefaultPidFile() string {
	return filepath.Join(GetDefaultStateDir(), "lockfs.pid")
}

// GetDefaultLogFile returns the default log file path for daemon mode.
func GetDefaultLogFile() string {
	return filepath.Join(GetDefaultStateDir(), "lockfs.log")
}
