package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/marmos91/lockfs/internal/logger"
)

// WatchLogging watches configPath and calls apply with the logging section
// every time the file changes and still validates. Only logging is reloaded;
// every other section requires a restart.
func WatchLogging(configPath string, apply func(LoggingConfig)) {
	v := viper.New()
	setupViper(v, configPath)
	if _, err := readConfigFile(v); err != nil {
		logger.Warn("Config watch disabled", logger.Err(err))
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		var cfg Config
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			logger.Warn("Ignoring unreadable config change", logger.KeyPath, e.Name, logger.Err(err))
			return
		}
		ApplyDefaults(&cfg)
		if err := validate.Struct(&cfg.Logging); err != nil {
			logger.Warn("Ignoring invalid logging config", logger.KeyPath, e.Name, logger.Err(formatValidationError(err)))
			return
		}

		logger.Info("Config changed, reloading logging", logger.KeyPath, e.Name,
			"level", strings.ToUpper(cfg.Logging.Level), "format", cfg.Logging.Format)
		apply(cfg.Logging)
	})
	v.WatchConfig()
}
