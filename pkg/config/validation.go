package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if f := cfg.Server.Fault; f.DropRequest+f.DropReply > 1 {
		return fmt.Errorf("server.fault: drop_request + drop_reply must not exceed 1 (got %.2f)", f.DropRequest+f.DropReply)
	}

	switch cfg.Storage.Type {
	case StorageFilesystem:
		if cfg.Storage.Filesystem.Path == "" {
			return errors.New("storage.filesystem.path is required")
		}
	case StorageBadger:
		if cfg.Storage.Badger.Path == "" && !cfg.Storage.Badger.InMemory {
			return errors.New("storage.badger.path is required unless in_memory is set")
		}
	case StorageS3:
		if cfg.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required")
		}
		if (cfg.Storage.S3.AccessKeyID == "") != (cfg.Storage.S3.SecretAccessKey == "") {
			return errors.New("storage.s3: access_key_id and secret_access_key must be set together")
		}
	}

	if cfg.Metrics.Enabled && cfg.API.IsEnabled() && cfg.Metrics.Port == cfg.API.Port {
		return fmt.Errorf("metrics.port and api.port are both %d", cfg.API.Port)
	}
	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
