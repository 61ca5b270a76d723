package config

import (
	"errors"
	"fmt"
)

var validLevels = map[string]struct{}{
	"debug":   {},
	"info":    {},
	"warning": {},
	"error":   {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateThresholds(); err != nil {
		return err
	}
	if err := c.validateHealth(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	levels := []struct {
		key   string
		value string
	}{
		{"logging.floor", c.Logging.Floor},
		{"logging.console_level", c.Logging.ConsoleLevel},
		{"logging.file_level", c.Logging.FileLevel},
		{"logging.json_level", c.Logging.JSONLevel},
	}
	for _, lvl := range levels {
		if _, ok := validLevels[lvl.value]; !ok {
			return fmt.Errorf("%s must be one of debug, info, warning, error (got %q)", lvl.key, lvl.value)
		}
	}
	if c.Logging.CompressAfterDays > 0 && c.Logging.RetentionDays > 0 &&
		c.Logging.CompressAfterDays >= c.Logging.RetentionDays {
		return errors.New("logging.compress_after_days must be less than logging.retention_days")
	}
	return nil
}

func (c *Config) validateThresholds() error {
	if c.Thresholds.DefaultSeconds < 0 {
		return errors.New("thresholds.default_seconds must be positive")
	}
	for name, seconds := range c.Thresholds.Operations {
		if seconds <= 0 {
			return fmt.Errorf("thresholds.operations.%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateHealth() error {
	if c.Health.MinFreePercent < 0 || c.Health.MinFreePercent > 100 {
		return errors.New("health.min_free_percent must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set")
	}
	return nil
}
