package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeThresholds()
	if err := c.normalizeHealth(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeMonitor()
	c.normalizeMetrics()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("RUNWATCH_LOG_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.LogDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if strings.TrimSpace(c.Paths.ResultDir) == "" {
		c.Paths.ResultDir = defaultResultDir
	}
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ResultDir, err = expandPath(c.Paths.ResultDir); err != nil {
		return fmt.Errorf("paths.result_dir: %w", err)
	}
	c.Paths.HistoryDB = strings.TrimSpace(c.Paths.HistoryDB)
	if c.Paths.HistoryDB != "" {
		if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
			return fmt.Errorf("paths.history_db: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Floor = normalizeLevel(c.Logging.Floor, defaultLogFloor)
	c.Logging.ConsoleLevel = normalizeLevel(c.Logging.ConsoleLevel, defaultConsoleLevel)
	c.Logging.FileLevel = normalizeLevel(c.Logging.FileLevel, defaultFileLevel)
	c.Logging.JSONLevel = normalizeLevel(c.Logging.JSONLevel, defaultJSONLevel)
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.CompressAfterDays < 0 {
		c.Logging.CompressAfterDays = 0
	}
}

func normalizeLevel(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "":
		return fallback
	case "warn":
		return "warning"
	}
	return value
}

func (c *Config) normalizeThresholds() {
	if c.Thresholds.DefaultSeconds == 0 {
		c.Thresholds.DefaultSeconds = defaultThresholdSeconds
	}
	if c.Thresholds.Operations == nil {
		c.Thresholds.Operations = map[string]float64{}
	}
	cleaned := make(map[string]float64, len(c.Thresholds.Operations))
	for name, seconds := range c.Thresholds.Operations {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cleaned[trimmed] = seconds
		}
	}
	c.Thresholds.Operations = cleaned
}

func (c *Config) normalizeHealth() error {
	c.Health.StoragePath = strings.TrimSpace(c.Health.StoragePath)
	if c.Health.StoragePath == "" {
		c.Health.StoragePath = defaultStoragePath
	}
	var err error
	if c.Health.StoragePath, err = expandPath(c.Health.StoragePath); err != nil {
		return fmt.Errorf("health.storage_path: %w", err)
	}
	if c.Health.ProbeTimeoutSeconds <= 0 {
		c.Health.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.CLI = strings.TrimSpace(c.Storage.CLI)
	if c.Storage.CLI == "" {
		c.Storage.CLI = defaultStorageCLI
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		if value, ok := os.LookupEnv("AWS_DEFAULT_REGION"); ok && strings.TrimSpace(value) != "" {
			c.Storage.Region = strings.TrimSpace(value)
		} else {
			c.Storage.Region = defaultStorageRegion
		}
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		user := strings.TrimSpace(os.Getenv("USER"))
		if user == "" {
			user = "workflow"
		}
		c.Storage.Bucket = "ai-devops-results-" + strings.ToLower(user)
	}
	if c.Storage.CommandTimeoutSeconds <= 0 {
		c.Storage.CommandTimeoutSeconds = defaultCommandTimeout
	}
}

func (c *Config) normalizeMonitor() {
	c.Monitor.WorkflowName = strings.TrimSpace(c.Monitor.WorkflowName)
	if c.Monitor.WorkflowName == "" {
		c.Monitor.WorkflowName = defaultWorkflowName
	}
	kinds := make([]string, 0, len(c.Monitor.CriticalKinds))
	seen := make(map[string]struct{}, len(c.Monitor.CriticalKinds))
	for _, kind := range c.Monitor.CriticalKinds {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		if _, exists := seen[kind]; exists {
			continue
		}
		seen[kind] = struct{}{}
		kinds = append(kinds, kind)
	}
	c.Monitor.CriticalKinds = kinds
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Textfile = strings.TrimSpace(c.Metrics.Textfile)
	c.Metrics.Namespace = strings.TrimSpace(c.Metrics.Namespace)
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaultMetricsNamespace
	}
}
