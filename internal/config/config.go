package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and database locations.
type Paths struct {
	LogDir    string `toml:"log_dir"`
	ResultDir string `toml:"result_dir"`
	HistoryDB string `toml:"history_db"`
}

// Logging contains per-sink levels and day-file housekeeping.
type Logging struct {
	// Floor is the emitter-wide minimum; records below it are never built.
	Floor             string `toml:"floor"`
	ConsoleLevel      string `toml:"console_level"`
	FileLevel         string `toml:"file_level"`
	JSONLevel         string `toml:"json_level"`
	RetentionDays     int    `toml:"retention_days"`
	CompressAfterDays int    `toml:"compress_after_days"`
}

// Thresholds is the per-operation duration budget table in seconds.
type Thresholds struct {
	DefaultSeconds float64            `toml:"default_seconds"`
	Operations     map[string]float64 `toml:"operations"`
}

// Health contains probe settings.
type Health struct {
	StoragePath         string  `toml:"storage_path"`
	MinFreePercent      float64 `toml:"min_free_percent"`
	ProbeTimeoutSeconds int     `toml:"probe_timeout_seconds"`
}

// Storage contains remote object storage settings for the aws CLI wrapper.
type Storage struct {
	Bucket                string `toml:"bucket"`
	Region                string `toml:"region"`
	CLI                   string `toml:"cli"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds"`
}

// Monitor contains run identity defaults and escalation rules.
type Monitor struct {
	WorkflowName  string   `toml:"workflow_name"`
	CriticalKinds []string `toml:"critical_kinds"`
}

// Metrics contains local metric export settings.
type Metrics struct {
	// Textfile, when set, receives a Prometheus textfile export next to each
	// summary. Relative names resolve inside the result directory.
	Textfile  string `toml:"textfile"`
	Namespace string `toml:"namespace"`
}

// Config encapsulates all configuration values for runwatch.
//
// Configuration sections by subsystem:
//   - Paths: log, result and history locations
//   - Logging: sink levels, retention and compression
//   - Thresholds: operation duration budgets
//   - Health: probe target and timeouts
//   - Storage: aws CLI bucket, region and timeouts
//   - Monitor: workflow name and critical error kinds
//   - Metrics: Prometheus textfile export
type Config struct {
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	Thresholds Thresholds `toml:"thresholds"`
	Health     Health     `toml:"health"`
	Storage    Storage    `toml:"storage"`
	Monitor    Monitor    `toml:"monitor"`
	Metrics    Metrics    `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log and result directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.ResultDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ProbeTimeout returns the health probe bound as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Health.ProbeTimeoutSeconds) * time.Second
}

// CommandTimeout returns the storage CLI bound as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Storage.CommandTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
