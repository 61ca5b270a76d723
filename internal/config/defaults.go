package config

import "maps"

const (
	defaultConfigPath          = "~/.config/runwatch/config.toml"
	projectConfigName          = "runwatch.toml"
	defaultLogDir              = "logs"
	defaultResultDir           = "results"
	defaultHistoryDB           = "~/.local/share/runwatch/history.db"
	defaultLogFloor            = "debug"
	defaultConsoleLevel        = "info"
	defaultFileLevel           = "debug"
	defaultJSONLevel           = "info"
	defaultLogRetentionDays    = 30
	defaultCompressAfterDays   = 2
	defaultThresholdSeconds    = 120
	defaultStoragePath         = "/"
	defaultMinFreePercent      = 10
	defaultProbeTimeoutSeconds = 10
	defaultStorageCLI          = "aws"
	defaultStorageRegion       = "us-east-1"
	defaultCommandTimeout      = 300
	defaultWorkflowName        = "ollama-workflow"
	defaultMetricsNamespace    = "runwatch"
)

var defaultOperationThresholds = map[string]float64{
	"ollama_query":   60,
	"model_download": 300,
	"test_execution": 30,
	"s3_upload":      60,
}

var defaultCriticalKinds = []string{
	"ollama_service_down",
	"model_download_failed",
	"service unreachable",
	"dependency download failed",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:    defaultLogDir,
			ResultDir: defaultResultDir,
			HistoryDB: defaultHistoryDB,
		},
		Logging: Logging{
			Floor:             defaultLogFloor,
			ConsoleLevel:      defaultConsoleLevel,
			FileLevel:         defaultFileLevel,
			JSONLevel:         defaultJSONLevel,
			RetentionDays:     defaultLogRetentionDays,
			CompressAfterDays: defaultCompressAfterDays,
		},
		Thresholds: Thresholds{
			DefaultSeconds: defaultThresholdSeconds,
			Operations:     maps.Clone(defaultOperationThresholds),
		},
		Health: Health{
			StoragePath:         defaultStoragePath,
			MinFreePercent:      defaultMinFreePercent,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
		},
		Storage: Storage{
			CLI:                   defaultStorageCLI,
			CommandTimeoutSeconds: defaultCommandTimeout,
		},
		Monitor: Monitor{
			WorkflowName:  defaultWorkflowName,
			CriticalKinds: append([]string(nil), defaultCriticalKinds...),
		},
		Metrics: Metrics{
			Namespace: defaultMetricsNamespace,
		},
	}
}
