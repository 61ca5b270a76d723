package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"runwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory. Storage
// points at a fixed test bucket so nothing depends on $USER.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ResultDir = filepath.Join(base, "results")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "state", "history.db")
	cfgVal.Storage.Bucket = "runwatch-test-results"
	cfgVal.Health.StoragePath = base
	cfgVal.Health.ProbeTimeoutSeconds = 2
	cfgVal.Storage.CommandTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithWorkflowName overrides the run name used for log files and summaries.
func WithWorkflowName(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Monitor.WorkflowName = name
	}
}

// WithThreshold sets one operation budget in seconds.
func WithThreshold(operation string, seconds float64) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Thresholds.Operations == nil {
			b.cfg.Thresholds.Operations = map[string]float64{}
		}
		b.cfg.Thresholds.Operations[operation] = seconds
	}
}

// WithStubbedBinaries writes stub executables that exit 0 for the provided
// names and prepends them to PATH. If names is empty, the aws CLI is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"aws"}
		}
		for _, name := range names {
			WriteStub(b.t, b.binDir(), name, "exit 0")
		}
		b.prependPath()
	}
}

// WithStubScript installs one stub whose body is the given shell snippet,
// for example `echo "denied" >&2; exit 255`.
func WithStubScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		WriteStub(b.t, b.binDir(), name, body)
		b.prependPath()
	}
}

func (b *configBuilder) binDir() string {
	dir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	return dir
}

func (b *configBuilder) prependPath() {
	dir := b.binDir()
	current := os.Getenv("PATH")
	if filepath.SplitList(current)[0] == dir {
		return
	}
	setter, ok := b.t.(interface{ Setenv(key, value string) })
	if !ok {
		b.t.Fatalf("stub binaries need a *testing.T")
	}
	setter.Setenv("PATH", dir+string(os.PathListSeparator)+current)
}

// WriteStub writes an executable /bin/sh script named name into dir.
func WriteStub(t testing.TB, dir, name, body string) string {
	t.Helper()
	target := filepath.Join(dir, name)
	script := []byte("#!/bin/sh\n" + body + "\n")
	if err := os.WriteFile(target, script, 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
