package testsupport

import (
	"path/filepath"
	"testing"

	"pipelink/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The runtime dir is kept short so socket paths fit in sun_path.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RuntimeDir = RuntimeDir(t)
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Channels.PollIntervalMS = 20
	cfgVal.Channels.BackoffMaxSeconds = 1
	cfgVal.Channels.RequestTimeoutSeconds = 5
	cfgVal.Channels.ConnectTimeoutSeconds = 2

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

// WithIdentities overrides the control and syslog channel identities.
func WithIdentities(control, syslog string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channels.Control = control
		b.cfg.Channels.SysLog = syslog
	}
}

// WithJournal toggles the message journal.
func WithJournal(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = enabled
	}
}

// WithQueueLimit bounds channel queues.
func WithQueueLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channels.QueueLimit = limit
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
