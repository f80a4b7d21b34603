package config

const (
	defaultRuntimeSubdir         = "pipelink"
	defaultLogDir                = "~/.local/state/pipelink/logs"
	defaultDataDir               = "~/.local/share/pipelink"
	defaultControlIdentity       = "control"
	defaultSysLogIdentity        = "syslog"
	defaultPollIntervalMS        = 500
	defaultBackoffMaxSeconds     = 30
	defaultRequestTimeoutSeconds = 30
	defaultConnectTimeoutSeconds = 5
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 14
	defaultStreamCapacity        = 512
	defaultJournalRetentionDays  = 7

	configFileName    = "config.toml"
	projectConfigName = "pipelink.toml"
	logFileName       = "pipelink.log"
	journalFileName   = "journal.db"
	instanceLockName  = "pipelink-serve.lock"
)

// Default returns a Config populated with repository defaults. Paths are
// not yet expanded; Load does that.
func Default() Config {
	return Config{
		Paths: Paths{
			RuntimeDir: defaultRuntimeDir(),
			LogDir:     defaultLogDir,
			DataDir:    defaultDataDir,
		},
		Channels: Channels{
			Control:               defaultControlIdentity,
			SysLog:                defaultSysLogIdentity,
			PollIntervalMS:        defaultPollIntervalMS,
			BackoffMaxSeconds:     defaultBackoffMaxSeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
		},
		Logging: Logging{
			Format:         defaultLogFormat,
			Level:          defaultLogLevel,
			RetentionDays:  defaultLogRetentionDays,
			StreamCapacity: defaultStreamCapacity,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetentionDays,
		},
	}
}
