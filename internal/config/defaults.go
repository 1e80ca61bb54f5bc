package config

const (
	defaultStateDir       = "~/.local/share/adowatch"
	defaultLogDir         = "~/.local/share/adowatch/logs"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultLogMaxSizeMB   = 20
	defaultLogMaxBackups  = 5
	defaultPollInterval   = 60
	defaultWorkers        = 4
	defaultRequestTimeout = 30

	// DefaultJobTimeout is the number of seconds a job may run before it is
	// killed when the job config does not set one.
	DefaultJobTimeout = 120
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		DevOps: DevOps{
			RequestTimeout: defaultRequestTimeout,
		},
		Monitor: Monitor{
			PollInterval: defaultPollInterval,
			Workers:      defaultWorkers,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
		},
	}
}
