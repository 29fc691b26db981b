package config

const (
	defaultDestinationDir      = "~/photosync"
	defaultStateDir            = "~/.local/share/photosync"
	defaultLogDir              = "~/.local/share/photosync/logs"
	defaultRequestTimeout      = 60
	defaultConcurrency         = 5
	defaultMaxRetries          = 3
	defaultRateLimitRequests   = 10
	defaultRateLimitWindowMS   = 1000
	defaultMinFreeSpaceMB      = 512
	defaultLedgerRetentionDays = 90
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"

	// Hard bounds enforced by Validate.
	MinConcurrency    = 1
	MaxConcurrency    = 50
	MaxRetriesCeiling = 10
	MinRequestTimeout = 5
	MaxRequestTimeout = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			RequestTimeout: defaultRequestTimeout,
		},
		Sync: Sync{
			DestinationDir:      defaultDestinationDir,
			Concurrency:         defaultConcurrency,
			MaxRetries:          defaultMaxRetries,
			RateLimitRequests:   defaultRateLimitRequests,
			RateLimitWindowMS:   defaultRateLimitWindowMS,
			MinFreeSpaceMB:      defaultMinFreeSpaceMB,
			LedgerRetentionDays: defaultLedgerRetentionDays,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
