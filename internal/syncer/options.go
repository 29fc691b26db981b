package syncer

import (
	"photosync/internal/config"
)

// Options selects per-run sync behavior, layered over the configuration by
// CLI flags.
type Options struct {
	Force            bool
	ResumeFailedOnly bool
	DryRun           bool
	Concurrency      int
	MaxRetries       int
	SizeLimitBytes   int64 // 0 means unlimited
	Verbose          bool
}

// OptionsFromConfig seeds run options from configuration defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Concurrency:    cfg.Sync.Concurrency,
		MaxRetries:     cfg.Sync.MaxRetries,
		SizeLimitBytes: cfg.Sync.SizeLimitMB * 1024 * 1024,
	}
}

// normalize clamps option values to their hard bounds.
func (o *Options) normalize() {
	if o.Concurrency < config.MinConcurrency {
		o.Concurrency = config.MinConcurrency
	}
	if o.Concurrency > config.MaxConcurrency {
		o.Concurrency = config.MaxConcurrency
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 1
	}
	if o.MaxRetries > config.MaxRetriesCeiling {
		o.MaxRetries = config.MaxRetriesCeiling
	}
	if o.SizeLimitBytes < 0 {
		o.SizeLimitBytes = 0
	}
}
