package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/photosync/config.toml"
		}
		return fmt.Errorf("server.url is required. Edit %s (create with 'photosync config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Server.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("server.url %q is not a valid URL", c.Server.URL)
	}
	if c.Server.APIKey == "" {
		return errors.New("server.api_key is required. Set it in the config file or via PHOTOSYNC_API_KEY")
	}
	if c.Server.RequestTimeout < MinRequestTimeout || c.Server.RequestTimeout > MaxRequestTimeout {
		return fmt.Errorf("server.request_timeout must be between %d and %d seconds", MinRequestTimeout, MaxRequestTimeout)
	}
	return nil
}

func (c *Config) validateSync() error {
	if strings.TrimSpace(c.Sync.DestinationDir) == "" {
		return errors.New("sync.destination_dir must be set")
	}
	if c.Sync.Concurrency < MinConcurrency || c.Sync.Concurrency > MaxConcurrency {
		return fmt.Errorf("sync.concurrency must be between %d and %d", MinConcurrency, MaxConcurrency)
	}
	if c.Sync.MaxRetries < 1 || c.Sync.MaxRetries > MaxRetriesCeiling {
		return fmt.Errorf("sync.max_retries must be between 1 and %d", MaxRetriesCeiling)
	}
	if c.Sync.SizeLimitMB < 0 {
		return errors.New("sync.size_limit_mb must not be negative")
	}
	if c.Sync.RateLimitRequests < 1 {
		return errors.New("sync.rate_limit_requests must be at least 1")
	}
	if c.Sync.RateLimitWindowMS < 1 {
		return errors.New("sync.rate_limit_window_ms must be at least 1")
	}
	if c.Sync.LedgerRetentionDays < 1 {
		return errors.New("sync.ledger_retention_days must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
