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
	c.normalizeServer()
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Sync.DestinationDir) == "" {
		c.Sync.DestinationDir = defaultDestinationDir
	}
	if c.Sync.DestinationDir, err = expandPath(c.Sync.DestinationDir); err != nil {
		return fmt.Errorf("sync.destination_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	c.Server.APIKey = strings.TrimSpace(c.Server.APIKey)
	if c.Server.APIKey == "" {
		c.Server.APIKey = strings.TrimSpace(os.Getenv("PHOTOSYNC_API_KEY"))
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = defaultConcurrency
	}
	if c.Sync.RateLimitRequests == 0 {
		c.Sync.RateLimitRequests = defaultRateLimitRequests
	}
	if c.Sync.RateLimitWindowMS == 0 {
		c.Sync.RateLimitWindowMS = defaultRateLimitWindowMS
	}
	if c.Sync.MinFreeSpaceMB == 0 {
		c.Sync.MinFreeSpaceMB = defaultMinFreeSpaceMB
	}
	if c.Sync.LedgerRetentionDays == 0 {
		c.Sync.LedgerRetentionDays = defaultLedgerRetentionDays
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
