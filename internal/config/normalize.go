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
	c.normalizeChannels()
	c.normalizeLogging()
	if c.Journal.RetentionDays < 0 {
		c.Journal.RetentionDays = 0
	}
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("PIPELINK_RUNTIME_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.RuntimeDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaultRuntimeDir()
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}

	var err error
	if c.Paths.RuntimeDir, err = expandPath(c.Paths.RuntimeDir); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeChannels() {
	c.Channels.Control = strings.TrimSpace(c.Channels.Control)
	if c.Channels.Control == "" {
		c.Channels.Control = defaultControlIdentity
	}
	c.Channels.SysLog = strings.TrimSpace(c.Channels.SysLog)
	if c.Channels.SysLog == "" {
		c.Channels.SysLog = defaultSysLogIdentity
	}
	if c.Channels.PollIntervalMS == 0 {
		c.Channels.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Channels.BackoffMaxSeconds == 0 {
		c.Channels.BackoffMaxSeconds = defaultBackoffMaxSeconds
	}
	if c.Channels.RequestTimeoutSeconds == 0 {
		c.Channels.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Channels.ConnectTimeoutSeconds == 0 {
		c.Channels.ConnectTimeoutSeconds = defaultConnectTimeoutSeconds
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
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.StreamCapacity <= 0 {
		c.Logging.StreamCapacity = defaultStreamCapacity
	}
}
