package config

import (
	"errors"
	"fmt"
	"strings"
)

// maxSocketPath leaves room for the ".sock" suffix within sun_path.
const maxSocketPath = 107

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateChannels(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateChannels() error {
	for key, identity := range map[string]string{
		"channels.control": c.Channels.Control,
		"channels.syslog":  c.Channels.SysLog,
	} {
		if err := validateIdentity(identity); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if n := len(c.Paths.RuntimeDir) + 1 + len(identity) + len(".sock"); n > maxSocketPath {
			return fmt.Errorf("%s: socket path would be %d bytes, limit is %d; shorten paths.runtime_dir", key, n, maxSocketPath)
		}
	}
	if c.Channels.Control == c.Channels.SysLog {
		return errors.New("channels.control and channels.syslog must differ")
	}
	if c.Channels.PollIntervalMS < 10 {
		return errors.New("channels.poll_interval_ms must be at least 10")
	}
	if c.Channels.BackoffMaxSeconds < 0 {
		return errors.New("channels.backoff_max_seconds must not be negative")
	}
	if c.Channels.RequestTimeoutSeconds < 0 {
		return errors.New("channels.request_timeout_seconds must not be negative")
	}
	if c.Channels.ConnectTimeoutSeconds < 0 {
		return errors.New("channels.connect_timeout_seconds must not be negative")
	}
	if c.Channels.QueueLimit < 0 {
		return errors.New("channels.queue_limit must not be negative")
	}
	return nil
}

// validateIdentity mirrors the transport rules without importing it.
func validateIdentity(identity string) error {
	switch {
	case identity == "":
		return errors.New("identity must not be empty")
	case strings.ContainsAny(identity, "/\\\x00"), identity == ".", identity == "..":
		return fmt.Errorf("identity %q must not contain path separators", identity)
	case strings.TrimSpace(identity) != identity:
		return fmt.Errorf("identity %q must not have surrounding whitespace", identity)
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
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
