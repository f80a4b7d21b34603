package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains filesystem locations.
type Paths struct {
	RuntimeDir string `toml:"runtime_dir"`
	LogDir     string `toml:"log_dir"`
	DataDir    string `toml:"data_dir"`
}

// Channels contains channel identities and timing.
type Channels struct {
	Control               string `toml:"control"`
	SysLog                string `toml:"syslog"`
	PollIntervalMS        int    `toml:"poll_interval_ms"`
	BackoffMaxSeconds     int    `toml:"backoff_max_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	// QueueLimit bounds each channel queue; zero leaves them unbounded.
	QueueLimit int `toml:"queue_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string `toml:"format"`
	Level          string `toml:"level"`
	RetentionDays  int    `toml:"retention_days"`
	StreamCapacity int    `toml:"stream_capacity"`
}

// Journal controls the control-channel message journal.
type Journal struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Config encapsulates all configuration values for pipelink.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Channels Channels `toml:"channels"`
	Logging  Logging  `toml:"logging"`
	Journal  Journal  `toml:"journal"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(filepath.Join("~/.config/pipelink", configFileName))
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error: defaults apply and exists is false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the service writes to.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.RuntimeDir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.RuntimeDir, err)
	}
	for _, dir := range []string{c.Paths.LogDir, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval is how often supervisors check for a live channel.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Channels.PollIntervalMS) * time.Millisecond
}

// BackoffMax caps the delay between failed listen attempts.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Channels.BackoffMaxSeconds) * time.Second
}

// RequestTimeout bounds one management call.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Channels.RequestTimeoutSeconds) * time.Second
}

// ConnectTimeout bounds how long a client waits to reach the service.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Channels.ConnectTimeoutSeconds) * time.Second
}

// LogFilePath is the JSON log written by the service.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, logFileName)
}

// JournalPath is the SQLite message journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.DataDir, journalFileName)
}

// InstanceLockPath guards against two services sharing a runtime dir.
func (c *Config) InstanceLockPath() string {
	return filepath.Join(c.Paths.RuntimeDir, instanceLockName)
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// defaultRuntimeDir prefers XDG_RUNTIME_DIR, which is per-user and cleared
// at logout, and falls back to a uid-scoped directory under the temp dir.
func defaultRuntimeDir() string {
	if base, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, defaultRuntimeSubdir)
	}
	return filepath.Join(os.TempDir(), defaultRuntimeSubdir+"-"+strconv.Itoa(os.Getuid()))
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
