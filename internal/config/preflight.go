package config

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CheckRuntimeDir verifies the runtime directory exists and this process
// can create and remove sockets in it.
func (c *Config) CheckRuntimeDir() error {
	info, err := os.Stat(c.Paths.RuntimeDir)
	if err != nil {
		return fmt.Errorf("runtime dir %s: %w", c.Paths.RuntimeDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("runtime dir %s is not a directory", c.Paths.RuntimeDir)
	}
	if err := unix.Access(c.Paths.RuntimeDir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("runtime dir %s is not writable: %w", c.Paths.RuntimeDir, err)
	}
	return nil
}
