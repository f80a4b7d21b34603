// Package daemonctl starts and stops a background pipelink service.
//
// Whether a service is running is decided by the instance lock in the
// runtime directory, not by dialing the control channel: the control
// identity accepts one peer at a time, so a busy channel says nothing about
// liveness.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"pipelink/internal/client"
	"pipelink/internal/config"
	"pipelink/internal/models"
)

// ErrServiceNotRunning indicates no service holds the instance lock.
var ErrServiceNotRunning = errors.New("service not running")

const pollInterval = 100 * time.Millisecond

// LaunchOptions controls service process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	RuntimeDir string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures service start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures service stop outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// Running reports whether a service holds the instance lock for cfg.
func Running(cfg *config.Config) (bool, error) {
	lock := flock.New(cfg.InstanceLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("probe instance lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	_ = lock.Unlock()
	return false, nil
}

// Launch starts a detached `pipelink serve` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"serve"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if dir := strings.TrimSpace(opts.RuntimeDir); dir != "" {
		args = append(args, "--runtime-dir", dir)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch service: %w", err)
	}
	return proc.Process.Release()
}

// EnsureStarted launches a service unless one is running, then waits until
// it answers a Status request.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	running, err := Running(cfg)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	status, err := WaitForStatus(ctx, cfg, waitTimeout)
	if err != nil {
		return StartResult{}, fmt.Errorf("service failed to start: %w", err)
	}
	return StartResult{State: StartStateStarted, PID: status.PID}, nil
}

// WaitForStatus polls until the service answers a Status request.
func WaitForStatus(ctx context.Context, cfg *config.Config, timeout time.Duration) (*models.Status, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		status, err := fetchStatus(waitCtx, cfg)
		if err == nil {
			return status, nil
		}
		lastErr = err
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		case <-time.After(pollInterval):
		}
	}
}

func fetchStatus(ctx context.Context, cfg *config.Config) (*models.Status, error) {
	cl, err := client.Dial(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	defer cl.Close()
	return cl.Status(ctx)
}

// WaitForShutdown waits for the instance lock to be released.
func WaitForShutdown(ctx context.Context, cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		running, err := Running(cfg)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("service still holds the instance lock")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Stop asks the service to shut down and kills it if it is still alive
// after gracePeriod.
func Stop(ctx context.Context, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, err := Running(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrServiceNotRunning
	}

	var result StopResult
	if cl, err := client.Dial(ctx, cfg, nil); err == nil {
		if status, err := cl.Status(ctx); err == nil {
			result.PID = status.PID
		}
		if _, err := cl.Set(ctx, models.NameShutdown, ""); err == nil {
			result.StopAcknowledged = true
		}
		_ = cl.Close()
	}

	if err := WaitForShutdown(ctx, cfg, gracePeriod); err == nil {
		return result, nil
	} else if ctx.Err() != nil {
		return result, err
	}

	if err := killProcess(result.PID); err != nil {
		return result, err
	}
	result.ForcedKill = true
	if err := WaitForShutdown(ctx, cfg, gracePeriod); err != nil {
		return result, fmt.Errorf("service did not stop after kill: %w", err)
	}
	return result, nil
}

func killProcess(pid int) error {
	if pid <= 0 {
		return errors.New("unable to determine service pid")
	}
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate service process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill service process %d: %w", pid, err)
	}
	return nil
}
