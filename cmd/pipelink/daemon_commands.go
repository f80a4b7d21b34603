package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pipelink/internal/daemonctl"
)

const (
	startWait = 10 * time.Second
	stopGrace = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the pipelink service in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			started, err := ctx.startService(cmd.Context())
			if err != nil {
				return err
			}
			switch started.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Service started (pid %d)\n", started.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Service already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the pipelink service",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			stopped, err := ctx.stopService(cmd.Context())
			if errors.Is(err, daemonctl.ErrServiceNotRunning) {
				fmt.Fprintln(stdout, "Service is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(cmd, stopped)
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the pipelink service",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			stopped, err := ctx.stopService(cmd.Context())
			switch {
			case errors.Is(err, daemonctl.ErrServiceNotRunning):
			case err != nil:
				return err
			default:
				printStopResult(cmd, stopped)
			}
			started, err := ctx.startService(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Service restarted (pid %d)\n", started.PID)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd}
}

func printStopResult(cmd *cobra.Command, result daemonctl.StopResult) {
	stdout := cmd.OutOrStdout()
	if !result.StopAcknowledged {
		fmt.Fprintln(stdout, "Service did not acknowledge the shutdown request")
	}
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(stdout, "Killed service process (pid %d)\n", result.PID)
	}
	fmt.Fprintln(stdout, "Service stopped")
}

func (c *commandContext) startService(ctx context.Context) (daemonctl.StartResult, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return daemonctl.StartResult{}, err
	}
	exe, err := os.Executable()
	if err != nil {
		return daemonctl.StartResult{}, fmt.Errorf("resolve executable: %w", err)
	}
	return daemonctl.EnsureStarted(contextOrBackground(ctx), cfg, exe, c.launchOptions(), startWait)
}

func (c *commandContext) stopService(ctx context.Context) (daemonctl.StopResult, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return daemonctl.StopResult{}, err
	}
	return daemonctl.Stop(contextOrBackground(ctx), cfg, stopGrace)
}

// launchOptions forwards only flags the user set so the child resolves the
// same configuration.
func (c *commandContext) launchOptions() daemonctl.LaunchOptions {
	var opts daemonctl.LaunchOptions
	if c.configFlag != nil {
		opts.ConfigPath = strings.TrimSpace(*c.configFlag)
	}
	if c.runtimeDirFlag != nil {
		opts.RuntimeDir = strings.TrimSpace(*c.runtimeDirFlag)
	}
	return opts
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
