package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"pipelink/internal/client"
	"pipelink/internal/config"
)

type commandContext struct {
	configFlag     *string
	runtimeDirFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, runtimeDirFlag *string) *commandContext {
	return &commandContext{
		configFlag:     configFlag,
		runtimeDirFlag: runtimeDirFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.runtimeDirFlag != nil {
			if dir := strings.TrimSpace(*c.runtimeDirFlag); dir != "" {
				expanded, err := config.ExpandPath(dir)
				if err != nil {
					c.configErr = err
					return
				}
				cfg.Paths.RuntimeDir = expanded
				if err := cfg.Validate(); err != nil {
					c.configErr = err
					return
				}
			}
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) withClient(cmd *cobra.Command, fn func(context.Context, *client.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := contextOrBackground(cmd.Context())
	cl, err := client.Dial(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer cl.Close()
	return fn(ctx, cl)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
