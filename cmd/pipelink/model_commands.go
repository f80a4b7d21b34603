package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pipelink/internal/client"
	"pipelink/internal/envelope"
)

func newGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <model> [query]",
		Short: "Read a service model and print the reply",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 2 {
				query = args[1]
			}
			return ctx.withClient(cmd, func(c context.Context, cl *client.Client) error {
				resp, err := cl.Get(c, args[0], query)
				if err != nil {
					return err
				}
				return printModelData(cmd, resp)
			})
		},
	}
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <model> <data>",
		Short: "Write a service model and print the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, cl *client.Client) error {
				resp, err := cl.Set(c, args[0], args[1])
				if err != nil {
					return err
				}
				return printModelData(cmd, resp)
			})
		},
	}
}

// printModelData pretty-prints JSON replies and echoes anything else.
func printModelData(cmd *cobra.Command, resp envelope.Envelope) error {
	out := cmd.OutOrStdout()
	data := strings.TrimSpace(resp.ModelData)
	if data == "" {
		fmt.Fprintln(out, "(empty)")
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		fmt.Fprintln(out, data)
		return nil
	}
	return writeJSON(cmd, v)
}
