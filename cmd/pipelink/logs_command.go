package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pipelink/internal/client"
	"pipelink/internal/logging"
	"pipelink/internal/logs"
	"pipelink/internal/models"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var jsonOutput bool
	var fromFile bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent service logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := !jsonOutput && shouldColorize(out)
			emit := func(evt logging.LogEvent) {
				if jsonOutput {
					_ = writeJSONLine(cmd, evt)
					return
				}
				fmt.Fprintln(out, formatLogEvent(evt, colorize))
			}
			if fromFile {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				return showLogFile(contextOrBackground(cmd.Context()), cfg.LogFilePath(), lines, follow, emit)
			}

			return ctx.withClient(cmd, func(c context.Context, cl *client.Client) error {
				if follow {
					return cl.Follow(c, lines, emit)
				}
				page, err := cl.Logs(c, models.LogQuery{Limit: lines})
				if err != nil {
					return err
				}
				for _, evt := range page.Events {
					emit(evt)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new log events until interrupted")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent events to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output one JSON object per event")
	cmd.Flags().BoolVar(&fromFile, "file", false, "Read the service log file instead of asking the running service")
	return cmd
}

func showLogFile(ctx context.Context, path string, lines int, follow bool, emit func(logging.LogEvent)) error {
	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: lines})
	if err != nil {
		return err
	}
	for _, evt := range result.Events {
		emit(evt)
	}
	if !follow {
		return nil
	}
	return logs.Follow(ctx, path, result.Offset, emit)
}

func formatLogEvent(evt logging.LogEvent, colorize bool) string {
	var b strings.Builder
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Local().Format("15:04:05"))
	b.WriteByte(' ')

	level := fmt.Sprintf("%-5s", strings.ToUpper(evt.Level))
	if colorize {
		if color := levelColor(evt.Level); color != "" {
			level = color + level + ansiReset
		}
	}
	b.WriteString(level)

	if evt.Component != "" || evt.Identity != "" {
		b.WriteString(" [")
		b.WriteString(evt.Component)
		if evt.Identity != "" {
			if evt.Component != "" {
				b.WriteByte(' ')
			}
			b.WriteString(evt.Identity)
		}
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(evt.Message)
	writeFields(&b, evt.Fields, colorize)
	return b.String()
}

func writeFields(w io.StringWriter, fields map[string]string, colorize bool) {
	if len(fields) == 0 {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pair := k + "=" + fields[k]
		if colorize {
			pair = ansiGray + pair + ansiReset
		}
		_, _ = w.WriteString(" " + pair)
	}
}

func levelColor(level string) string {
	switch strings.ToLower(level) {
	case "error":
		return ansiRed
	case "warn":
		return ansiYellow
	case "debug":
		return ansiGray
	default:
		return ansiGreen
	}
}
