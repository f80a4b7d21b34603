package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pipelink/internal/client"
	"pipelink/internal/models"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service, channel and journal status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, cl *client.Client) error {
				status, err := cl.Status(c)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				renderStatus(out, status, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(out io.Writer, status *models.Status, colorize bool) {
	lines := renderSectionHeader("Service", colorize)
	lines = append(lines,
		renderValueLine("Session", status.SessionID),
		renderValueLine("PID", strconv.Itoa(status.PID)),
	)
	if !status.StartedAt.IsZero() {
		lines = append(lines, renderValueLine("Started", status.StartedAt.Local().Format(time.DateTime)))
	}
	if status.Uptime != "" {
		lines = append(lines, renderValueLine("Uptime", status.Uptime))
	}
	if len(status.Models) > 0 {
		lines = append(lines, renderValueLine("Models", strings.Join(status.Models, ", ")))
	}
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Channels", colorize)...)
	for _, ch := range status.Channels {
		msg := titleCase(ch.State)
		if ch.LastError != "" {
			msg += " (" + ch.LastError + ")"
		}
		lines = append(lines, renderStatusLine(ch.Identity, channelStateKind(ch.State, ch.Failures), msg, colorize))
	}
	rows := make([][]string, 0, len(status.Channels))
	for _, ch := range status.Channels {
		rows = append(rows, []string{
			ch.Identity,
			titleCase(ch.State),
			strconv.FormatUint(ch.Generation, 10),
			strconv.Itoa(ch.Failures),
		})
	}
	if len(rows) > 0 {
		lines = append(lines, renderTable(
			[]string{"Identity", "State", "Generation", "Failures"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
		))
	}
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("SysLog Feed", colorize)...)
	feedKind, feedMsg := statusInfo, "closed"
	if status.Feed.Open {
		feedKind, feedMsg = statusOK, "open"
	}
	lines = append(lines,
		renderStatusLine("Feed", feedKind, feedMsg, colorize),
		renderValueLine("Delivered", strconv.FormatUint(status.Feed.Delivered, 10)),
		renderValueLine("Dropped", strconv.FormatUint(status.Feed.Dropped, 10)),
		"",
	)

	lines = append(lines, renderSectionHeader("Journal", colorize)...)
	if j := status.Journal; j != nil {
		kind := statusOK
		if !j.DatabaseExists {
			kind = statusWarn
		}
		lines = append(lines,
			renderStatusLine("Database", kind, j.DBPath, colorize),
			renderValueLine("Schema", j.SchemaVersion),
			renderValueLine("Entries", strconv.Itoa(j.Entries)),
		)
		if !j.Newest.IsZero() {
			lines = append(lines, renderValueLine("Newest", j.Newest.Local().Format(time.DateTime)))
		}
	} else {
		lines = append(lines, renderStatusLine("Database", statusInfo, "disabled", colorize))
	}

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}
