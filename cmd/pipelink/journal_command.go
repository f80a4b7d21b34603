package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pipelink/internal/client"
	"pipelink/internal/journal"
	"pipelink/internal/models"
)

func newJournalCommand(ctx *commandContext) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and prune the control-channel message journal",
	}
	journalCmd.AddCommand(newJournalListCommand(ctx))
	journalCmd.AddCommand(newJournalPruneCommand(ctx))
	return journalCmd
}

func newJournalListCommand(ctx *commandContext) *cobra.Command {
	var query models.JournalQuery
	var since time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled envelopes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if since > 0 {
				query.Since = time.Now().Add(-since)
			}
			return ctx.withClient(cmd, func(c context.Context, cl *client.Client) error {
				entries, err := cl.Journal(c, query)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Journal is empty")
					return nil
				}
				fmt.Fprintln(out, renderJournalTable(entries))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&query.Identity, "identity", "", "Only entries for this identity")
	cmd.Flags().StringVar(&query.Direction, "direction", "", "Only entries travelling this way (in or out)")
	cmd.Flags().StringVar(&query.ModelType, "model", "", "Only entries for this model type")
	cmd.Flags().StringVar(&query.RequestID, "request", "", "Only entries for this request id")
	cmd.Flags().DurationVar(&since, "since", 0, "Only entries newer than this (e.g. 1h)")
	cmd.Flags().IntVarP(&query.Limit, "limit", "n", journal.DefaultListLimit, "Maximum entries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJournalPruneCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, cl *client.Client) error {
				if !cmd.Flags().Changed("days") {
					cfg, err := ctx.ensureConfig()
					if err != nil {
						return err
					}
					days = cfg.Journal.RetentionDays
				}
				result, err := cl.PruneJournal(c, days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries recorded before %s\n",
					result.Removed, result.Cutoff.Local().Format(time.DateTime))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (defaults to journal.retention_days)")
	return cmd
}

func renderJournalTable(entries []journal.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		errText := e.Error
		if errText == "" {
			errText = "-"
		}
		requestID := e.RequestID
		if len(requestID) > 8 {
			requestID = requestID[:8]
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.RecordedAt.Local().Format("2006-01-02 15:04:05.000"),
			string(e.Direction),
			e.Identity,
			e.Kind,
			e.ModelType,
			requestID,
			strconv.Itoa(e.Size),
			errText,
		})
	}
	return renderTable(
		[]string{"ID", "Recorded", "Dir", "Identity", "Kind", "Model", "Request", "Bytes", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
