package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON prints a model reply or listing as indented JSON for --json.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSONLine prints one compact object per line, so streamed log events
// stay parseable line by line while following.
func writeJSONLine(cmd *cobra.Command, v any) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
}
