package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"voting-ledger/service"
	"voting-ledger/storage"
)

func verifyLedgerCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify-ledger <export.json>",
		Short: "Validate an exported audit chain and recount its votes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			export, err := storage.LoadChain(args[0])
			if err != nil {
				return err
			}
			report, err := service.AuditChain(export.Blocks)
			if err != nil {
				return fmt.Errorf("audit chain %s is invalid: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(out, "session:  %s\n", export.SessionID)
			fmt.Fprintf(out, "exported: %s\n", export.ExportedAt)
			fmt.Fprintf(out, "blocks:   %d\n", report.Blocks)
			fmt.Fprintf(out, "votes:    %d\n", report.Votes)
			candidates := make([]string, 0, len(report.Counts))
			for id := range report.Counts {
				candidates = append(candidates, id)
			}
			sort.Strings(candidates)
			for _, id := range candidates {
				fmt.Fprintf(out, "  %-20s %d\n", id, report.Counts[id])
			}
			fmt.Fprintln(out, "chain OK")
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
