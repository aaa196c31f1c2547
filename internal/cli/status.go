package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekocloudsec/ctfctl/pkg/state/backend"
	"github.com/ekocloudsec/ctfctl/pkg/state/types"
)

func newStatusCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "status [challenge...]",
		Short: "Show the deployment status of challenges",
		Long: `Show the recorded deployment status of challenges. With no
arguments, every challenge with a state record is listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stateManager, err := createStateManager()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			names := args
			if len(names) == 0 {
				names, err = stateManager.ListChallenges(ctx)
				if err != nil {
					return fmt.Errorf("failed to list challenges: %w", err)
				}
			}
			sort.Strings(names)

			records := make([]*types.ChallengeRecord, 0, len(names))
			for _, name := range names {
				record, err := stateManager.GetChallenge(ctx, name)
				if err == backend.ErrNotFound {
					return fmt.Errorf("no state recorded for challenge %q", name)
				}
				if err != nil {
					return fmt.Errorf("failed to read state for %s: %w", name, err)
				}
				records = append(records, record)
			}

			if outputFormat == "json" {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(records)
			}

			if len(records) == 0 {
				fmt.Println("No challenges deployed.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "CHALLENGE\tPROVIDER\tSTATUS\tDEPLOYED\tUPDATED")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.Name, r.Provider, r.Status,
					orDash(formatTime(r.DeployedAt)), formatTime(r.UpdatedAt))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")

	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
