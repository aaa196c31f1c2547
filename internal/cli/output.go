package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ekocloudsec/ctfctl/pkg/state/backend"
)

func newOutputCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "output <challenge> [name]",
		Short: "Print the recorded outputs of a deployed challenge",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stateManager, err := createStateManager()
			if err != nil {
				return err
			}

			record, err := stateManager.GetChallenge(cmd.Context(), args[0])
			if err == backend.ErrNotFound {
				return fmt.Errorf("no state recorded for challenge %q", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read state for %s: %w", args[0], err)
			}
			if !record.Deployed() {
				return fmt.Errorf("challenge %s is not deployed (status: %s)", record.Name, record.Status)
			}

			if len(args) == 2 {
				value, ok := record.Outputs[args[1]]
				if !ok {
					return fmt.Errorf("challenge %s has no output %q", record.Name, args[1])
				}
				fmt.Println(formatValue(value))
				return nil
			}

			switch outputFormat {
			case "json":
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(record.Outputs)
			case "yaml":
				return yaml.NewEncoder(os.Stdout).Encode(record.Outputs)
			default:
				keys := make([]string, 0, len(record.Outputs))
				for k := range record.Outputs {
					keys = append(keys, k)
				}
				sort.Strings(keys)

				tw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
				fmt.Fprintln(tw, "NAME\tVALUE")
				for _, k := range keys {
					fmt.Fprintf(tw, "%s\t%s\n", k, formatValue(record.Outputs[k]))
				}
				return tw.Flush()
			}
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")

	return cmd
}

// formatValue renders scalars plainly and everything else as JSON so
// values stay copy-pasteable.
func formatValue(v interface{}) string {
	switch v.(type) {
	case string, bool, float64, int:
		return fmt.Sprintf("%v", v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
