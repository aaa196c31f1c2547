package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Show the configuration ctfctl resolved from flags, environment
variables (CTFCTL_*) and the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			backendConfig, err := parseBackendConfig(viper.GetStringSlice("backend-config"))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "config file\t%s\n", orDash(viper.ConfigFileUsed()))
			fmt.Fprintf(tw, "manifest\t%s\n", viper.GetString("manifest"))
			fmt.Fprintf(tw, "credentials\t%s\n", viper.GetString("credentials"))
			fmt.Fprintf(tw, "backend\t%s\n", viper.GetString("backend"))

			keys := make([]string, 0, len(backendConfig))
			for k := range backendConfig {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(tw, "backend.%s\t%s\n", k, backendConfig[k])
			}
			return tw.Flush()
		},
	}
}
