// Package cli implements the ctfctl CLI commands.
package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Import state backends and provisioning plugins to register them
	// via init()
	_ "github.com/ekocloudsec/ctfctl/pkg/iac/terraform"
	_ "github.com/ekocloudsec/ctfctl/pkg/state/backend/azurerm"
	_ "github.com/ekocloudsec/ctfctl/pkg/state/backend/gcs"
	_ "github.com/ekocloudsec/ctfctl/pkg/state/backend/local"
	_ "github.com/ekocloudsec/ctfctl/pkg/state/backend/s3"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ctfctl",
	Short: "Deploy capture-the-flag cloud scenarios",
	Long: `ctfctl deploys intentionally vulnerable cloud infrastructure for
capture-the-flag events.

Challenges are described in a challenges.yaml manifest as terraform
configurations with dependencies between them. ctfctl resolves the
dependency graph, deploys challenges in order with bounded parallelism,
and threads outputs from one challenge into the variables of the next.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ctfctl/config.yaml)")
	rootCmd.PersistentFlags().StringP("manifest", "m", "challenges.yaml", "Path to the challenge manifest")
	rootCmd.PersistentFlags().String("credentials", "credentials.yaml", "Path to the credentials file")
	rootCmd.PersistentFlags().String("backend", "local", "State backend type (local, s3, gcs, azurerm)")
	rootCmd.PersistentFlags().StringArray("backend-config", nil, "State backend configuration (key=value)")

	// Bind to viper
	_ = viper.BindPFlag("manifest", rootCmd.PersistentFlags().Lookup("manifest"))
	_ = viper.BindPFlag("credentials", rootCmd.PersistentFlags().Lookup("credentials"))
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("backend-config", rootCmd.PersistentFlags().Lookup("backend-config"))
	viper.SetEnvPrefix("CTFCTL")
	viper.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newDestroyCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newOutputCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newWorkflowCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.ctfctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ctfctl %s %s/%s\n", Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
