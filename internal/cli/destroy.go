package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekocloudsec/ctfctl/pkg/engine"
	"github.com/ekocloudsec/ctfctl/pkg/iac"
)

func newDestroyCmd() *cobra.Command {
	var (
		provider    string
		autoApprove bool
		parallelism int
		timeout     time.Duration
		plugin      string
	)

	cmd := &cobra.Command{
		Use:   "destroy [challenge...]",
		Short: "Destroy deployed challenges",
		Long: `Destroy deployed challenges in reverse dependency order.

Without arguments every deployed challenge is destroyed. Naming
challenges destroys them plus any deployed challenges that depend on
them.

Examples:
  ctfctl destroy
  ctfctl destroy s3-leaky-bucket
  ctfctl destroy --provider aws --auto-approve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			manifest, err := loadManifest()
			if err != nil {
				return err
			}

			names, err := selectChallenges(manifest, args, provider, "")
			if err != nil {
				return err
			}

			credsManager, err := loadCredentials()
			if err != nil {
				return err
			}

			stateManager, err := createStateManager()
			if err != nil {
				return err
			}

			if shouldConfirm(autoApprove) {
				target := "ALL deployed challenges"
				if len(names) > 0 {
					target = fmt.Sprintf("%d challenge(s) and their deployed dependents", len(names))
				}
				if !confirm(fmt.Sprintf("This will destroy %s. Continue?", target)) {
					fmt.Println("Destroy cancelled.")
					return nil
				}
			}

			eng := engine.New(manifest, iac.DefaultRegistry, stateManager, credsManager, engine.Options{
				Concurrency: parallelism,
				Timeout:     timeout,
				Plugin:      plugin,
				Output:      os.Stdout,
				OnProgress:  printProgress(os.Stdout, "destroy"),
			})

			result, err := eng.Destroy(ctx, names)
			if err != nil {
				return err
			}

			printSummary(os.Stdout, result)
			if !result.Success {
				return fmt.Errorf("destroy finished with %d failed and %d skipped challenge(s)",
					result.Failed, result.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Destroy all challenges for a provider")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip confirmation prompt")
	cmd.Flags().IntVar(&parallelism, "parallelism", 4, "Max concurrent challenge destroys")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Per-challenge timeout")
	cmd.Flags().StringVar(&plugin, "plugin", "terraform", "Provisioning plugin")

	return cmd
}
