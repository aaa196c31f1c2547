package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekocloudsec/ctfctl/pkg/engine"
	"github.com/ekocloudsec/ctfctl/pkg/errors"
	"github.com/ekocloudsec/ctfctl/pkg/iac"
)

func newDeployCmd() *cobra.Command {
	var (
		provider      string
		difficulty    string
		autoApprove   bool
		dryRun        bool
		parallelism   int
		skipUnchanged bool
		timeout       time.Duration
		plugin        string
	)

	cmd := &cobra.Command{
		Use:   "deploy [challenge...]",
		Short: "Deploy challenges",
		Long: `Deploy challenges from the manifest.

Without arguments every challenge is deployed. Naming challenges deploys
them plus their transitive dependencies. The --provider and --difficulty
flags select a subset of the manifest instead.

Examples:
  ctfctl deploy
  ctfctl deploy s3-leaky-bucket
  ctfctl deploy --provider aws --auto-approve
  ctfctl deploy --skip-unchanged --parallelism 8
  ctfctl deploy --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			manifest, err := loadManifest()
			if err != nil {
				return err
			}
			if errs := manifest.Validate(); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintf(os.Stderr, "[error] %v\n", e)
				}
				return errors.ValidationError("manifest validation failed", map[string]interface{}{
					"errors": len(errs),
				})
			}

			names, err := selectChallenges(manifest, args, provider, difficulty)
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

			eng := engine.New(manifest, iac.DefaultRegistry, stateManager, credsManager, engine.Options{
				Concurrency:   parallelism,
				Timeout:       timeout,
				Plugin:        plugin,
				SkipUnchanged: skipUnchanged,
				Output:        os.Stdout,
				OnProgress:    printProgress(os.Stdout, "deploy"),
			})

			if dryRun {
				preview, err := eng.Preview(ctx, names)
				if err != nil {
					return err
				}
				printPreview(os.Stdout, preview)
				return nil
			}

			count := len(names)
			if count == 0 {
				count = len(manifest.Challenges)
			}
			if shouldConfirm(autoApprove) {
				if !confirm(fmt.Sprintf("Deploy %d challenge(s)?", count)) {
					fmt.Println("Deploy cancelled.")
					return nil
				}
			}

			result, err := eng.Deploy(ctx, names)
			if err != nil {
				return err
			}

			printSummary(os.Stdout, result)
			if !result.Success {
				return fmt.Errorf("deploy finished with %d failed and %d skipped challenge(s)",
					result.Failed, result.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Deploy all challenges for a provider (aws, azure, gcp)")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "Deploy all challenges of a difficulty")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show planned changes without applying them")
	cmd.Flags().IntVar(&parallelism, "parallelism", 4, "Max concurrent challenge deployments")
	cmd.Flags().BoolVar(&skipUnchanged, "skip-unchanged", false, "Reuse deployed challenges whose inputs have not changed")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Per-challenge timeout")
	cmd.Flags().StringVar(&plugin, "plugin", "terraform", "Provisioning plugin ("+strings.Join(iac.List(), ", ")+")")

	return cmd
}
