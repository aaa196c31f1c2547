package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ekocloudsec/ctfctl/pkg/errors"
	"github.com/ekocloudsec/ctfctl/pkg/graph"
)

func newValidateCmd() *cobra.Command {
	var checkEnv bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the challenge manifest",
		Long: `Validate the challenge manifest: schema, challenge directories,
dependency references and cycles. With --check-env, also verify that
terraform is installed and credentials are available for every provider
the manifest uses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := loadManifest()
			if err != nil {
				return err
			}

			if errs := manifest.Validate(); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintf(os.Stderr, "Error: %v\n", e)
				}
				return errors.ValidationError(fmt.Sprintf("manifest has %d error(s)", len(errs)), nil)
			}

			challenges := manifest.Filter()
			if _, err := graph.Build(challenges); err != nil {
				return err
			}

			fmt.Printf("Manifest OK: %d challenge(s)\n", len(challenges))

			if !checkEnv {
				return nil
			}

			providers := make(map[string]bool)
			for _, c := range challenges {
				providers[c.Provider] = true
			}
			names := make([]string, 0, len(providers))
			for p := range providers {
				names = append(names, p)
			}
			sort.Strings(names)

			credsManager, err := loadCredentials()
			if err != nil {
				return err
			}

			ready := true
			for _, provider := range names {
				report := credsManager.ValidateEnvironment(cmd.Context(), provider)
				if report.Ready {
					fmt.Printf("  %s: ready (terraform %s)\n", provider, report.TerraformVersion)
					continue
				}
				ready = false
				if !report.TerraformInstalled {
					fmt.Printf("  %s: terraform not found in PATH\n", provider)
				}
				if report.CredentialsError != nil {
					fmt.Printf("  %s: %v\n", provider, report.CredentialsError)
				}
			}
			if !ready {
				return fmt.Errorf("environment is not ready")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkEnv, "check-env", false, "Also check terraform and provider credentials")

	return cmd
}
