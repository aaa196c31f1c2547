package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ekocloudsec/ctfctl/pkg/ciworkflow"
	"github.com/ekocloudsec/ctfctl/pkg/graph"
)

func newWorkflowCmd() *cobra.Command {
	var (
		ciType         string
		outputPath     string
		name           string
		installVersion string
		teardown       bool
	)

	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Generate a CI pipeline that deploys challenges in dependency order",
		Long: `Generate a CI pipeline file from the challenge manifest. Each
challenge becomes one job wired to its dependencies, so independent
challenges deploy in parallel. With --teardown, a second pipeline that
destroys everything in reverse order is written as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := loadManifest()
			if err != nil {
				return err
			}
			g, err := graph.Build(manifest.Filter())
			if err != nil {
				return err
			}

			generator, err := ciworkflow.NewGenerator(ciworkflow.OutputType(ciType))
			if err != nil {
				return err
			}

			workflow, err := ciworkflow.BuildWorkflow(manifest, g, ciworkflow.BuildOptions{
				Name:           name,
				ManifestPath:   viper.GetString("manifest"),
				InstallVersion: installVersion,
			})
			if err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = generator.DefaultOutputPath()
			}

			content, err := generator.Generate(workflow)
			if err != nil {
				return err
			}
			if err := writeWorkflowFile(outputPath, content); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", outputPath)

			if !teardown {
				return nil
			}

			teardownContent, err := generator.GenerateTeardown(workflow)
			if err != nil {
				return err
			}
			teardownPath := generator.DefaultTeardownOutputPath()
			if err := writeWorkflowFile(teardownPath, teardownContent); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", teardownPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&ciType, "type", "t", "github-actions",
		fmt.Sprintf("CI provider (%s)", strings.Join(ciworkflow.ValidOutputTypes(), ", ")))
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path (defaults to the provider convention)")
	cmd.Flags().StringVar(&name, "name", "", "Workflow display name")
	cmd.Flags().StringVar(&installVersion, "install-version", "", "ctfctl version to install in CI jobs")
	cmd.Flags().BoolVar(&teardown, "teardown", false, "Also generate the teardown pipeline")

	return cmd
}

func writeWorkflowFile(path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, content, 0644)
}
