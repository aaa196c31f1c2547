package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekocloudsec/ctfctl/pkg/challenge"
	"github.com/ekocloudsec/ctfctl/pkg/graph"
	"github.com/ekocloudsec/ctfctl/pkg/graph/visual"
)

func newGraphCmd() *cobra.Command {
	var (
		format          string
		outputFile      string
		groupByProvider bool
		direction       string
		title           string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the challenge dependency graph",
		Long: `Render the challenge dependency graph as a Mermaid flowchart or,
with --format png, as an image (requires the mermaid CLI, mmdc).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := loadManifest()
			if err != nil {
				return err
			}

			challenges := manifest.Filter()
			g, err := graph.Build(challenges)
			if err != nil {
				return err
			}

			byID := make(map[string]*challenge.Challenge, len(challenges))
			for _, c := range challenges {
				byID[c.Name] = c
			}

			mermaidOpts := visual.MermaidOptions{
				GroupByProvider: groupByProvider,
				Direction:       direction,
				Title:           title,
			}

			switch format {
			case "mermaid":
				text, err := visual.RenderMermaid(g, byID, mermaidOpts)
				if err != nil {
					return err
				}
				if outputFile == "" {
					fmt.Print(text)
					return nil
				}
				return os.WriteFile(outputFile, []byte(text), 0644)
			case "png":
				if outputFile == "" {
					outputFile = "graph.png"
				}
				data, err := visual.RenderImage(g, byID, visual.ImageOptions{
					MermaidOptions: mermaidOpts,
				})
				if err != nil {
					return err
				}
				if err := os.WriteFile(outputFile, data, 0644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", outputFile)
				return nil
			default:
				return fmt.Errorf("unsupported format %q (expected mermaid or png)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "Output format (mermaid, png)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to a file instead of stdout")
	cmd.Flags().BoolVar(&groupByProvider, "group-by-provider", false, "Group challenges by provider")
	cmd.Flags().StringVar(&direction, "direction", "", "Flowchart direction (TD, LR, BT, RL)")
	cmd.Flags().StringVar(&title, "title", "", "Diagram title")

	return cmd
}
