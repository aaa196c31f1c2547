package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekocloudsec/ctfctl/pkg/challenge"
)

func newListCmd() *cobra.Command {
	var (
		provider     string
		difficulty   string
		tag          string
		details      bool
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List challenges in the manifest",
		Long: `List the challenges defined in the manifest, optionally filtered by
provider, difficulty or tag.

Examples:
  ctfctl list
  ctfctl list --provider aws --details
  ctfctl list --difficulty hard --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := loadManifest()
			if err != nil {
				return err
			}

			var predicates []func(*challenge.Challenge) bool
			if provider != "" {
				predicates = append(predicates, challenge.ByProvider(provider))
			}
			if difficulty != "" {
				predicates = append(predicates, challenge.ByDifficulty(difficulty))
			}
			if tag != "" {
				predicates = append(predicates, challenge.ByTag(tag))
			}
			challenges := manifest.Filter(predicates...)

			if outputFormat == "json" {
				summaries := make([]challengeSummary, 0, len(challenges))
				for _, c := range challenges {
					summaries = append(summaries, challengeSummary{
						Name:        c.Name,
						Provider:    c.Provider,
						Difficulty:  c.Difficulty,
						Description: c.Description,
						DependsOn:   c.Dependencies(),
						Tags:        c.Tags,
					})
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(summaries)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			if details {
				fmt.Fprintln(tw, "NAME\tPROVIDER\tDIFFICULTY\tDEPENDS ON\tDESCRIPTION")
				for _, c := range challenges {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						c.Name, c.Provider, orDash(c.Difficulty),
						orDash(strings.Join(c.Dependencies(), ", ")), orDash(c.Description))
				}
			} else {
				fmt.Fprintln(tw, "NAME\tPROVIDER\tDIFFICULTY")
				for _, c := range challenges {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Provider, orDash(c.Difficulty))
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Filter by provider")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "Filter by difficulty")
	cmd.Flags().StringVar(&tag, "tag", "", "Filter by tag")
	cmd.Flags().BoolVar(&details, "details", false, "Show dependencies and descriptions")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")

	return cmd
}

type challengeSummary struct {
	Name        string   `json:"name"`
	Provider    string   `json:"provider"`
	Difficulty  string   `json:"difficulty,omitempty"`
	Description string   `json:"description,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
