// Package visual renders challenge dependency graphs as Mermaid
// flowcharts, for embedding in Markdown or rendering to images.
package visual

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekocloudsec/ctfctl/pkg/challenge"
	"github.com/ekocloudsec/ctfctl/pkg/graph"
)

// MermaidOptions controls how a graph is rendered to a Mermaid flowchart.
type MermaidOptions struct {
	// GroupByProvider uses subgraphs to group challenges by cloud
	// provider.
	GroupByProvider bool

	// Direction is the flowchart direction: "TD" (top-down) or "LR"
	// (left-right). Defaults to "TD" if empty.
	Direction string

	// Title is an optional diagram title.
	Title string
}

// ImageOptions extends MermaidOptions with image rendering settings.
type ImageOptions struct {
	MermaidOptions

	// Width is the PNG width in pixels. 0 means auto.
	Width int

	// Height is the PNG height in pixels. 0 means auto.
	Height int

	// Theme is the Mermaid theme (default, dark, forest, neutral).
	Theme string
}

// RenderMermaid generates a Mermaid flowchart from a dependency graph.
// The challenges map supplies labels and provider grouping; entries
// missing from it render with the bare id.
func RenderMermaid(g *graph.Graph, challenges map[string]*challenge.Challenge, opts MermaidOptions) (string, error) {
	if g == nil {
		return "", fmt.Errorf("graph is nil")
	}

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}

	var ids []string
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder

	if opts.Title != "" {
		b.WriteString(fmt.Sprintf("---\ntitle: %s\n---\n", opts.Title))
	}
	b.WriteString(fmt.Sprintf("flowchart %s\n", direction))

	if opts.GroupByProvider {
		renderGrouped(&b, ids, challenges)
	} else {
		for _, id := range ids {
			b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", sanitizeMermaidID(id), escapeMermaidLabel(nodeLabel(id, challenges))))
		}
	}

	b.WriteString("\n")
	renderEdges(&b, g, ids)

	return b.String(), nil
}

func renderGrouped(b *strings.Builder, ids []string, challenges map[string]*challenge.Challenge) {
	providerIDs := make(map[string][]string)
	var providers []string
	for _, id := range ids {
		provider := "unknown"
		if c, ok := challenges[id]; ok && c.Provider != "" {
			provider = c.Provider
		}
		if _, seen := providerIDs[provider]; !seen {
			providers = append(providers, provider)
		}
		providerIDs[provider] = append(providerIDs[provider], id)
	}
	sort.Strings(providers)

	for _, provider := range providers {
		b.WriteString(fmt.Sprintf("    subgraph %s [\"%s\"]\n", sanitizeMermaidID(provider), escapeMermaidLabel(provider)))
		for _, id := range providerIDs[provider] {
			b.WriteString(fmt.Sprintf("        %s[\"%s\"]\n", sanitizeMermaidID(id), escapeMermaidLabel(nodeLabel(id, challenges))))
		}
		b.WriteString("    end\n")
	}
}

func renderEdges(b *strings.Builder, g *graph.Graph, ids []string) {
	for _, id := range ids {
		deps := append([]string(nil), g.Nodes[id].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			b.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeMermaidID(dep), sanitizeMermaidID(id)))
		}
	}
}

func nodeLabel(id string, challenges map[string]*challenge.Challenge) string {
	c, ok := challenges[id]
	if !ok {
		return id
	}
	if c.Difficulty != "" {
		return fmt.Sprintf("%s (%s)", id, c.Difficulty)
	}
	return id
}

// sanitizeMermaidID replaces characters Mermaid treats as syntax.
func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer("-", "_", ".", "_", "/", "_", " ", "_")
	return r.Replace(id)
}

func escapeMermaidLabel(label string) string {
	return strings.ReplaceAll(label, `"`, "#quot;")
}
