package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ritzau/tag-flow/pkg/graph"
	"github.com/ritzau/tag-flow/pkg/model"
	"github.com/ritzau/tag-flow/pkg/selection"
)

const barWidth = 30

// PrintFlowReport prints a nicely formatted summary of a flow dataset with colors
func PrintFlowReport(w io.Writer, ds *model.Dataset, violations []graph.Violation) {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	root, ok := ds.Root()
	if !ok {
		red.Fprintln(w, "Empty dataset")
		return
	}
	groupName := model.TagGroupNodeName(ds.TagGroupID)

	// Header
	title := fmt.Sprintf("tag-flow - %s by %s", root.Label, label(ds, groupName))
	bold.Fprintln(w, title)
	bold.Fprintln(w, strings.Repeat("=", len(title)))
	fmt.Fprintf(w, "Fact sheets: %d\n", ds.TotalCount)

	tagged := 0
	if link, ok := ds.Link(root.Name, groupName); ok {
		tagged = link.Value
	}
	fmt.Fprintf(w, "Tagged: %d\n", tagged)
	if ds.UntaggedCount > 0 {
		yellow.Fprintf(w, "Untagged: %d\n", ds.UntaggedCount)
	}
	fmt.Fprintln(w)

	// Links in dataset order, skipping the root fan-out already summarized
	for _, link := range ds.Links {
		if link.Source == root.Name {
			continue
		}
		c := cyan
		if link.Source == model.MultipleNodeName(ds.TagGroupID) || link.Target == model.MultipleNodeName(ds.TagGroupID) {
			c = yellow
		}
		c.Fprintf(w, "  %-24s -> %-24s", label(ds, link.Source), label(ds, link.Target))
		fmt.Fprintf(w, " %5d  %s\n", link.Value, bar(link.Value, ds.TotalCount))
	}
	if untagged, ok := ds.Node(model.UntaggedNodeName); ok {
		red.Fprintf(w, "  %-24s -> %-24s", root.Label, untagged.Label)
		fmt.Fprintf(w, " %5d  %s\n", untagged.Value, bar(untagged.Value, ds.TotalCount))
	}
	fmt.Fprintln(w)

	// Summary
	if len(violations) == 0 {
		green.Fprintln(w, "✓ Flow is balanced")
		return
	}
	red.Fprintf(w, "%d flow violation(s):\n", len(violations))
	for _, v := range violations {
		fmt.Fprintf(w, "  %s\n", v)
	}
}

// PrintSelection prints the fact sheets behind a clicked node or link
func PrintSelection(w io.Writer, result *selection.Result) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s (%d)\n", result.Label, len(result.FactSheets))
	for _, fs := range result.FactSheets {
		fmt.Fprintf(w, "  %s\n", fs.Name)
	}
}

func label(ds *model.Dataset, name string) string {
	if node, ok := ds.Node(name); ok {
		return node.Label
	}
	return name
}

func bar(value, total int) string {
	if total <= 0 || value <= 0 {
		return ""
	}
	n := value * barWidth / total
	if n == 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}
