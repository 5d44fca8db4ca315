// Package selection maps clicks on the flow chart back to the fact sheets behind them.
package selection

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ritzau/tag-flow/pkg/logging"
	"github.com/ritzau/tag-flow/pkg/model"
)

// ErrUnresolvableInteraction is returned when a click target is not part of the dataset
var ErrUnresolvableInteraction = errors.New("unresolvable interaction")

// TargetKind distinguishes node clicks from link clicks
type TargetKind string

const (
	KindNode TargetKind = "node"
	KindLink TargetKind = "link"
)

// Target is what the user clicked, as reported by the chart
type Target struct {
	Kind   TargetKind `json:"kind"`
	Name   string     `json:"name,omitempty"`   // node name
	Source string     `json:"source,omitempty"` // link endpoints
	Target string     `json:"target,omitempty"`
}

// NodeTarget builds a node click target
func NodeTarget(name string) Target {
	return Target{Kind: KindNode, Name: name}
}

// LinkTarget builds a link click target
func LinkTarget(source, target string) Target {
	return Target{Kind: KindLink, Source: source, Target: target}
}

// Result is the drill-down list for a click
type Result struct {
	Label      string            `json:"label"`
	FactSheets []model.FactSheet `json:"factSheets"`
}

// Resolve collects the fact sheets behind a clicked node or link, sorted by
// name (case-insensitive). Ids missing from the index are skipped.
func Resolve(target Target, ds *model.Dataset, index map[string]model.FactSheet, untaggedIDs []string) (*Result, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: no dataset", ErrUnresolvableInteraction)
	}

	var (
		label string
		ids   []string
	)

	switch target.Kind {
	case KindNode:
		node, ok := ds.Node(target.Name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown node %q", ErrUnresolvableInteraction, target.Name)
		}
		label = node.Label

		switch node.Kind {
		case model.NodeKindFactSheetType:
			ids = append(sortedIndex(index), untaggedIDs...)
		case model.NodeKindTagGroup, model.NodeKindTag:
			for _, link := range ds.LinksInto(node.Name) {
				ids = append(ids, link.RecordIDs...)
			}
		case model.NodeKindMultiple:
			ids = node.RecordIDs
		case model.NodeKindUntagged:
			ids = untaggedIDs
		default:
			return nil, fmt.Errorf("%w: node %q has kind %q", ErrUnresolvableInteraction, node.Name, node.Kind)
		}

	case KindLink:
		link, ok := ds.Link(target.Source, target.Target)
		if !ok {
			return nil, fmt.Errorf("%w: unknown link %q -> %q", ErrUnresolvableInteraction, target.Source, target.Target)
		}
		label = linkLabel(ds, link)
		if link.Target == model.UntaggedNodeName {
			ids = untaggedIDs
		} else {
			ids = link.RecordIDs
		}

	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnresolvableInteraction, target.Kind)
	}

	return &Result{Label: label, FactSheets: lookup(dedupe(ids), index)}, nil
}

// sortedIndex returns the index keys in a fixed order so the stable name sort
// has a deterministic tie break
func sortedIndex(index map[string]model.FactSheet) []string {
	keys := make([]string, 0, len(index))
	for id := range index {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}

func linkLabel(ds *model.Dataset, link *model.Link) string {
	source, target := link.Source, link.Target
	if n, ok := ds.Node(link.Source); ok {
		source = n.Label
	}
	if n, ok := ds.Node(link.Target); ok {
		target = n.Label
	}
	return source + " → " + target
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func lookup(ids []string, index map[string]model.FactSheet) []model.FactSheet {
	factSheets := make([]model.FactSheet, 0, len(ids))
	for _, id := range ids {
		fs, ok := index[id]
		if !ok {
			logging.Debug("selected fact sheet not in index", "id", id)
			continue
		}
		factSheets = append(factSheets, fs)
	}
	sort.SliceStable(factSheets, func(i, j int) bool {
		return strings.ToLower(factSheets[i].Name) < strings.ToLower(factSheets[j].Name)
	})
	return factSheets
}
