package graph

import (
	"fmt"

	"github.com/ritzau/tag-flow/pkg/model"
)

// Violation describes a node whose flows do not add up
type Violation struct {
	Node    string `json:"node"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Node + ": " + v.Message
}

// CheckFlow verifies the dataset's flow invariants:
//   - the root never sends more than the fetched total
//   - a tag group node passes on exactly what it receives
//   - the multiple node receives one unit per fact sheet it lists and fans out at least as much
//   - link weights match their id lists (the untagged link may be count-only)
func (fg *FlowGraph) CheckFlow() []Violation {
	var violations []Violation
	ds := fg.dataset

	for _, link := range ds.Links {
		if link.Target == model.UntaggedNodeName && len(link.RecordIDs) == 0 {
			continue
		}
		if link.Value != len(link.RecordIDs) {
			violations = append(violations, Violation{
				Node:    link.Source,
				Message: fmt.Sprintf("link to %s has weight %d but %d ids", link.Target, link.Value, len(link.RecordIDs)),
			})
		}
	}

	for _, node := range ds.Nodes {
		in, out := fg.Inflow(node.Name), fg.Outflow(node.Name)

		switch node.Kind {
		case model.NodeKindFactSheetType:
			if ds.TotalCount > 0 && out > ds.TotalCount {
				violations = append(violations, Violation{
					Node:    node.Name,
					Message: fmt.Sprintf("outflow %d exceeds fetched total %d", out, ds.TotalCount),
				})
			}

		case model.NodeKindTagGroup:
			if in != out {
				violations = append(violations, Violation{
					Node:    node.Name,
					Message: fmt.Sprintf("inflow %d differs from outflow %d", in, out),
				})
			}

		case model.NodeKindMultiple:
			if in != len(node.RecordIDs) {
				violations = append(violations, Violation{
					Node:    node.Name,
					Message: fmt.Sprintf("inflow %d differs from %d listed fact sheets", in, len(node.RecordIDs)),
				})
			}
			if out < in*2 {
				violations = append(violations, Violation{
					Node:    node.Name,
					Message: fmt.Sprintf("outflow %d is less than two tags per fact sheet (%d)", out, in*2),
				})
			}
		}
	}

	return violations
}
