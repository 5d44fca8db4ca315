package graph

import (
	"fmt"

	"github.com/ritzau/tag-flow/pkg/model"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// FlowGraph is a weighted directed view over a flow dataset
type FlowGraph struct {
	dataset *model.Dataset
	graph   *simple.WeightedDirectedGraph
	ids     map[string]int64 // node name -> graph ID
	names   map[int64]string // graph ID -> node name
}

// NewFlowGraph builds the weighted graph for a dataset.
// Links pointing at unknown nodes are reported as errors.
func NewFlowGraph(ds *model.Dataset) (*FlowGraph, error) {
	fg := &FlowGraph{
		dataset: ds,
		graph:   simple.NewWeightedDirectedGraph(0, 0),
		ids:     make(map[string]int64, len(ds.Nodes)),
		names:   make(map[int64]string, len(ds.Nodes)),
	}

	for i, node := range ds.Nodes {
		id := int64(i)
		fg.ids[node.Name] = id
		fg.names[id] = node.Name
		fg.graph.AddNode(simple.Node(id))
	}

	for _, link := range ds.Links {
		from, ok := fg.ids[link.Source]
		if !ok {
			return nil, fmt.Errorf("link %s -> %s: unknown source", link.Source, link.Target)
		}
		to, ok := fg.ids[link.Target]
		if !ok {
			return nil, fmt.Errorf("link %s -> %s: unknown target", link.Source, link.Target)
		}
		if from == to {
			return nil, fmt.Errorf("link %s -> %s: self loop", link.Source, link.Target)
		}
		fg.graph.SetWeightedEdge(fg.graph.NewWeightedEdge(
			fg.graph.Node(from), fg.graph.Node(to), float64(link.Value)))
	}

	return fg, nil
}

// Graph returns the underlying directed graph
func (fg *FlowGraph) Graph() *simple.WeightedDirectedGraph {
	return fg.graph
}

// Inflow sums the weights of links ending at the node
func (fg *FlowGraph) Inflow(name string) int {
	id, ok := fg.ids[name]
	if !ok {
		return 0
	}
	total := 0
	iter := fg.graph.To(id)
	for iter.Next() {
		total += int(fg.graph.WeightedEdge(iter.Node().ID(), id).Weight())
	}
	return total
}

// Outflow sums the weights of links starting at the node
func (fg *FlowGraph) Outflow(name string) int {
	id, ok := fg.ids[name]
	if !ok {
		return 0
	}
	total := 0
	iter := fg.graph.From(id)
	for iter.Next() {
		total += int(fg.graph.WeightedEdge(id, iter.Node().ID()).Weight())
	}
	return total
}

// Depths assigns each node the length of the longest path reaching it, which
// is the column the chart places it in. It fails if the flow has a cycle.
func (fg *FlowGraph) Depths() (map[string]int, error) {
	order, err := topo.Sort(fg.graph)
	if err != nil {
		return nil, fmt.Errorf("flow graph is not acyclic: %w", err)
	}

	depth := make(map[int64]int, len(order))
	for _, node := range order {
		d := 0
		preds := fg.graph.To(node.ID())
		for preds.Next() {
			if pd := depth[preds.Node().ID()] + 1; pd > d {
				d = pd
			}
		}
		depth[node.ID()] = d
	}

	byName := make(map[string]int, len(depth))
	for id, d := range depth {
		byName[fg.names[id]] = d
	}
	return byName, nil
}

// AssignDepths writes node depths into the dataset
func AssignDepths(ds *model.Dataset) error {
	fg, err := NewFlowGraph(ds)
	if err != nil {
		return err
	}
	depths, err := fg.Depths()
	if err != nil {
		return err
	}
	for i := range ds.Nodes {
		ds.Nodes[i].Depth = depths[ds.Nodes[i].Name]
	}
	return nil
}
