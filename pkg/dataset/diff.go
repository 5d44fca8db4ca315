package dataset

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/ritzau/tag-flow/pkg/model"
)

// Diff represents the difference between two datasets
type Diff struct {
	AddedNodes    []model.Node `json:"addedNodes"`
	RemovedNodes  []string     `json:"removedNodes"`  // Node names
	ModifiedNodes []model.Node `json:"modifiedNodes"` // Nodes with changed label, color or value
	AddedLinks    []model.Link `json:"addedLinks"`
	RemovedLinks  []string     `json:"removedLinks"`  // Link keys (source|target)
	ModifiedLinks []model.Link `json:"modifiedLinks"` // Links with changed weight or ids
	Full          bool         `json:"full"`          // True if there was nothing to diff against
}

// Empty reports whether the diff carries no change
func (d *Diff) Empty() bool {
	return !d.Full &&
		len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.ModifiedNodes) == 0 &&
		len(d.AddedLinks) == 0 && len(d.RemovedLinks) == 0 && len(d.ModifiedLinks) == 0
}

// Snapshot is an indexed dataset kept for diffing
type Snapshot struct {
	Hash      string
	nodes     map[string]model.Node
	links     map[string]model.Link
	nodeOrder []string
	linkOrder []string
}

// NewSnapshot indexes a dataset for diffing
func NewSnapshot(ds *model.Dataset) *Snapshot {
	s := &Snapshot{
		nodes: make(map[string]model.Node, len(ds.Nodes)),
		links: make(map[string]model.Link, len(ds.Links)),
	}

	for _, node := range ds.Nodes {
		s.nodes[node.Name] = node
		s.nodeOrder = append(s.nodeOrder, node.Name)
	}
	for _, link := range ds.Links {
		key := LinkKey(link.Source, link.Target)
		s.links[key] = link
		s.linkOrder = append(s.linkOrder, key)
	}

	jsonData, _ := json.Marshal(ds)
	hash := sha256.Sum256(jsonData)
	s.Hash = fmt.Sprintf("%x", hash)

	return s
}

// ComputeDiff computes the difference between a snapshot and a new dataset.
// Entries are listed in dataset order.
func ComputeDiff(old *Snapshot, ds *model.Dataset) *Diff {
	// If no old snapshot, return full dataset
	if old == nil {
		return &Diff{
			AddedNodes: ds.Nodes,
			AddedLinks: ds.Links,
			Full:       true,
		}
	}

	diff := &Diff{
		AddedNodes:    make([]model.Node, 0),
		RemovedNodes:  make([]string, 0),
		ModifiedNodes: make([]model.Node, 0),
		AddedLinks:    make([]model.Link, 0),
		RemovedLinks:  make([]string, 0),
		ModifiedLinks: make([]model.Link, 0),
	}

	current := NewSnapshot(ds)
	if current.Hash == old.Hash {
		return diff
	}

	for _, name := range current.nodeOrder {
		node := current.nodes[name]
		if prev, exists := old.nodes[name]; !exists {
			diff.AddedNodes = append(diff.AddedNodes, node)
		} else if !nodesEqual(prev, node) {
			diff.ModifiedNodes = append(diff.ModifiedNodes, node)
		}
	}
	for _, name := range old.nodeOrder {
		if _, exists := current.nodes[name]; !exists {
			diff.RemovedNodes = append(diff.RemovedNodes, name)
		}
	}

	for _, key := range current.linkOrder {
		link := current.links[key]
		if prev, exists := old.links[key]; !exists {
			diff.AddedLinks = append(diff.AddedLinks, link)
		} else if prev.Value != link.Value || !sameIDs(prev.RecordIDs, link.RecordIDs) {
			diff.ModifiedLinks = append(diff.ModifiedLinks, link)
		}
	}
	for _, key := range old.linkOrder {
		if _, exists := current.links[key]; !exists {
			diff.RemovedLinks = append(diff.RemovedLinks, key)
		}
	}

	return diff
}

// LinkKey creates a unique key for a link
func LinkKey(source, target string) string {
	return source + "|" + target
}

// nodesEqual compares the rendered properties of two nodes (depth is layout)
func nodesEqual(a, b model.Node) bool {
	return a.Name == b.Name &&
		a.Label == b.Label &&
		a.Kind == b.Kind &&
		a.Color == b.Color &&
		a.Value == b.Value &&
		sameIDs(a.RecordIDs, b.RecordIDs)
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
