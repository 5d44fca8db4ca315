package dataset

import "github.com/ritzau/tag-flow/pkg/model"

// linkKey identifies a link by its endpoints; repeated contributions accumulate
type linkKey struct {
	source string
	target string
}

// linkSet accumulates links in insertion order
type linkSet struct {
	index map[linkKey]int
	links []model.Link
}

func newLinkSet() *linkSet {
	return &linkSet{index: make(map[linkKey]int)}
}

// add records one fact sheet flowing from source to target
func (s *linkSet) add(source, target, id string) {
	key := linkKey{source: source, target: target}
	i, ok := s.index[key]
	if !ok {
		i = len(s.links)
		s.index[key] = i
		s.links = append(s.links, model.Link{Source: source, Target: target, RecordIDs: []string{}})
	}
	s.links[i].Value++
	s.links[i].RecordIDs = append(s.links[i].RecordIDs, id)
}

// setAggregate stores a link whose weight comes from a count rather than
// individual contributions
func (s *linkSet) setAggregate(source, target string, value int, ids []string) {
	key := linkKey{source: source, target: target}
	link := model.Link{Source: source, Target: target, Value: value, RecordIDs: append([]string{}, ids...)}
	if i, ok := s.index[key]; ok {
		s.links[i] = link
		return
	}
	s.index[key] = len(s.links)
	s.links = append(s.links, link)
}

// removeTouching drops every link starting or ending at the node
func (s *linkSet) removeTouching(name string) {
	kept := s.links[:0]
	for _, link := range s.links {
		if link.Source == name || link.Target == name {
			continue
		}
		kept = append(kept, link)
	}
	s.links = kept
	s.index = make(map[linkKey]int, len(kept))
	for i, link := range kept {
		s.index[linkKey{source: link.Source, target: link.Target}] = i
	}
}

func (s *linkSet) list() []model.Link {
	return s.links
}

// nodeSet keeps nodes in emission order and counts each fact sheet once per node
type nodeSet struct {
	index map[string]int
	nodes []model.Node
	seen  map[string]map[string]bool // node name -> fact sheet ids counted
}

func newNodeSet() *nodeSet {
	return &nodeSet{
		index: make(map[string]int),
		seen:  make(map[string]map[string]bool),
	}
}

// add appends a node; a second node with the same name is ignored
func (s *nodeSet) add(node model.Node) {
	if _, ok := s.index[node.Name]; ok {
		return
	}
	s.index[node.Name] = len(s.nodes)
	s.nodes = append(s.nodes, node)
}

// ensureTag adds a node for a tag missing from the catalog's tag list
func (s *nodeSet) ensureTag(tag model.Tag) {
	s.add(model.Node{Name: model.TagNodeName(tag.ID), Label: tag.Name, Kind: model.NodeKindTag, Color: tag.Color})
}

// touch counts a fact sheet flowing into the node
func (s *nodeSet) touch(name, id string) {
	i, ok := s.index[name]
	if !ok {
		return
	}
	if s.seen[name] == nil {
		s.seen[name] = make(map[string]bool)
	}
	if s.seen[name][id] {
		return
	}
	s.seen[name][id] = true
	s.nodes[i].Value++
}

func (s *nodeSet) appendID(name, id string) {
	if i, ok := s.index[name]; ok {
		s.nodes[i].RecordIDs = append(s.nodes[i].RecordIDs, id)
	}
}

func (s *nodeSet) remove(name string) {
	i, ok := s.index[name]
	if !ok {
		return
	}
	s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
	delete(s.seen, name)
	s.index = make(map[string]int, len(s.nodes))
	for j, node := range s.nodes {
		s.index[node.Name] = j
	}
}

func (s *nodeSet) list() []model.Node {
	return s.nodes
}
