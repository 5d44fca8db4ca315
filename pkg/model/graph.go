package model

// NodeKind identifies the role of a node in the flow dataset
type NodeKind string

const (
	NodeKindFactSheetType NodeKind = "factSheetType"
	NodeKindTagGroup      NodeKind = "tagGroup"
	NodeKindTag           NodeKind = "tag"
	NodeKindMultiple      NodeKind = "multiple"
	NodeKindUntagged      NodeKind = "untagged"
)

// UntaggedNodeName is the name of the synthetic node collecting fact sheets
// that lack the selected tag group.
const UntaggedNodeName = "_UNTAGGED_"

// MultipleSuffix is appended to a tag group id to name its synthetic multiple node
const MultipleSuffix = "_MULTIPLE_"

// FactSheetTypeNodeName returns the root node name for a fact sheet type
func FactSheetTypeNodeName(factSheetType string) string {
	return "factSheetType:" + factSheetType
}

// TagGroupNodeName returns the node name for a tag group
func TagGroupNodeName(tagGroupID string) string {
	return "tagGroup:" + tagGroupID
}

// TagNodeName returns the node name for a tag
func TagNodeName(tagID string) string {
	return "tag:" + tagID
}

// MultipleNodeName returns the name of the multiple node of a tag group
func MultipleNodeName(tagGroupID string) string {
	return tagGroupID + MultipleSuffix
}

// Dataset is the aggregated flow graph handed to the chart.
// Node names are unique and double as link endpoints.
type Dataset struct {
	FactSheetType string `json:"factSheetType"`
	TagGroupID    string `json:"tagGroupId"`
	Nodes         []Node `json:"nodes"`
	Links         []Link `json:"links"`
	TotalCount    int    `json:"totalCount"`
	UntaggedCount int    `json:"untaggedCount"`
}

// Node represents a vertex in the flow graph
type Node struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Kind      NodeKind `json:"kind"`
	Color     string   `json:"color,omitempty"`
	Value     int      `json:"value"`
	RecordIDs []string `json:"recordIds,omitempty"`
	Depth     int      `json:"depth"` // column in the rendered diagram
}

// Link represents a weighted directed flow between two nodes
type Link struct {
	Source    string   `json:"source"`
	Target    string   `json:"target"`
	Value     int      `json:"value"`
	RecordIDs []string `json:"recordIds"`
}

// Node looks up a node by name
func (d *Dataset) Node(name string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].Name == name {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// Link looks up the link between two nodes
func (d *Dataset) Link(source, target string) (*Link, bool) {
	for i := range d.Links {
		if d.Links[i].Source == source && d.Links[i].Target == target {
			return &d.Links[i], true
		}
	}
	return nil, false
}

// Root returns the fact sheet type node
func (d *Dataset) Root() (*Node, bool) {
	return d.Node(FactSheetTypeNodeName(d.FactSheetType))
}

// LinksInto returns all links whose target is the given node, in dataset order
func (d *Dataset) LinksInto(name string) []Link {
	var links []Link
	for _, link := range d.Links {
		if link.Target == name {
			links = append(links, link)
		}
	}
	return links
}

// LinksFrom returns all links whose source is the given node, in dataset order
func (d *Dataset) LinksFrom(name string) []Link {
	var links []Link
	for _, link := range d.Links {
		if link.Source == name {
			links = append(links, link)
		}
	}
	return links
}
