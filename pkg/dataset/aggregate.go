// Package dataset turns fetched fact sheets into the node/link flow dataset
// rendered by the Sankey chart.
//
// The flow for a fact sheet type T and tag group G looks like:
//
//	T -> G -> tag                  fact sheets with exactly one tag of G
//	T -> G -> G_MULTIPLE_ -> tag   fact sheets with several tags of G (one link per tag)
//	T -> _UNTAGGED_                fact sheets missing G (optional)
package dataset

import (
	"errors"
	"fmt"

	"github.com/ritzau/tag-flow/pkg/model"
)

// ErrMissingSelection is returned when no fact sheet type or tag group is selected
var ErrMissingSelection = errors.New("missing selection")

// UntaggedLabel is the display label of the untagged node
const UntaggedLabel = "Untagged"

// MultipleLabel is the display label of the multiple node
const MultipleLabel = "Multiple tags"

// Input is everything one aggregation pass needs
type Input struct {
	FactSheetType string
	TagGroup      *model.TagGroup
	TotalCount    int
	Tagged        []model.FactSheet // all fact sheets matching the filter

	UntaggedCount int      // fact sheets missing the tag group
	UntaggedIDs   []string // their ids, when the fetch returned them
	ShowUntagged  bool
}

// Aggregate builds the flow dataset. It is a pure function of its input.
func Aggregate(in Input) (*model.Dataset, error) {
	if in.FactSheetType == "" {
		return nil, fmt.Errorf("%w: fact sheet type", ErrMissingSelection)
	}
	if in.TagGroup == nil {
		return nil, fmt.Errorf("%w: tag group", ErrMissingSelection)
	}

	group := in.TagGroup
	rootName := model.FactSheetTypeNodeName(in.FactSheetType)
	groupName := model.TagGroupNodeName(group.ID)
	multipleName := model.MultipleNodeName(group.ID)

	nodes := newNodeSet()
	nodes.add(model.Node{Name: rootName, Label: in.FactSheetType, Kind: model.NodeKindFactSheetType})
	nodes.add(model.Node{Name: groupName, Label: group.Name, Kind: model.NodeKindTagGroup, Color: group.Fill})
	for _, tag := range group.Tags {
		nodes.add(model.Node{Name: model.TagNodeName(tag.ID), Label: tag.Name, Kind: model.NodeKindTag, Color: tag.Color})
	}

	multipleNode := model.Node{Name: multipleName, Label: MultipleLabel, Kind: model.NodeKindMultiple, Color: group.Fill, RecordIDs: []string{}}
	multiple := group.Mode == model.TagGroupModeMultiple
	if multiple {
		nodes.add(multipleNode)
	}

	links := newLinkSet()

	if in.ShowUntagged && in.UntaggedCount > 0 {
		nodes.add(model.Node{
			Name:      model.UntaggedNodeName,
			Label:     UntaggedLabel,
			Kind:      model.NodeKindUntagged,
			Value:     in.UntaggedCount,
			RecordIDs: append([]string(nil), in.UntaggedIDs...),
		})
		links.setAggregate(rootName, model.UntaggedNodeName, in.UntaggedCount, in.UntaggedIDs)
	}

	usedMultiple := false
	for _, fs := range in.Tagged {
		scoped := dedupeTags(fs.ScopedTags(group.ID))

		switch {
		case len(scoped) == 0:
			continue

		case len(scoped) == 1:
			tag := scoped[0]
			tagName := model.TagNodeName(tag.ID)
			nodes.ensureTag(tag)
			links.add(rootName, groupName, fs.ID)
			nodes.touch(groupName, fs.ID)
			links.add(groupName, tagName, fs.ID)
			nodes.touch(tagName, fs.ID)

		default:
			// A SINGLE tag group carrying several tags is a data error upstream.
			// It flows through the multiple node like any other, added on first use.
			nodes.add(multipleNode)
			usedMultiple = true
			links.add(rootName, groupName, fs.ID)
			nodes.touch(groupName, fs.ID)
			links.add(groupName, multipleName, fs.ID)
			nodes.touch(multipleName, fs.ID)
			nodes.appendID(multipleName, fs.ID)
			for _, tag := range scoped {
				tagName := model.TagNodeName(tag.ID)
				nodes.ensureTag(tag)
				links.add(multipleName, tagName, fs.ID)
				nodes.touch(tagName, fs.ID)
			}
		}
	}

	if multiple && !usedMultiple {
		nodes.remove(multipleName)
		links.removeTouching(multipleName)
	}

	return &model.Dataset{
		FactSheetType: in.FactSheetType,
		TagGroupID:    group.ID,
		Nodes:         nodes.list(),
		Links:         links.list(),
		TotalCount:    in.TotalCount,
		UntaggedCount: in.UntaggedCount,
	}, nil
}

// dedupeTags drops repeated assignments of the same tag
func dedupeTags(tags []model.Tag) []model.Tag {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]bool, len(tags))
	out := tags[:0:0]
	for _, tag := range tags {
		if seen[tag.ID] {
			continue
		}
		seen[tag.ID] = true
		out = append(out, tag)
	}
	return out
}
