package dataset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/tag-flow/pkg/model"
)

func tagOf(group, id string) model.Tag {
	return model.Tag{ID: id, Name: id, TagGroup: &model.TagGroupRef{ID: group}}
}

func criticality() *model.TagGroup {
	return &model.TagGroup{
		ID:   "crit",
		Name: "Criticality",
		Mode: model.TagGroupModeSingle,
		Tags: []model.Tag{tagOf("crit", "High"), tagOf("crit", "Low")},
	}
}

func hosting() *model.TagGroup {
	return &model.TagGroup{
		ID:   "host",
		Name: "Hosting",
		Mode: model.TagGroupModeMultiple,
		Tags: []model.Tag{tagOf("host", "A"), tagOf("host", "B")},
	}
}

func nodeNames(ds *model.Dataset) []string {
	names := make([]string, 0, len(ds.Nodes))
	for _, n := range ds.Nodes {
		names = append(names, n.Name)
	}
	return names
}

func rootOutflow(ds *model.Dataset) int {
	total := 0
	for _, link := range ds.LinksFrom(model.FactSheetTypeNodeName(ds.FactSheetType)) {
		total += link.Value
	}
	return total
}

func TestAggregateSingleModeScenario(t *testing.T) {
	in := Input{
		FactSheetType: "Application",
		TagGroup:      criticality(),
		TotalCount:    3,
		Tagged: []model.FactSheet{
			{ID: "1", Tags: []model.Tag{tagOf("crit", "High")}},
			{ID: "2", Tags: []model.Tag{tagOf("crit", "Low")}},
			{ID: "3"},
		},
		UntaggedCount: 1,
		UntaggedIDs:   []string{"3"},
		ShowUntagged:  true,
	}

	ds, err := Aggregate(in)
	require.NoError(t, err)

	root := model.FactSheetTypeNodeName("Application")
	group := model.TagGroupNodeName("crit")
	high := model.TagNodeName("High")
	low := model.TagNodeName("Low")

	assert.Equal(t, []string{root, group, high, low, model.UntaggedNodeName}, nodeNames(ds))

	link, ok := ds.Link(root, group)
	require.True(t, ok)
	assert.Equal(t, 2, link.Value)
	assert.Equal(t, []string{"1", "2"}, link.RecordIDs)

	link, ok = ds.Link(group, high)
	require.True(t, ok)
	assert.Equal(t, 1, link.Value)
	assert.Equal(t, []string{"1"}, link.RecordIDs)

	link, ok = ds.Link(group, low)
	require.True(t, ok)
	assert.Equal(t, 1, link.Value)
	assert.Equal(t, []string{"2"}, link.RecordIDs)

	link, ok = ds.Link(root, model.UntaggedNodeName)
	require.True(t, ok)
	assert.Equal(t, 1, link.Value)

	assert.Len(t, ds.Links, 4)
	assert.Equal(t, 3, rootOutflow(ds))
	assert.LessOrEqual(t, rootOutflow(ds), in.TotalCount)
}

func TestAggregateMultipleModeScenario(t *testing.T) {
	ds, err := Aggregate(Input{
		FactSheetType: "Application",
		TagGroup:      hosting(),
		TotalCount:    1,
		Tagged: []model.FactSheet{
			{ID: "9", Tags: []model.Tag{tagOf("host", "A"), tagOf("host", "B")}},
		},
	})
	require.NoError(t, err)

	root := model.FactSheetTypeNodeName("Application")
	group := model.TagGroupNodeName("host")
	multiple := model.MultipleNodeName("host")

	node, ok := ds.Node(multiple)
	require.True(t, ok)
	assert.Equal(t, model.NodeKindMultiple, node.Kind)
	assert.Equal(t, 1, node.Value)
	assert.Equal(t, []string{"9"}, node.RecordIDs)

	link, ok := ds.Link(root, group)
	require.True(t, ok)
	assert.Equal(t, 1, link.Value)
	assert.Equal(t, []string{"9"}, link.RecordIDs)

	link, ok = ds.Link(group, multiple)
	require.True(t, ok)
	assert.Equal(t, 1, link.Value)

	for _, tag := range []string{"A", "B"} {
		link, ok = ds.Link(multiple, model.TagNodeName(tag))
		require.True(t, ok, "missing multiple -> %s", tag)
		assert.Equal(t, 1, link.Value)
		assert.Equal(t, []string{"9"}, link.RecordIDs)
	}

	_, ok = ds.Link(group, model.TagNodeName("A"))
	assert.False(t, ok, "multi-tagged fact sheet must not flow directly from the group to a tag")
}

func TestAggregateDropsUnusedMultipleNode(t *testing.T) {
	ds, err := Aggregate(Input{
		FactSheetType: "Application",
		TagGroup:      hosting(),
		Tagged: []model.FactSheet{
			{ID: "1", Tags: []model.Tag{tagOf("host", "A")}},
		},
	})
	require.NoError(t, err)

	_, ok := ds.Node(model.MultipleNodeName("host"))
	assert.False(t, ok)
	for _, link := range ds.Links {
		assert.NotEqual(t, model.MultipleNodeName("host"), link.Source)
		assert.NotEqual(t, model.MultipleNodeName("host"), link.Target)
	}
}

func TestAggregateSingleModeRecordWithSeveralTags(t *testing.T) {
	ds, err := Aggregate(Input{
		FactSheetType: "Application",
		TagGroup:      criticality(),
		TotalCount:    2,
		Tagged: []model.FactSheet{
			{ID: "1", Tags: []model.Tag{tagOf("crit", "High")}},
			{ID: "9", Tags: []model.Tag{tagOf("crit", "High"), tagOf("crit", "Low")}},
		},
	})
	require.NoError(t, err)

	root := model.FactSheetTypeNodeName("Application")
	group := model.TagGroupNodeName("crit")
	multiple := model.MultipleNodeName("crit")

	// Added after the catalog's tags since SINGLE groups do not pre-allocate it
	assert.Equal(t, []string{root, group, model.TagNodeName("High"), model.TagNodeName("Low"), multiple}, nodeNames(ds))

	link, ok := ds.Link(root, group)
	require.True(t, ok)
	assert.Equal(t, []string{"1", "9"}, link.RecordIDs)

	link, ok = ds.Link(group, multiple)
	require.True(t, ok)
	assert.Equal(t, []string{"9"}, link.RecordIDs)

	_, ok = ds.Link(group, model.TagNodeName("Low"))
	assert.False(t, ok, "several tags never flow straight from the group")

	for _, tag := range []string{"High", "Low"} {
		link, ok = ds.Link(multiple, model.TagNodeName(tag))
		require.True(t, ok, tag)
		assert.Equal(t, []string{"9"}, link.RecordIDs)
	}

	node, _ := ds.Node(multiple)
	assert.Equal(t, 1, node.Value)
	assert.Equal(t, []string{"9"}, node.RecordIDs)

	// The group passes on exactly what it receives
	out := 0
	for _, l := range ds.LinksFrom(group) {
		out += l.Value
	}
	assert.Equal(t, 2, out)
	assert.Equal(t, 2, rootOutflow(ds))
}

func TestAggregateMixedMultiple(t *testing.T) {
	ds, err := Aggregate(Input{
		FactSheetType: "Application",
		TagGroup:      hosting(),
		Tagged: []model.FactSheet{
			{ID: "1", Tags: []model.Tag{tagOf("host", "A")}},
			{ID: "2", Tags: []model.Tag{tagOf("host", "A"), tagOf("host", "B"), tagOf("crit", "High")}},
			{ID: "3", Tags: []model.Tag{tagOf("host", "B"), tagOf("host", "A")}},
		},
	})
	require.NoError(t, err)

	root := model.FactSheetTypeNodeName("Application")
	group := model.TagGroupNodeName("host")
	multiple := model.MultipleNodeName("host")

	// Single and multiple fact sheets share the root -> group link
	link, _ := ds.Link(root, group)
	assert.Equal(t, 3, link.Value)
	assert.Equal(t, []string{"1", "2", "3"}, link.RecordIDs)

	link, _ = ds.Link(group, multiple)
	assert.Equal(t, 2, link.Value)

	node, _ := ds.Node(multiple)
	assert.Equal(t, []string{"2", "3"}, node.RecordIDs)

	link, _ = ds.Link(multiple, model.TagNodeName("A"))
	assert.Equal(t, []string{"2", "3"}, link.RecordIDs)

	// Tag node value counts each fact sheet once across single and multiple paths
	node, _ = ds.Node(model.TagNodeName("A"))
	assert.Equal(t, 3, node.Value)

	// Link order follows first contribution
	var order []string
	for _, l := range ds.Links {
		order = append(order, l.Source+">"+l.Target)
	}
	assert.Equal(t, []string{
		root + ">" + group,
		group + ">" + model.TagNodeName("A"),
		group + ">" + multiple,
		multiple + ">" + model.TagNodeName("A"),
		multiple + ">" + model.TagNodeName("B"),
	}, order)
}

func TestAggregateHidesUntagged(t *testing.T) {
	ds, err := Aggregate(Input{
		FactSheetType: "Application",
		TagGroup:      criticality(),
		UntaggedCount: 5,
		ShowUntagged:  false,
	})
	require.NoError(t, err)

	_, ok := ds.Node(model.UntaggedNodeName)
	assert.False(t, ok)
	assert.Empty(t, ds.Links)

	// Shown but empty
	ds, err = Aggregate(Input{FactSheetType: "Application", TagGroup: criticality(), ShowUntagged: true})
	require.NoError(t, err)
	_, ok = ds.Node(model.UntaggedNodeName)
	assert.False(t, ok)
}

func TestAggregateUngroupedSentinel(t *testing.T) {
	other := &model.TagGroup{
		ID:   model.UngroupedTagGroupID,
		Name: model.UngroupedTagGroupName,
		Mode: model.TagGroupModeMultiple,
		Tags: []model.Tag{{ID: "legacy", Name: "Legacy"}},
	}

	ds, err := Aggregate(Input{
		FactSheetType: "Application",
		TagGroup:      other,
		Tagged: []model.FactSheet{
			{ID: "1", Tags: []model.Tag{{ID: "legacy", Name: "Legacy"}, tagOf("crit", "High")}},
		},
	})
	require.NoError(t, err)

	link, ok := ds.Link(model.TagGroupNodeName(model.UngroupedTagGroupID), model.TagNodeName("legacy"))
	require.True(t, ok)
	assert.Equal(t, []string{"1"}, link.RecordIDs)
}

func TestAggregateUnknownTagGetsNode(t *testing.T) {
	ds, err := Aggregate(Input{
		FactSheetType: "Application",
		TagGroup:      criticality(),
		Tagged: []model.FactSheet{
			{ID: "1", Tags: []model.Tag{tagOf("crit", "Medium")}},
		},
	})
	require.NoError(t, err)

	node, ok := ds.Node(model.TagNodeName("Medium"))
	require.True(t, ok)
	assert.Equal(t, model.NodeKindTag, node.Kind)
	assert.Equal(t, 1, node.Value)
}

func TestAggregateMissingSelection(t *testing.T) {
	_, err := Aggregate(Input{TagGroup: criticality()})
	assert.ErrorIs(t, err, ErrMissingSelection)

	_, err = Aggregate(Input{FactSheetType: "Application"})
	assert.ErrorIs(t, err, ErrMissingSelection)
}

func TestAggregateIdempotent(t *testing.T) {
	in := Input{
		FactSheetType: "Application",
		TagGroup:      hosting(),
		Tagged: []model.FactSheet{
			{ID: "1", Tags: []model.Tag{tagOf("host", "A")}},
			{ID: "2", Tags: []model.Tag{tagOf("host", "A"), tagOf("host", "B")}},
		},
		UntaggedCount: 2,
		UntaggedIDs:   []string{"3", "4"},
		ShowUntagged:  true,
	}

	first, err := Aggregate(in)
	require.NoError(t, err)
	second, err := Aggregate(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAggregateProperties(t *testing.T) {
	group := hosting()
	var tagged []model.FactSheet
	withScoped := 0
	for i := 0; i < 40; i++ {
		var tags []model.Tag
		if i%2 == 0 {
			tags = append(tags, tagOf("host", "A"))
		}
		if i%3 == 0 {
			tags = append(tags, tagOf("host", "B"))
		}
		if i%5 == 0 {
			tags = append(tags, tagOf("crit", "High"))
		}
		if i%2 == 0 || i%3 == 0 {
			withScoped++
		}
		tagged = append(tagged, model.FactSheet{ID: fmt.Sprintf("fs-%d", i), Tags: tags})
	}

	for _, showUntagged := range []bool{false, true} {
		ds, err := Aggregate(Input{
			FactSheetType: "Application",
			TagGroup:      group,
			TotalCount:    len(tagged),
			Tagged:        tagged,
			UntaggedCount: 7,
			ShowUntagged:  showUntagged,
		})
		require.NoError(t, err)

		want := withScoped
		if showUntagged {
			want += 7
		}
		assert.Equal(t, want, rootOutflow(ds))

		names := map[string]bool{}
		for _, n := range ds.Nodes {
			assert.False(t, names[n.Name], "duplicate node %s", n.Name)
			names[n.Name] = true
		}

		for _, link := range ds.Links {
			assert.True(t, names[link.Source], "dangling source %s", link.Source)
			assert.True(t, names[link.Target], "dangling target %s", link.Target)
			if link.Target != model.UntaggedNodeName {
				assert.Equal(t, link.Value, len(link.RecordIDs), "%s -> %s", link.Source, link.Target)
			}
		}

		// Each fact sheet appears once in the multiple node and once per scoped tag below it
		multiple, ok := ds.Node(model.MultipleNodeName("host"))
		require.True(t, ok)
		counts := map[string]int{}
		for _, id := range multiple.RecordIDs {
			counts[id]++
		}
		for id, n := range counts {
			assert.Equal(t, 1, n, "fact sheet %s counted %d times in multiple node", id, n)
		}
		perTag := map[string]int{}
		for _, link := range ds.LinksFrom(multiple.Name) {
			for _, id := range link.RecordIDs {
				perTag[id]++
			}
		}
		for id := range counts {
			assert.Equal(t, 2, perTag[id], "fact sheet %s should flow to both tags", id)
		}
	}
}

func TestAggregateSingleTagAppearsInTwoLinks(t *testing.T) {
	ds, err := Aggregate(Input{
		FactSheetType: "Application",
		TagGroup:      criticality(),
		Tagged: []model.FactSheet{
			{ID: "1", Tags: []model.Tag{tagOf("crit", "High")}},
			{ID: "2", Tags: []model.Tag{tagOf("crit", "Low")}},
		},
	})
	require.NoError(t, err)

	occurrences := map[string]int{}
	for _, link := range ds.Links {
		for _, id := range link.RecordIDs {
			occurrences[id]++
		}
	}
	assert.Equal(t, map[string]int{"1": 2, "2": 2}, occurrences)
}

func TestAggregateDuplicateTagAssignment(t *testing.T) {
	ds, err := Aggregate(Input{
		FactSheetType: "Application",
		TagGroup:      hosting(),
		Tagged: []model.FactSheet{
			{ID: "1", Tags: []model.Tag{tagOf("host", "A"), tagOf("host", "A")}},
		},
	})
	require.NoError(t, err)

	_, ok := ds.Node(model.MultipleNodeName("host"))
	assert.False(t, ok, "the same tag twice is still a single tag")
}
