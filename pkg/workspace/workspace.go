// Package workspace reads workspace exports: the fact sheet type and tag group
// catalog, and fact sheet snapshots used for offline aggregation.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ritzau/tag-flow/pkg/catalog"
	"github.com/ritzau/tag-flow/pkg/model"
)

// Export is the on-disk workspace metadata format
type Export struct {
	FactSheetTypes []model.FactSheetType `json:"factSheetTypes"`
	TagGroups      []model.TagGroup      `json:"tagGroups"`
	Tags           []model.Tag           `json:"tags"` // ungrouped tags
}

// LoadCatalog reads a workspace export and builds the per-type tag group catalog
func LoadCatalog(path string) (*catalog.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workspace %s: %w", path, err)
	}
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parsing workspace %s: %w", path, err)
	}
	return BuildCatalog(&export), nil
}

// BuildCatalog indexes tag groups by the fact sheet types they apply to.
// Ungrouped tags form a synthetic MULTIPLE tag group offered for every type.
// Types without any tag group get no catalog entry.
func BuildCatalog(export *Export) *catalog.Catalog {
	cat := &catalog.Catalog{
		FactSheetTypes: export.FactSheetTypes,
		TagGroups:      make(map[string][]model.TagGroup),
	}

	groups := make([]model.TagGroup, 0, len(export.TagGroups)+1)
	for _, g := range export.TagGroups {
		g.Tags = withBackReference(g.Tags, &model.TagGroupRef{ID: g.ID})
		if g.Mode == "" {
			g.Mode = model.TagGroupModeSingle
		}
		groups = append(groups, g)
	}
	if len(export.Tags) > 0 {
		groups = append(groups, model.TagGroup{
			ID:   model.UngroupedTagGroupID,
			Name: model.UngroupedTagGroupName,
			Mode: model.TagGroupModeMultiple,
			Tags: withBackReference(export.Tags, nil),
		})
	}

	for _, t := range export.FactSheetTypes {
		for _, g := range groups {
			if g.AppliesTo(t.Name) {
				cat.TagGroups[t.Name] = append(cat.TagGroups[t.Name], g)
			}
		}
	}

	return cat
}

func withBackReference(tags []model.Tag, ref *model.TagGroupRef) []model.Tag {
	out := make([]model.Tag, len(tags))
	for i, tag := range tags {
		tag.TagGroup = ref
		if tag.Status == "" {
			tag.Status = model.TagStatusActive
		}
		out[i] = tag
	}
	return out
}

// LoadFactSheets reads a fact sheet snapshot (a JSON array)
func LoadFactSheets(path string) ([]model.FactSheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fact sheets %s: %w", path, err)
	}
	var factSheets []model.FactSheet
	if err := json.Unmarshal(data, &factSheets); err != nil {
		return nil, fmt.Errorf("parsing fact sheets %s: %w", path, err)
	}
	return factSheets, nil
}
