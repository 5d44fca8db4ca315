package model

// TagGroupMode controls how many tags of a tag group a fact sheet may carry
type TagGroupMode string

const (
	TagGroupModeSingle   TagGroupMode = "SINGLE"
	TagGroupModeMultiple TagGroupMode = "MULTIPLE"
)

// TagStatus is the lifecycle status of a tag
type TagStatus string

const (
	TagStatusActive   TagStatus = "ACTIVE"
	TagStatusArchived TagStatus = "ARCHIVED"
)

// UngroupedTagGroupID identifies the synthetic tag group that collects tags
// which do not belong to any tag group.
const UngroupedTagGroupID = "__ungrouped__"

// UngroupedTagGroupName is the display name of the synthetic ungrouped tag group
const UngroupedTagGroupName = "Other tags"

// TagGroupRef is the back-reference from a tag to its owning tag group
type TagGroupRef struct {
	ID string `json:"id"`
}

// Tag is a single classification value
type Tag struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Color    string       `json:"color,omitempty"`
	Status   TagStatus    `json:"status,omitempty"`
	TagGroup *TagGroupRef `json:"tagGroup"` // nil for ungrouped tags
}

// BelongsTo reports whether the tag is scoped to the given tag group.
// Ungrouped tags belong to the UngroupedTagGroupID sentinel.
func (t Tag) BelongsTo(tagGroupID string) bool {
	if t.TagGroup == nil {
		return tagGroupID == UngroupedTagGroupID
	}
	return t.TagGroup.ID == tagGroupID
}

// TagGroup is a named category with an enumerated set of tags
type TagGroup struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	ShortName string       `json:"shortName,omitempty"`
	Mode      TagGroupMode `json:"mode"`
	Tags      []Tag        `json:"tags"`

	// Fill is the display color assigned by the catalog resolver
	Fill string `json:"fill,omitempty"`

	// RestrictToFactSheetTypes limits the group to some fact sheet types.
	// Empty means the group applies to every type.
	RestrictToFactSheetTypes []string `json:"restrictToFactSheetTypes,omitempty"`
}

// AppliesTo returns true if the tag group may be used for the given fact sheet type
func (g *TagGroup) AppliesTo(factSheetType string) bool {
	if len(g.RestrictToFactSheetTypes) == 0 {
		return true
	}
	for _, t := range g.RestrictToFactSheetTypes {
		if t == factSheetType {
			return true
		}
	}
	return false
}

// FactSheetType describes a record type known to the workspace
type FactSheetType struct {
	Name    string `json:"name"`
	BgColor string `json:"bgColor,omitempty"`
	Color   string `json:"color,omitempty"`
}

// FactSheet is a business object fetched from the host data graph
type FactSheet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Tags []Tag  `json:"tags"`
}

// ScopedTags returns the fact sheet's tags that belong to the given tag group,
// preserving assignment order.
func (fs *FactSheet) ScopedTags(tagGroupID string) []Tag {
	var scoped []Tag
	for _, tag := range fs.Tags {
		if tag.BelongsTo(tagGroupID) {
			scoped = append(scoped, tag)
		}
	}
	return scoped
}

// FacetFilter restricts fact sheets by facet keys (e.g. tag ids)
type FacetFilter struct {
	FacetKey string   `json:"facetKey"`
	Operator string   `json:"operator,omitempty"` // "OR", "AND" or "NOR"
	Keys     []string `json:"keys"`
}

// Filter is the ambient fact sheet filter set by the host
type Filter struct {
	FacetFilters       []FacetFilter `json:"facetFilters,omitempty"`
	FullTextSearchTerm string        `json:"fullTextSearchTerm,omitempty"`
	DirectHits         []string      `json:"directHits,omitempty"`
}

// Equal compares two filters field by field
func (f Filter) Equal(other Filter) bool {
	if f.FullTextSearchTerm != other.FullTextSearchTerm {
		return false
	}
	if !equalStrings(f.DirectHits, other.DirectHits) {
		return false
	}
	if len(f.FacetFilters) != len(other.FacetFilters) {
		return false
	}
	for i := range f.FacetFilters {
		a, b := f.FacetFilters[i], other.FacetFilters[i]
		if a.FacetKey != b.FacetKey || a.Operator != b.Operator || !equalStrings(a.Keys, b.Keys) {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
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

// CustomState is the report state persisted by the host
type CustomState struct {
	FactSheetType          string `json:"factSheetType,omitempty"`
	ShowUntaggedFactSheets bool   `json:"showUntaggedFactSheets"`
	SelectedTagGroupID     string `json:"selectedTagGroupId,omitempty"`
}

// SelectOption is an id/label pair for host selector widgets
type SelectOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
