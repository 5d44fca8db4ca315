// Package fetch retrieves tagged fact sheets for an aggregation pass.
package fetch

import (
	"context"

	"github.com/ritzau/tag-flow/pkg/model"
)

// MissingKey is the facet key selecting fact sheets without any tag of a group
const MissingKey = "__missing__"

// FactSheetTypeFacet is the facet key restricting fact sheets by type
const FactSheetTypeFacet = "FactSheetTypes"

// Query describes one fetch
type Query struct {
	FactSheetType  string
	TagGroupID     string
	Filter         model.Filter
	IncludeMissing bool // also fetch fact sheets missing the tag group
}

// Result holds the fact sheets matching the filter and, when requested, the
// subset of them missing the tag group
type Result struct {
	Total        int               `json:"total"`
	FactSheets   []model.FactSheet `json:"factSheets"`
	MissingTotal int               `json:"missingTotal"`
	Missing      []model.FactSheet `json:"missing"`
}

// MissingIDs returns the ids of the missing fact sheets
func (r *Result) MissingIDs() []string {
	ids := make([]string, 0, len(r.Missing))
	for _, fs := range r.Missing {
		ids = append(ids, fs.ID)
	}
	return ids
}

// Fetcher loads fact sheets from the host data graph
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (*Result, error)
}

// missingFrom derives the missing subset locally: fact sheets with no tag of the group
func missingFrom(factSheets []model.FactSheet, tagGroupID string) []model.FactSheet {
	var missing []model.FactSheet
	for i := range factSheets {
		if len(factSheets[i].ScopedTags(tagGroupID)) == 0 {
			missing = append(missing, factSheets[i])
		}
	}
	return missing
}
