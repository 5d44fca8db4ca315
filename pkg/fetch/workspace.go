package fetch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ritzau/tag-flow/pkg/logging"
	"github.com/ritzau/tag-flow/pkg/model"
)

// WorkspaceFetcher answers queries from an in-memory fact sheet snapshot,
// applying the same filter semantics as the host
type WorkspaceFetcher struct {
	factSheets []model.FactSheet
	logger     *slog.Logger
}

// NewWorkspaceFetcher creates a fetcher over a fact sheet snapshot
func NewWorkspaceFetcher(factSheets []model.FactSheet) *WorkspaceFetcher {
	return &WorkspaceFetcher{
		factSheets: factSheets,
		logger:     logging.New("fetch.workspace"),
	}
}

func (f *WorkspaceFetcher) Fetch(ctx context.Context, q Query) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var matching []model.FactSheet
	for _, fs := range f.factSheets {
		if fs.Type == q.FactSheetType && matches(fs, q.Filter) {
			matching = append(matching, fs)
		}
	}

	result := &Result{Total: len(matching), FactSheets: matching}
	if q.IncludeMissing {
		result.Missing = missingFrom(matching, q.TagGroupID)
		result.MissingTotal = len(result.Missing)
	}

	f.logger.Debug("fetched from snapshot", "factSheetType", q.FactSheetType, "total", result.Total, "missing", result.MissingTotal)
	return result, nil
}

func matches(fs model.FactSheet, filter model.Filter) bool {
	if len(filter.DirectHits) > 0 && !contains(filter.DirectHits, fs.ID) {
		return false
	}
	if term := strings.TrimSpace(filter.FullTextSearchTerm); term != "" {
		if !strings.Contains(strings.ToLower(fs.Name), strings.ToLower(term)) {
			return false
		}
	}
	for _, facet := range filter.FacetFilters {
		if !matchesFacet(fs, facet) {
			return false
		}
	}
	return true
}

// matchesFacet treats the facet key as a tag group id and the keys as tag ids
func matchesFacet(fs model.FactSheet, facet model.FacetFilter) bool {
	if facet.FacetKey == FactSheetTypeFacet {
		return len(facet.Keys) == 0 || contains(facet.Keys, fs.Type)
	}
	if len(facet.Keys) == 0 {
		return true
	}

	scoped := fs.ScopedTags(facet.FacetKey)
	has := func(key string) bool {
		if key == MissingKey {
			return len(scoped) == 0
		}
		for _, tag := range scoped {
			if tag.ID == key {
				return true
			}
		}
		return false
	}

	switch strings.ToUpper(facet.Operator) {
	case "AND":
		for _, key := range facet.Keys {
			if !has(key) {
				return false
			}
		}
		return true
	case "NOR":
		for _, key := range facet.Keys {
			if has(key) {
				return false
			}
		}
		return true
	default: // OR
		for _, key := range facet.Keys {
			if has(key) {
				return true
			}
		}
		return false
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
