// Package catalog resolves which tag groups can be used to aggregate a fact sheet type
// and assigns each of them a display color.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/ritzau/tag-flow/pkg/logging"
	"github.com/ritzau/tag-flow/pkg/model"
)

var (
	// ErrUnknownRecordType is returned when the fact sheet type is not in the workspace
	ErrUnknownRecordType = errors.New("unknown fact sheet type")

	// ErrMissingDimensionCatalog is returned when there is no tag group entry for the type
	ErrMissingDimensionCatalog = errors.New("no tag group catalog for fact sheet type")
)

// Default gradient endpoints
const (
	DefaultStartColor = "#2889ff"
	DefaultEndColor   = "#fed9d1"
)

// Catalog is the workspace metadata provided by the host
type Catalog struct {
	FactSheetTypes []model.FactSheetType       `json:"factSheetTypes"`
	TagGroups      map[string][]model.TagGroup `json:"tagGroups"` // fact sheet type -> tag groups
}

// FactSheetType looks up a fact sheet type by name
func (c *Catalog) FactSheetType(name string) (model.FactSheetType, bool) {
	for _, t := range c.FactSheetTypes {
		if t.Name == name {
			return t, true
		}
	}
	return model.FactSheetType{}, false
}

// Resolver assigns tag group fills by sampling a gradient in LCh space
type Resolver struct {
	start  colorful.Color
	end    colorful.Color
	logger *slog.Logger
}

// NewResolver creates a resolver for the given gradient endpoints (hex colors)
func NewResolver(startHex, endHex string) (*Resolver, error) {
	start, err := colorful.Hex(startHex)
	if err != nil {
		return nil, fmt.Errorf("invalid gradient start color %q: %w", startHex, err)
	}
	end, err := colorful.Hex(endHex)
	if err != nil {
		return nil, fmt.Errorf("invalid gradient end color %q: %w", endHex, err)
	}
	return &Resolver{
		start:  start,
		end:    end,
		logger: logging.New("catalog"),
	}, nil
}

// NewDefaultResolver creates a resolver with the built-in gradient
func NewDefaultResolver() *Resolver {
	r, err := NewResolver(DefaultStartColor, DefaultEndColor)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the tag groups valid for a fact sheet type, sorted by name.
// Tag groups without tags are dropped. Fills depend on the alphabetical rank within
// the valid set, so they shift when tag groups are added or removed.
func (r *Resolver) Resolve(factSheetType string, cat *Catalog) ([]model.TagGroup, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecordType, factSheetType)
	}
	if _, ok := cat.FactSheetType(factSheetType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecordType, factSheetType)
	}

	groups, ok := cat.TagGroups[factSheetType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingDimensionCatalog, factSheetType)
	}

	valid := make([]model.TagGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.Tags) == 0 {
			r.logger.Warn("skipping tag group without tags", "tagGroup", g.Name, "id", g.ID, "factSheetType", factSheetType)
			continue
		}
		valid = append(valid, g)
	}

	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: %s has no tag group with tags", ErrMissingDimensionCatalog, factSheetType)
	}

	sortByName(valid)
	fills := r.Gradient(len(valid))
	for i := range valid {
		valid[i].Fill = fills[i]
	}
	sortByName(valid)

	r.logger.Debug("resolved tag groups", "factSheetType", factSheetType, "valid", len(valid), "total", len(groups))
	return valid, nil
}

// Gradient samples n evenly spaced hex colors from start to end.
// A single sample is the start color.
func (r *Resolver) Gradient(n int) []string {
	colors := make([]string, n)
	for i := 0; i < n; i++ {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		colors[i] = r.start.BlendHcl(r.end, t).Clamped().Hex()
	}
	return colors
}

// Options converts tag groups into id/label pairs for the host's selector
func Options(groups []model.TagGroup) []model.SelectOption {
	options := make([]model.SelectOption, 0, len(groups))
	for _, g := range groups {
		options = append(options, model.SelectOption{ID: g.ID, Label: g.Name})
	}
	return options
}

// Find returns the tag group with the given id
func Find(groups []model.TagGroup, id string) (*model.TagGroup, bool) {
	for i := range groups {
		if groups[i].ID == id {
			return &groups[i], true
		}
	}
	return nil, false
}

func sortByName(groups []model.TagGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Name < groups[j].Name
	})
}
