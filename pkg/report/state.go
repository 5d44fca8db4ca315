// Package report holds the chart state controller: the report's current
// selection, the refresh pipeline that turns it into a dataset, and the host
// calls that keep the surrounding UI in sync.
package report

import (
	"context"

	"github.com/ritzau/tag-flow/pkg/model"
)

// State is the report's current selection
type State struct {
	FactSheetType string       `json:"factSheetType"`
	TagGroupID    string       `json:"tagGroupId"`
	Filter        model.Filter `json:"filter"`
	ShowUntagged  bool         `json:"showUntagged"`
}

// Equal compares two states field by field
func (s State) Equal(other State) bool {
	return s.FactSheetType == other.FactSheetType &&
		s.TagGroupID == other.TagGroupID &&
		s.ShowUntagged == other.ShowUntagged &&
		s.Filter.Equal(other.Filter)
}

// Custom returns the subset of the state the host persists
func (s State) Custom() model.CustomState {
	return model.CustomState{
		FactSheetType:          s.FactSheetType,
		ShowUntaggedFactSheets: s.ShowUntagged,
		SelectedTagGroupID:     s.TagGroupID,
	}
}

// Toast levels
const (
	ToastError   = "error"
	ToastWarning = "warning"
)

// Host is the environment the report runs in
type Host interface {
	// LoadCustomState returns the persisted state, or nil when there is none
	LoadCustomState(ctx context.Context) (*model.CustomState, error)
	PublishCustomState(ctx context.Context, state model.CustomState) error
	UpdateTagGroupOptions(ctx context.Context, options []model.SelectOption) error
	ShowToast(ctx context.Context, level, message string)
	ShowSpinner(ctx context.Context)
	HideSpinner(ctx context.Context)
}
