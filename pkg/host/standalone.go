// Package host provides the environment the report runs in when it is not
// embedded in a workspace UI: state is kept in a JSON file and UI calls are
// forwarded to pub/sub topics for the browser.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ritzau/tag-flow/pkg/logging"
	"github.com/ritzau/tag-flow/pkg/model"
	"github.com/ritzau/tag-flow/pkg/pubsub"
)

// Standalone implements report.Host on top of a state file and a publisher
type Standalone struct {
	statePath string // empty keeps state in memory only
	publisher pubsub.Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	state   *model.CustomState
	options []model.SelectOption
	busy    int
}

// NewStandalone creates a host persisting state at statePath
func NewStandalone(statePath string, publisher pubsub.Publisher) *Standalone {
	return &Standalone{
		statePath: statePath,
		publisher: publisher,
		logger:    logging.New("host"),
	}
}

func (h *Standalone) LoadCustomState(ctx context.Context) (*model.CustomState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != nil {
		state := *h.state
		return &state, nil
	}
	if h.statePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(h.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		h.logger.DebugContext(ctx, "no saved state", "path", h.statePath)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var state model.CustomState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state %s: %w", h.statePath, err)
	}
	h.state = &state

	h.logger.InfoContext(ctx, "loaded saved state", "path", h.statePath, "factSheetType", state.FactSheetType)
	result := state
	return &result, nil
}

func (h *Standalone) PublishCustomState(ctx context.Context, state model.CustomState) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.statePath != "" {
		if err := writeJSON(h.statePath, state); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
	}
	h.state = &state

	h.logger.DebugContext(ctx, "state saved", "factSheetType", state.FactSheetType, "tagGroup", state.SelectedTagGroupID)
	return h.publisher.Publish(pubsub.TopicCustomState, "updated", state)
}

func (h *Standalone) UpdateTagGroupOptions(ctx context.Context, options []model.SelectOption) error {
	h.mu.Lock()
	h.options = append([]model.SelectOption(nil), options...)
	h.mu.Unlock()

	return h.publisher.Publish(pubsub.TopicTagGroups, "options", options)
}

// TagGroupOptions returns the options last sent to the selector
func (h *Standalone) TagGroupOptions() []model.SelectOption {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.SelectOption(nil), h.options...)
}

func (h *Standalone) ShowToast(ctx context.Context, level, message string) {
	if err := h.publisher.Publish(pubsub.TopicNotifications, level, pubsub.Notification{Level: level, Message: message}); err != nil {
		h.logger.WarnContext(ctx, "failed to publish notification", "error", err)
	}
}

func (h *Standalone) ShowSpinner(ctx context.Context) {
	h.setBusy(ctx, 1)
}

func (h *Standalone) HideSpinner(ctx context.Context) {
	h.setBusy(ctx, -1)
}

// setBusy publishes only on transitions between idle and busy
func (h *Standalone) setBusy(ctx context.Context, delta int) {
	h.mu.Lock()
	was := h.busy > 0
	h.busy += delta
	if h.busy < 0 {
		h.busy = 0
	}
	now := h.busy > 0
	h.mu.Unlock()

	if was == now {
		return
	}
	if err := h.publisher.Publish(pubsub.TopicBusy, "busy", pubsub.BusyStatus{Busy: now}); err != nil {
		h.logger.WarnContext(ctx, "failed to publish busy state", "error", err)
	}
}

// writeJSON replaces path atomically
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tag-flow-state-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
