package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ritzau/tag-flow/pkg/catalog"
	"github.com/ritzau/tag-flow/pkg/dataset"
	"github.com/ritzau/tag-flow/pkg/debounce"
	"github.com/ritzau/tag-flow/pkg/fetch"
	"github.com/ritzau/tag-flow/pkg/graph"
	"github.com/ritzau/tag-flow/pkg/logging"
	"github.com/ritzau/tag-flow/pkg/metrics"
	"github.com/ritzau/tag-flow/pkg/model"
	"github.com/ritzau/tag-flow/pkg/selection"
)

var (
	// ErrUnknownTagGroup is returned when selecting a tag group not offered for the current type
	ErrUnknownTagGroup = errors.New("unknown tag group")

	// ErrNoDataset is returned by Select before the first refresh has been applied
	ErrNoDataset = errors.New("no dataset applied yet")

	// ErrStaleResponse is returned by Refresh when the state changed while fetching
	ErrStaleResponse = errors.New("stale response discarded")
)

// DefaultMaxWait bounds how long a steady stream of updates can postpone a refresh
const DefaultMaxWait = 2 * time.Second

// Applied is a dataset together with the state it was computed for
type Applied struct {
	State     State          `json:"state"`
	Dataset   *model.Dataset `json:"dataset"`
	Diff      *dataset.Diff  `json:"diff"` // against the previously applied dataset
	RequestID string         `json:"requestId"`
}

// request is one scheduled refresh
type request struct {
	id    string
	state State
	group *model.TagGroup
}

// Controller owns the report state. Setters commit synchronously and schedule
// a debounced refresh; a single loop runs refreshes one at a time.
//
// Observers are called with the controller lock held and must not call back
// into the controller.
type Controller struct {
	host     Host
	fetcher  fetch.Fetcher
	resolver *catalog.Resolver
	logger   *slog.Logger
	metrics  *metrics.Report

	debouncer *debounce.Debouncer[request]

	mu           sync.Mutex
	catalog      *catalog.Catalog
	state        State
	groups       []model.TagGroup
	acknowledged *model.CustomState
	applied      *Applied
	snapshot     *dataset.Snapshot
	index        map[string]model.FactSheet
	untaggedIDs  []string

	stateObservers   []func(State)
	datasetObservers []func(Applied)
}

// Option customizes a Controller
type Option func(*Controller)

// WithDebounce overrides the refresh quiet period
func WithDebounce(quiet time.Duration) Option {
	return func(c *Controller) {
		c.debouncer = debounce.New[request](quiet, DefaultMaxWait)
	}
}

// WithMetrics records refresh and selection metrics
func WithMetrics(m *metrics.Report) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController creates a controller for the given catalog
func NewController(host Host, fetcher fetch.Fetcher, resolver *catalog.Resolver, cat *catalog.Catalog, opts ...Option) *Controller {
	c := &Controller{
		host:      host,
		fetcher:   fetcher,
		resolver:  resolver,
		catalog:   cat,
		logger:    logging.New("report"),
		debouncer: debounce.New[request](debounce.DefaultQuietPeriod, DefaultMaxWait),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnStateChange registers an observer for committed state updates
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateObservers = append(c.stateObservers, fn)
}

// OnDataset registers an observer for applied datasets
func (c *Controller) OnDataset(fn func(Applied)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.datasetObservers = append(c.datasetObservers, fn)
}

// Init restores the persisted state, falling back to the first fact sheet
// type in catalog order and its first tag group, and schedules a refresh.
func (c *Controller) Init(ctx context.Context) error {
	saved, err := c.host.LoadCustomState(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "could not load saved state, using defaults", "error", err)
		saved = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if saved != nil {
		ack := *saved
		c.acknowledged = &ack
	}

	next := State{}
	var groups []model.TagGroup
	if saved != nil && saved.FactSheetType != "" {
		groups, err = c.resolver.Resolve(saved.FactSheetType, c.catalog)
		if err != nil {
			c.logger.WarnContext(ctx, "saved fact sheet type no longer usable", "factSheetType", saved.FactSheetType, "error", err)
		} else {
			next.FactSheetType = saved.FactSheetType
			next.ShowUntagged = saved.ShowUntaggedFactSheets
			next.TagGroupID = pickGroup(groups, saved.SelectedTagGroupID)
		}
	}

	if next.FactSheetType == "" {
		next.FactSheetType, groups, err = c.firstUsableType(ctx)
		if err != nil {
			c.host.ShowToast(ctx, ToastError, err.Error())
			return err
		}
		next.TagGroupID = pickGroup(groups, "")
	}

	c.setGroups(ctx, groups)
	c.commit(ctx, next, true)
	c.logger.InfoContext(ctx, "report initialized", "factSheetType", next.FactSheetType, "tagGroup", next.TagGroupID, "restored", saved != nil)
	return nil
}

// firstUsableType returns the first catalog type whose tag groups resolve
func (c *Controller) firstUsableType(ctx context.Context) (string, []model.TagGroup, error) {
	if c.catalog == nil || len(c.catalog.FactSheetTypes) == 0 {
		return "", nil, fmt.Errorf("%w: catalog has no fact sheet types", catalog.ErrUnknownRecordType)
	}
	var firstErr error
	for _, t := range c.catalog.FactSheetTypes {
		groups, err := c.resolver.Resolve(t.Name, c.catalog)
		if err == nil {
			return t.Name, groups, nil
		}
		c.logger.DebugContext(ctx, "skipping fact sheet type", "factSheetType", t.Name, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", nil, firstErr
}

// pickGroup keeps want when it is offered, else falls back to the first group
func pickGroup(groups []model.TagGroup, want string) string {
	if _, ok := catalog.Find(groups, want); ok {
		return want
	}
	if len(groups) > 0 {
		return groups[0].ID
	}
	return ""
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TagGroups returns the tag groups offered for the current fact sheet type
func (c *Controller) TagGroups() []model.TagGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.TagGroup(nil), c.groups...)
}

// Applied returns the last applied dataset, or nil before the first refresh
func (c *Controller) Applied() *Applied {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied == nil {
		return nil
	}
	applied := *c.applied
	return &applied
}

// SetFactSheetType switches the record type. The tag group selection is kept
// when the new type offers it, else the first offered group is selected.
func (c *Controller) SetFactSheetType(ctx context.Context, factSheetType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	groups, err := c.resolver.Resolve(factSheetType, c.catalog)
	if err != nil {
		c.logger.WarnContext(ctx, "cannot select fact sheet type", "factSheetType", factSheetType, "error", err)
		c.host.ShowToast(ctx, ToastError, err.Error())
		return err
	}

	next := c.state
	next.FactSheetType = factSheetType
	next.TagGroupID = pickGroup(groups, c.state.TagGroupID)

	c.setGroups(ctx, groups)
	c.commit(ctx, next, true)
	return nil
}

// SetTagGroup selects one of the offered tag groups
func (c *Controller) SetTagGroup(ctx context.Context, tagGroupID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := catalog.Find(c.groups, tagGroupID); !ok {
		return fmt.Errorf("%w: %q for %s", ErrUnknownTagGroup, tagGroupID, c.state.FactSheetType)
	}

	next := c.state
	next.TagGroupID = tagGroupID
	c.commit(ctx, next, true)
	return nil
}

// SetShowUntagged toggles the untagged flow
func (c *Controller) SetShowUntagged(ctx context.Context, show bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state
	next.ShowUntagged = show
	c.commit(ctx, next, true)
}

// SetFilter replaces the ambient filter
func (c *Controller) SetFilter(ctx context.Context, filter model.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state
	next.Filter = filter
	c.commit(ctx, next, true)
}

// SetCatalog installs a reloaded catalog and re-resolves the current type.
// When the type is gone the first usable type is selected instead.
func (c *Controller) SetCatalog(ctx context.Context, cat *catalog.Catalog) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.catalog = cat

	next := c.state
	groups, err := c.resolver.Resolve(next.FactSheetType, cat)
	if err != nil {
		c.logger.WarnContext(ctx, "current fact sheet type unusable after catalog reload", "factSheetType", next.FactSheetType, "error", err)
		next.FactSheetType, groups, err = c.firstUsableType(ctx)
		if err != nil {
			c.host.ShowToast(ctx, ToastError, err.Error())
			return err
		}
	}
	next.TagGroupID = pickGroup(groups, next.TagGroupID)

	c.setGroups(ctx, groups)
	c.commit(ctx, next, true)
	c.logger.InfoContext(ctx, "catalog reloaded", "factSheetTypes", len(cat.FactSheetTypes), "tagGroups", len(groups))
	return nil
}

// setGroups stores the resolved groups and pushes them to the host selector.
// Caller holds c.mu.
func (c *Controller) setGroups(ctx context.Context, groups []model.TagGroup) {
	c.groups = groups
	if err := c.host.UpdateTagGroupOptions(ctx, catalog.Options(groups)); err != nil {
		c.logger.ErrorContext(ctx, "failed to update tag group options", "error", err)
		c.host.ShowToast(ctx, ToastError, "Could not update tag group selector")
	}
}

// commit installs next, notifies observers, publishes the custom state when it
// changed and optionally schedules a refresh. Caller holds c.mu.
func (c *Controller) commit(ctx context.Context, next State, refresh bool) {
	c.state = next
	for _, fn := range c.stateObservers {
		fn(next)
	}

	custom := next.Custom()
	if c.acknowledged == nil || *c.acknowledged != custom {
		if err := c.host.PublishCustomState(ctx, custom); err != nil {
			c.logger.ErrorContext(ctx, "failed to publish state", "error", err)
			c.host.ShowToast(ctx, ToastError, "Could not save report state")
		} else {
			c.acknowledged = &custom
		}
	}

	if refresh {
		c.debouncer.Trigger(c.newRequest())
	}
}

// newRequest snapshots the current state. Caller holds c.mu.
func (c *Controller) newRequest() request {
	req := request{id: uuid.NewString(), state: c.state}
	if g, ok := catalog.Find(c.groups, c.state.TagGroupID); ok {
		group := *g
		req.group = &group
	}
	return req
}

// Start runs the debouncer and the refresh loop until ctx is cancelled
func (c *Controller) Start(ctx context.Context) {
	c.debouncer.Start(ctx)
	go func() {
		for req := range c.debouncer.Output() {
			c.handle(ctx, req)
		}
		c.logger.Debug("refresh loop stopped")
	}()
}

// Refresh runs a refresh for the current state right away
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	req := c.newRequest()
	c.mu.Unlock()
	return c.handle(ctx, req)
}

// handle runs one refresh and reports failures to the host
func (c *Controller) handle(ctx context.Context, req request) error {
	ctx = logging.WithRequestID(ctx, req.id)
	start := time.Now()
	err := c.refresh(ctx, req)
	switch {
	case err == nil:
		c.metrics.ObserveRefresh(metrics.ResultApplied, time.Since(start))
	case errors.Is(err, ErrStaleResponse):
		c.metrics.ObserveRefresh(metrics.ResultStale, time.Since(start))
		c.logger.InfoContext(ctx, "refresh dropped", "reason", err)
	case errors.Is(err, context.Canceled):
		c.metrics.ObserveRefresh(metrics.ResultCancelled, time.Since(start))
		c.logger.InfoContext(ctx, "refresh dropped", "reason", err)
	default:
		c.metrics.ObserveRefresh(metrics.ResultError, time.Since(start))
		c.logger.ErrorContext(ctx, "refresh failed", "error", err)
		c.host.ShowToast(ctx, ToastError, err.Error())
	}
	return err
}

func (c *Controller) refresh(ctx context.Context, req request) error {
	start := time.Now()
	c.host.ShowSpinner(ctx)
	defer c.host.HideSpinner(ctx)

	if req.group == nil {
		return fmt.Errorf("refreshing %s: %w: tag group %q", req.state.FactSheetType, dataset.ErrMissingSelection, req.state.TagGroupID)
	}

	result, err := c.fetcher.Fetch(ctx, fetch.Query{
		FactSheetType:  req.state.FactSheetType,
		TagGroupID:     req.state.TagGroupID,
		Filter:         req.state.Filter,
		IncludeMissing: req.state.ShowUntagged,
	})
	if err != nil {
		return fmt.Errorf("loading %s fact sheets: %w", req.state.FactSheetType, err)
	}

	ds, err := dataset.Aggregate(dataset.Input{
		FactSheetType: req.state.FactSheetType,
		TagGroup:      req.group,
		TotalCount:    result.Total,
		Tagged:        result.FactSheets,
		UntaggedCount: result.MissingTotal,
		UntaggedIDs:   result.MissingIDs(),
		ShowUntagged:  req.state.ShowUntagged,
	})
	if err != nil {
		return fmt.Errorf("aggregating %s by %s: %w", req.state.FactSheetType, req.group.Name, err)
	}

	c.checkFlow(ctx, ds)

	index := make(map[string]model.FactSheet, len(result.FactSheets)+len(result.Missing))
	for _, fs := range result.FactSheets {
		index[fs.ID] = fs
	}
	for _, fs := range result.Missing {
		index[fs.ID] = fs
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Equal(req.state) {
		c.logger.InfoContext(ctx, "discarding stale response",
			"requestedType", req.state.FactSheetType,
			"requestedTagGroup", req.state.TagGroupID,
			"currentType", c.state.FactSheetType,
			"currentTagGroup", c.state.TagGroupID,
		)
		return ErrStaleResponse
	}

	diff := dataset.ComputeDiff(c.snapshot, ds)
	if diff.Empty() {
		c.logger.DebugContext(ctx, "dataset unchanged")
	}
	c.snapshot = dataset.NewSnapshot(ds)
	c.applied = &Applied{State: req.state, Dataset: ds, Diff: diff, RequestID: req.id}
	c.index = index
	c.untaggedIDs = result.MissingIDs()
	c.metrics.SetDataset(ds)
	for _, fn := range c.datasetObservers {
		fn(*c.applied)
	}

	c.logger.InfoContext(ctx, "dataset applied",
		"factSheetType", ds.FactSheetType,
		"tagGroup", ds.TagGroupID,
		"nodes", len(ds.Nodes),
		"links", len(ds.Links),
		"durationMs", time.Since(start).Milliseconds(),
	)
	return nil
}

// checkFlow assigns node depths and reports conservation violations
func (c *Controller) checkFlow(ctx context.Context, ds *model.Dataset) {
	if err := graph.AssignDepths(ds); err != nil {
		c.logger.WarnContext(ctx, "could not assign node depths", "error", err)
		return
	}
	fg, err := graph.NewFlowGraph(ds)
	if err != nil {
		c.logger.WarnContext(ctx, "could not build flow graph", "error", err)
		return
	}
	violations := fg.CheckFlow()
	for _, v := range violations {
		c.logger.WarnContext(ctx, "flow violation", "node", v.Node, "detail", v.Message)
	}
	c.metrics.AddFlowViolations(len(violations))
	if len(violations) > 0 {
		c.host.ShowToast(ctx, ToastWarning, fmt.Sprintf("Chart totals may be off: %d flow inconsistencies in the data", len(violations)))
	}
}

// Select resolves a chart click against the last applied dataset
func (c *Controller) Select(ctx context.Context, target selection.Target) (*selection.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.applied == nil {
		return nil, ErrNoDataset
	}
	result, err := selection.Resolve(target, c.applied.Dataset, c.index, c.untaggedIDs)
	c.metrics.ObserveSelection(err)
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "selection resolved", "label", result.Label, "factSheets", len(result.FactSheets))
	return result, nil
}
