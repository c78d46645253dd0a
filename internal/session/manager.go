package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pitabwire/gridview/internal/dataset"
	"github.com/pitabwire/gridview/internal/observability"
	"github.com/pitabwire/gridview/internal/tables"
	"github.com/pitabwire/gridview/internal/view"
	"github.com/pitabwire/gridview/model"
)

// Manager opens views over tables and applies the frontend's view events
// to them. Each view is driven by its own controller; events for one view
// are serialized, different views proceed in parallel.
type Manager struct {
	store    Store
	tables   *tables.TableProvider
	datasets *dataset.Provider
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewManager creates a view manager.
func NewManager(
	store Store,
	tables *tables.TableProvider,
	datasets *dataset.Provider,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		tables:   tables,
		datasets: datasets,
		metrics:  metrics,
		logger:   logger,
	}
}

// Open creates a view of tableID seeded with the table's defaults, applies
// the optional initial events and returns its first page.
func (m *Manager) Open(
	ctx context.Context,
	caps model.CapabilitySet,
	owner model.ViewOwner,
	tableID string,
	events []model.ViewEvent,
) (model.ViewDescriptor, error) {
	t, err := m.tables.Table(caps, tableID)
	if err != nil {
		return model.ViewDescriptor{}, err
	}
	if err := m.validateEvents(t, events); err != nil {
		return model.ViewDescriptor{}, err
	}
	records, err := m.datasets.RecordsFor(ctx, t)
	if err != nil {
		return model.ViewDescriptor{}, err
	}

	ctrl := view.NewController(m.tables.BuildPipeline(t), m.tables.InitialState(t))
	m.applyEvents(ctx, t, ctrl, events)
	v := NewView(uuid.NewString(), t.ID, owner, ctrl)

	if err := m.store.Put(ctx, v); err != nil {
		if !isViewLimit(err) || m.Sweep(ctx) == 0 {
			return model.ViewDescriptor{}, err
		}
		if err := m.store.Put(ctx, v); err != nil {
			return model.ViewDescriptor{}, err
		}
	}
	m.metrics.RecordViewOpened(t.ID)
	observability.RequestLogger(ctx, m.logger).Info("view opened",
		zap.String("view_id", v.ID),
		zap.String("table_id", t.ID),
	)

	v.mu.Lock()
	defer v.mu.Unlock()
	return m.describe(ctx, v, records), nil
}

// Get recomputes and returns the current page of the owner's view.
func (m *Manager) Get(ctx context.Context, caps model.CapabilitySet, owner model.ViewOwner, viewID string) (model.ViewDescriptor, error) {
	v, t, err := m.lookup(ctx, caps, owner, viewID)
	if err != nil {
		return model.ViewDescriptor{}, err
	}
	records, err := m.datasets.RecordsFor(ctx, t)
	if err != nil {
		return model.ViewDescriptor{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return m.describe(ctx, v, records), nil
}

// Apply applies events to the owner's view in order and returns the
// resulting page. Events are validated up front: if any is invalid none is
// applied.
func (m *Manager) Apply(
	ctx context.Context,
	caps model.CapabilitySet,
	owner model.ViewOwner,
	viewID string,
	events []model.ViewEvent,
) (desc model.ViewDescriptor, err error) {
	ctx, span := observability.StartSpan(ctx, "view.apply",
		observability.AttrViewID.String(viewID),
		observability.AttrSubjectID.String(owner.SubjectID),
		observability.AttrTenantID.String(owner.TenantID),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	v, t, err := m.lookup(ctx, caps, owner, viewID)
	if err != nil {
		return model.ViewDescriptor{}, err
	}
	span.SetAttributes(observability.AttrTableID.String(t.ID))

	if err := m.validateEvents(t, events); err != nil {
		return model.ViewDescriptor{}, err
	}
	records, err := m.datasets.RecordsFor(ctx, t)
	if err != nil {
		return model.ViewDescriptor{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	m.applyEvents(ctx, t, v.controller, events)
	return m.describe(ctx, v, records), nil
}

// Close discards the owner's view.
func (m *Manager) Close(ctx context.Context, owner model.ViewOwner, viewID string) error {
	if err := m.store.Delete(ctx, owner, viewID); err != nil {
		return err
	}
	m.metrics.RecordViewClosed()
	observability.RequestLogger(ctx, m.logger).Info("view closed", zap.String("view_id", viewID))
	return nil
}

// Sweep evicts idle views and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) int {
	n := m.store.Sweep(ctx)
	if n > 0 {
		m.metrics.RecordViewsEvicted("idle", n)
		m.logger.Info("idle views evicted", zap.Int("count", n))
	}
	return n
}

// RunSweeper sweeps idle views every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// lookup returns the owner's view and its table, re-checking that the
// caller may still view the table.
func (m *Manager) lookup(ctx context.Context, caps model.CapabilitySet, owner model.ViewOwner, viewID string) (*View, model.TableDefinition, error) {
	v, err := m.store.Get(ctx, owner, viewID)
	if err != nil {
		return nil, model.TableDefinition{}, err
	}
	t, err := m.tables.Table(caps, v.TableID)
	if err != nil {
		return nil, model.TableDefinition{}, err
	}
	return v, t, nil
}

// describe computes the view's page. v must be locked.
func (m *Manager) describe(ctx context.Context, v *View, records []model.Record) model.ViewDescriptor {
	res := m.tables.Observe(ctx, v.TableID, tables.ModeView, len(records), func() model.PageResult {
		return v.controller.Compute(records)
	})
	return model.ViewDescriptor{
		ID:      v.ID,
		TableID: v.TableID,
		State:   v.controller.State(),
		Data:    model.NewDataPayload(res),
	}
}

func (m *Manager) validateEvents(t model.TableDefinition, events []model.ViewEvent) error {
	var details []model.FieldError
	for i, ev := range events {
		if !knownEvents[ev.Type] {
			return model.NewUnknownEventError(ev.Type)
		}
		if fe := m.validateEvent(t, ev); fe != nil {
			fe.Field = fmt.Sprintf("events[%d].%s", i, fe.Field)
			details = append(details, *fe)
		}
	}
	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

func (m *Manager) validateEvent(t model.TableDefinition, ev model.ViewEvent) *model.FieldError {
	switch ev.Type {
	case model.EventSearch, model.EventClearFilters:
		return nil
	case model.EventSetFilter:
		if ev.Filter == nil {
			return &model.FieldError{Field: "filter", Code: "REQUIRED", Message: "filter is required"}
		}
		if _, fe := tables.ResolveFilter(t, *ev.Filter); fe != nil {
			fe.Field = "filter"
			return fe
		}
		return nil
	case model.EventRemoveFilter:
		if ev.Field == "" {
			return &model.FieldError{Field: "field", Code: "REQUIRED", Message: "field is required"}
		}
		return nil
	case model.EventSort:
		if fe := tables.CheckSort(t, ev.Field); fe != nil {
			fe.Field = "field"
			return fe
		}
		return nil
	case model.EventToggleSort:
		if ev.Field == "" {
			return &model.FieldError{Field: "field", Code: "REQUIRED", Message: "field is required"}
		}
		if fe := tables.CheckSort(t, ev.Field); fe != nil {
			fe.Field = "field"
			return fe
		}
		return nil
	case model.EventPage:
		if ev.Page < 1 {
			return &model.FieldError{Field: "page", Code: "RANGE", Message: "page must be 1 or greater"}
		}
		return nil
	case model.EventPageSize:
		if fe := m.tables.CheckPageSize(ev.PageSize); fe != nil {
			return fe
		}
	}
	return nil
}

var knownEvents = map[string]bool{
	model.EventSearch:       true,
	model.EventSetFilter:    true,
	model.EventRemoveFilter: true,
	model.EventClearFilters: true,
	model.EventSort:         true,
	model.EventToggleSort:   true,
	model.EventPage:         true,
	model.EventPageSize:     true,
}

// applyEvents drives the controller with already validated events.
func (m *Manager) applyEvents(ctx context.Context, t model.TableDefinition, ctrl *view.Controller, events []model.ViewEvent) {
	span := trace.SpanFromContext(ctx)
	for _, ev := range events {
		var changed bool
		switch ev.Type {
		case model.EventSearch:
			changed = ctrl.SetSearchText(ev.Text)
		case model.EventSetFilter:
			spec, _ := tables.ResolveFilter(t, *ev.Filter)
			changed = ctrl.SetFilter(spec)
		case model.EventRemoveFilter:
			changed = ctrl.RemoveFilter(ev.Field)
		case model.EventClearFilters:
			changed = ctrl.ClearFilters()
		case model.EventSort:
			changed = ctrl.SetSort(model.SortDirective{Key: ev.Field, Direction: ev.Direction})
		case model.EventToggleSort:
			changed = ctrl.ToggleSort(ev.Field)
		case model.EventPage:
			changed = ctrl.SetPage(ev.Page)
		case model.EventPageSize:
			changed = ctrl.SetPageSize(ev.PageSize)
		}
		m.metrics.RecordViewEvent(ev.Type, changed)
		span.AddEvent(ev.Type, trace.WithAttributes(observability.AttrEventType.String(ev.Type)))
	}
}

func isViewLimit(err error) bool {
	var env *model.ErrorEnvelope
	return errors.As(err, &env) && env.Code == model.ErrViewLimit
}
