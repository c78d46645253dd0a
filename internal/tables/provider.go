// Package tables resolves table definitions into frontend descriptors and
// computes pages of table data for stateless requests.
package tables

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/gridview/internal/config"
	"github.com/pitabwire/gridview/internal/dataset"
	"github.com/pitabwire/gridview/internal/definition"
	"github.com/pitabwire/gridview/internal/observability"
	"github.com/pitabwire/gridview/internal/view"
	"github.com/pitabwire/gridview/model"
)

// Pipeline run modes reported in metrics.
const (
	ModeStateless = "stateless"
	ModeView      = "view"
)

// TableProvider resolves TableDefinitions into TableDescriptors and serves
// their data through the view pipeline.
type TableProvider struct {
	registry *definition.Registry
	datasets *dataset.Provider
	views    config.ViewsConfig
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewTableProvider creates a TableProvider.
func NewTableProvider(
	registry *definition.Registry,
	datasets *dataset.Provider,
	views config.ViewsConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *TableProvider {
	if views.DefaultPageSize <= 0 {
		views.DefaultPageSize = view.DefaultPageSize
	}
	if views.MaxPageSize <= 0 {
		views.MaxPageSize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableProvider{
		registry: registry,
		datasets: datasets,
		views:    views,
		metrics:  metrics,
		logger:   logger,
	}
}

// ListTables returns the tables the caller may view, ordered by ID.
func (p *TableProvider) ListTables(caps model.CapabilitySet) []model.TableSummary {
	summaries := []model.TableSummary{}
	for _, t := range p.registry.AllTables() {
		if !allowed(caps, t) {
			continue
		}
		summaries = append(summaries, model.TableSummary{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Domain:      p.registry.TableDomain(t.ID),
		})
	}
	return summaries
}

// Table returns the definition of tableID if the caller may view it.
// Returns an error with code NOT_FOUND or FORBIDDEN.
func (p *TableProvider) Table(caps model.CapabilitySet, tableID string) (model.TableDefinition, error) {
	t, ok := p.registry.GetTable(tableID)
	if !ok {
		return model.TableDefinition{}, model.NewNotFoundError(fmt.Sprintf("table %q not found", tableID))
	}
	if !allowed(caps, t) {
		return model.TableDefinition{}, model.NewForbiddenError(
			fmt.Sprintf("insufficient capabilities for table %q", tableID),
		)
	}
	return t, nil
}

// GetTable resolves a TableDescriptor from the definition.
func (p *TableProvider) GetTable(caps model.CapabilitySet, tableID string) (model.TableDescriptor, error) {
	t, err := p.Table(caps, tableID)
	if err != nil {
		return model.TableDescriptor{}, err
	}
	return p.describe(caps, t), nil
}

func (p *TableProvider) describe(caps model.CapabilitySet, t model.TableDefinition) model.TableDescriptor {
	initial := p.InitialState(t)
	desc := model.TableDescriptor{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		DataEndpoint:    fmt.Sprintf("/ui/tables/%s/data", t.ID),
		ViewsEndpoint:   fmt.Sprintf("/ui/tables/%s/views", t.ID),
		DefaultSort:     initial.Sort,
		PageSize:        initial.Page.Size,
		PageSizeOptions: p.PageSizeOptions(t),
		CanRefresh:      caps.Has(RefreshCapability(p.registry.TableDomain(t.ID))),
	}

	for _, col := range t.Columns {
		typ := col.Type
		if typ == "" {
			typ = model.ColumnText
		}
		desc.Columns = append(desc.Columns, model.ColumnDescriptor{
			Field:     col.Field,
			Label:     col.Label,
			Type:      typ,
			Sortable:  col.Sortable,
			Format:    col.Format,
			Width:     col.Width,
			StatusMap: col.StatusMap,
		})
	}

	for _, f := range t.Filters {
		kind, _ := model.ParseFilterKind(f.Kind)
		fd := model.FilterDescriptor{
			Field:   f.Field,
			Label:   f.Label,
			Kind:    kind,
			Default: f.Default,
		}
		for _, opt := range f.Options {
			fd.Options = append(fd.Options, model.OptionDescriptor{Label: opt.Label, Value: opt.Value})
		}
		if f.Dynamic {
			fd.OptionsEndpoint = fmt.Sprintf("/ui/tables/%s/filters/%s/options", t.ID, f.Field)
		}
		desc.Filters = append(desc.Filters, fd)
	}
	return desc
}

// RefreshCapability is the capability that allows reloading a domain's
// table data.
func RefreshCapability(domain string) string {
	return domain + ":tables:refresh"
}

// PageSizeOptions returns the page sizes offered for t.
func (p *TableProvider) PageSizeOptions(t model.TableDefinition) []int {
	if len(t.PageSizeOptions) > 0 {
		return slices.Clone(t.PageSizeOptions)
	}
	return slices.Clone(p.views.PageSizeOptions)
}

// BuildPipeline returns the pipeline configured for t.
func (p *TableProvider) BuildPipeline(t model.TableDefinition) view.Pipeline {
	return view.Pipeline{
		SearchKeys: t.SearchFields(),
		Collation:  t.Collation,
	}
}

// InitialState returns the view state a fresh view of t starts from:
// default sort, default page size and filter defaults.
func (p *TableProvider) InitialState(t model.TableDefinition) model.ViewState {
	size := t.PageSize
	if size <= 0 {
		size = p.views.DefaultPageSize
	}
	st := model.ViewState{
		Filters: make(model.FilterState),
		Page:    model.PageRequest{Index: 1, Size: size},
	}
	if t.DefaultSort != "" {
		st.Sort = model.SortDirective{Key: t.DefaultSort, Direction: model.ParseSortDirection(t.SortDir)}.Normalize()
	}
	for _, f := range t.Filters {
		if f.Default == nil {
			continue
		}
		spec := defaultSpec(f)
		if spec.Active() {
			st.Filters[f.Field] = spec
		}
	}
	return st
}

func defaultSpec(f model.FilterDefinition) model.FilterSpec {
	kind, _ := model.ParseFilterKind(f.Kind)
	spec := model.FilterSpec{Key: f.Field, Kind: kind}
	switch kind {
	case model.FilterRange:
		if m, ok := f.Default.(map[string]any); ok {
			spec.Start = model.FromAny(firstOf(m, "from", "start"))
			spec.End = model.FromAny(firstOf(m, "to", "end"))
		}
	case model.FilterSet:
		if items, ok := model.FromAny(f.Default).ListVal(); ok {
			spec.Values = items
		} else {
			spec.Values = []model.Value{model.FromAny(f.Default)}
		}
	default:
		spec.Value = model.FromAny(f.Default)
	}
	return spec
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// GetTableData computes one page of table data from stateless request
// parameters.
func (p *TableProvider) GetTableData(
	ctx context.Context,
	caps model.CapabilitySet,
	tableID string,
	params model.DataParams,
) (model.DataResponse, error) {
	t, err := p.Table(caps, tableID)
	if err != nil {
		return model.DataResponse{}, err
	}
	state, err := p.StateFromParams(t, params)
	if err != nil {
		return model.DataResponse{}, err
	}

	records, err := p.datasets.RecordsFor(ctx, t)
	if err != nil {
		return model.DataResponse{}, err
	}

	pipeline := p.BuildPipeline(t)
	res := p.Observe(ctx, t.ID, ModeStateless, len(records), func() model.PageResult {
		return pipeline.Compute(records, state)
	})
	return model.DataResponse{
		Data: model.NewDataPayload(res),
		Meta: map[string]any{"state": state},
	}, nil
}

// Observe runs a pipeline computation inside a span and records its
// duration and row counts.
func (p *TableProvider) Observe(ctx context.Context, tableID, mode string, inputRows int, run func() model.PageResult) model.PageResult {
	ctx, span := observability.StartSpan(ctx, "pipeline.compute",
		observability.AttrTableID.String(tableID),
		observability.AttrInputRows.Int(inputRows),
	)
	defer span.End()

	start := time.Now()
	res := run()
	elapsed := time.Since(start)

	span.SetAttributes(observability.AttrMatchRows.Int(res.TotalCount))
	p.metrics.RecordPipeline(tableID, mode, elapsed, inputRows, res.TotalCount)
	observability.RequestLogger(ctx, p.logger).Debug("pipeline computed",
		zap.String("table_id", tableID),
		zap.String("mode", mode),
		zap.Int("input_rows", inputRows),
		zap.Int("matched_rows", res.TotalCount),
		zap.Duration("elapsed", elapsed),
	)
	return res
}

// Refresh drops the cached data of tableID. The caller needs the domain's
// refresh capability.
func (p *TableProvider) Refresh(ctx context.Context, caps model.CapabilitySet, tableID string) error {
	if _, err := p.Table(caps, tableID); err != nil {
		return err
	}
	if !caps.Has(RefreshCapability(p.registry.TableDomain(tableID))) {
		return model.NewForbiddenError(fmt.Sprintf("insufficient capabilities to refresh table %q", tableID))
	}
	if err := p.datasets.Invalidate(ctx, tableID); err != nil {
		return err
	}
	observability.RequestLogger(ctx, p.logger).Info("table data refreshed", zap.String("table_id", tableID))
	return nil
}

func allowed(caps model.CapabilitySet, t model.TableDefinition) bool {
	return len(t.Capabilities) == 0 || caps.HasAll(t.Capabilities...)
}
