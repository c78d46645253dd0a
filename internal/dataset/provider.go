package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/gridview/internal/config"
	"github.com/pitabwire/gridview/internal/observability"
	"github.com/pitabwire/gridview/internal/schema"
	"github.com/pitabwire/gridview/model"
)

// TableLookup resolves table definitions by ID.
type TableLookup interface {
	GetTable(tableID string) (model.TableDefinition, bool)
}

// Provider serves typed record sets per table: cache first, then the
// table's source, filling the cache on the way out. Concurrent misses for
// one table share a single source load.
type Provider struct {
	tables      TableLookup
	cache       Cache
	db          Querier
	schemas     *schema.Index
	baseDir     string
	defaultTTL  time.Duration
	loadTimeout time.Duration
	breakerCfg  config.CircuitBreakerConfig
	metrics     *observability.Metrics
	logger      *zap.Logger

	group       singleflight.Group
	mu          sync.Mutex
	breakers    map[string]*Breaker
	generations map[string]uint64
}

// ProviderOption configures optional Provider dependencies.
type ProviderOption func(*Provider)

// WithPostgres enables postgres sources.
func WithPostgres(db Querier) ProviderOption {
	return func(p *Provider) { p.db = db }
}

// WithSchemas types records by their table's OpenAPI schema.
func WithSchemas(idx *schema.Index) ProviderOption {
	return func(p *Provider) { p.schemas = idx }
}

// WithMetrics records load and cache metrics.
func WithMetrics(m *observability.Metrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

// WithLogger sets the fallback logger.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a dataset provider.
func NewProvider(tables TableLookup, cache Cache, cfg config.DatasetsConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		tables:      tables,
		cache:       cache,
		baseDir:     cfg.BaseDir,
		defaultTTL:  cfg.Cache.DefaultTTL,
		loadTimeout: cfg.LoadTimeout,
		breakerCfg:  cfg.Breaker,
		logger:      zap.NewNop(),
		breakers:    make(map[string]*Breaker),
		generations: make(map[string]uint64),
	}
	if p.loadTimeout <= 0 {
		p.loadTimeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Records returns the typed records of the table with the given ID.
func (p *Provider) Records(ctx context.Context, tableID string) ([]model.Record, error) {
	table, ok := p.tables.GetTable(tableID)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("table %q not found", tableID))
	}
	return p.RecordsFor(ctx, table)
}

// RecordsFor returns the typed records of table. The returned slice and its
// records are shared and must not be modified.
func (p *Provider) RecordsFor(ctx context.Context, table model.TableDefinition) ([]model.Record, error) {
	ctx, span := observability.StartSpan(ctx, "dataset.records",
		observability.AttrTableID.String(table.ID),
		observability.AttrSourceType.String(table.DataSource.Type),
	)
	logger := observability.RequestLogger(ctx, p.logger)
	decoder := p.decoderFor(table)

	ttl := p.ttlFor(table)
	if ttl > 0 {
		records, hit, err := p.cache.Get(ctx, table.ID)
		if err != nil {
			logger.Warn("dataset cache read failed", zap.String("table_id", table.ID), zap.Error(err))
		}
		if hit {
			p.metrics.RecordDatasetCacheHit(table.ID)
			span.SetAttributes(observability.AttrCacheHit.Bool(true))
			logger.Debug("dataset cache hit", zap.String("table_id", table.ID))
			records = decoder.Decode(records)
			span.SetAttributes(observability.AttrInputRows.Int(len(records)))
			span.End()
			return records, nil
		}
		p.metrics.RecordDatasetCacheMiss(table.ID)
	}
	span.SetAttributes(observability.AttrCacheHit.Bool(false))

	v, err, _ := p.group.Do(table.ID, func() (any, error) {
		return p.load(ctx, table, decoder, ttl, logger)
	})
	if err != nil {
		observability.EndSpanWithError(span, err)
		return nil, err
	}
	records := v.([]model.Record)
	span.SetAttributes(observability.AttrInputRows.Int(len(records)))
	span.End()
	return records, nil
}

func (p *Provider) load(ctx context.Context, table model.TableDefinition, decoder *Decoder, ttl time.Duration, logger *zap.Logger) ([]model.Record, error) {
	breaker := p.breakerFor(table.ID)
	if err := breaker.Allow(); err != nil {
		logger.Warn("dataset source rejected by circuit breaker", zap.String("table_id", table.ID))
		return nil, model.NewBackendUnavailableError()
	}

	gen := p.generation(table.ID)
	src, err := p.SourceFor(table)
	if err != nil {
		logger.Error("dataset source misconfigured", zap.String("table_id", table.ID), zap.Error(err))
		return nil, model.NewInternalError()
	}

	// The load is shared by every waiter, so it must outlive the caller
	// that happened to start it.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.loadTimeout)
	defer cancel()

	start := time.Now()
	records, err := src.Load(lctx)
	elapsed := time.Since(start)
	if err != nil {
		breaker.RecordFailure()
		p.metrics.SetDatasetCircuitBreakerState(table.ID, float64(breaker.State()))
		p.metrics.RecordDatasetLoad(table.ID, table.DataSource.Type, "error", elapsed)
		logger.Error("dataset load failed",
			zap.String("table_id", table.ID),
			zap.String("source", table.DataSource.Type),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, model.NewBackendTimeoutError()
		}
		return nil, model.NewBackendUnavailableError()
	}
	breaker.RecordSuccess()
	p.metrics.SetDatasetCircuitBreakerState(table.ID, float64(breaker.State()))
	p.metrics.RecordDatasetLoad(table.ID, table.DataSource.Type, "success", elapsed)

	records = decoder.Decode(records)
	switch {
	case ttl <= 0:
	case p.generation(table.ID) != gen:
		logger.Debug("dataset invalidated during load, not caching", zap.String("table_id", table.ID))
	default:
		if err := p.cache.Set(ctx, table.ID, records, ttl); err != nil {
			logger.Warn("dataset cache write failed", zap.String("table_id", table.ID), zap.Error(err))
		}
		// Invalidate may have run between the check and the write.
		if p.generation(table.ID) != gen {
			_ = p.cache.Delete(ctx, table.ID)
		}
	}
	logger.Info("dataset loaded",
		zap.String("table_id", table.ID),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", elapsed),
	)
	return records, nil
}

// Invalidate drops the cached records of a table so the next read reloads
// the source.
func (p *Provider) Invalidate(ctx context.Context, tableID string) error {
	if _, ok := p.tables.GetTable(tableID); !ok {
		return model.NewNotFoundError(fmt.Sprintf("table %q not found", tableID))
	}
	p.mu.Lock()
	p.generations[tableID]++
	p.mu.Unlock()
	p.group.Forget(tableID)
	if err := p.cache.Delete(ctx, tableID); err != nil {
		return fmt.Errorf("invalidate %s: %w", tableID, err)
	}
	return nil
}

// generation counts the invalidations of a table. A load only leaves its
// records in the cache when no invalidation happened since it started.
func (p *Provider) generation(tableID string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generations[tableID]
}

// SourceFor builds the source declared by table.
func (p *Provider) SourceFor(table model.TableDefinition) (Source, error) {
	ds := table.DataSource
	switch ds.Type {
	case model.SourceInline:
		return NewInlineSource(ds.Records), nil
	case model.SourceFile:
		return NewFileSource(p.baseDir, ds.Path), nil
	case model.SourcePostgres:
		if p.db == nil {
			return nil, errors.New("postgres source used but no database is configured")
		}
		return NewPgSource(p.db, ds.Query, ds.Args), nil
	default:
		return nil, fmt.Errorf("unsupported data source type %q", ds.Type)
	}
}

// ttlFor returns the cache lifetime for table; zero disables caching.
func (p *Provider) ttlFor(table model.TableDefinition) time.Duration {
	if table.DataSource.CacheTTL == "" {
		return p.defaultTTL
	}
	ttl, err := time.ParseDuration(table.DataSource.CacheTTL)
	if err != nil || ttl < 0 {
		return p.defaultTTL
	}
	return ttl
}

func (p *Provider) decoderFor(table model.TableDefinition) *Decoder {
	var types map[string]string
	if p.schemas != nil && table.Schema != "" {
		types, _ = p.schemas.FieldTypes(table.Schema)
	}
	return NewDecoder(table, types)
}

func (p *Provider) breakerFor(tableID string) *Breaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.breakers[tableID]
	if !ok {
		b = NewBreaker(p.breakerCfg.FailureThreshold, p.breakerCfg.SuccessThreshold, p.breakerCfg.Timeout)
		p.breakers[tableID] = b
	}
	return b
}
