package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/adapters"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/client"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/repository"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/eventbus"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/utils"

	"golang.org/x/sync/errgroup"
)

// RefreshRecorder observes the outcome of each commons refresh
type RefreshRecorder interface {
	ObserveRefresh(commons string, success bool, records int, elapsed time.Duration)
}

// Populator runs aggregation cycles into the cache
type Populator struct {
	cache       repository.AggregateCache
	fetcher     client.Fetcher
	adapters    *adapters.Registry
	events      eventbus.Bus
	recorder    RefreshRecorder
	log         logger.Logger
	concurrency int
	pageSize    int
}

// PopulatorOption configures a Populator
type PopulatorOption func(*Populator)

// WithEvents publishes refresh events on bus
func WithEvents(bus eventbus.Bus) PopulatorOption {
	return func(p *Populator) { p.events = bus }
}

// WithRecorder reports refresh outcomes to r
func WithRecorder(r RefreshRecorder) PopulatorOption {
	return func(p *Populator) { p.recorder = r }
}

// WithConcurrency bounds how many commons refresh at once
func WithConcurrency(n int) PopulatorOption {
	return func(p *Populator) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPageSize sets the default peer page size
func WithPageSize(n int) PopulatorOption {
	return func(p *Populator) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// NewPopulator creates a populator
func NewPopulator(cache repository.AggregateCache, fetcher client.Fetcher, registry *adapters.Registry, log logger.Logger, opts ...PopulatorOption) *Populator {
	p := &Populator{
		cache:       cache,
		fetcher:     fetcher,
		adapters:    registry,
		log:         log.WithComponent("aggregate-populator"),
		concurrency: 4,
		pageSize:    DefaultPageSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Report summarizes one cycle
type Report struct {
	Refreshed []string          `json:"refreshed"`
	Failed    map[string]string `json:"failed"`
}

// Run refreshes every configured commons. A failing commons keeps its
// previous snapshot and records the error in its status. Run only returns
// an error when ctx ends.
func (p *Populator) Run(ctx context.Context, cfg *config.PopulateConfig) (*Report, error) {
	ctx = utils.WithOperation(ctx, "populate")
	report := &Report{Failed: map[string]string{}}
	var mu sync.Mutex
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed[name] = err.Error()
			return
		}
		report.Refreshed = append(report.Refreshed, name)
	}

	p.log.WithContext(ctx).Info("Aggregation cycle started", "commons", len(cfg.CommonsNames()))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, name := range cfg.CommonsNames() {
		name := name
		if mds, ok := cfg.GEN3Commons[name]; ok {
			g.Go(func() error {
				record(name, p.refresh(gctx, name, p.mdsSource(mds), cfg))
				return nil
			})
			continue
		}
		ad := cfg.AdapterCommons[name]
		g.Go(func() error {
			record(name, p.refresh(gctx, name, p.adapterSource(ad, cfg.Configuration.Schema), cfg))
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(report.Refreshed)

	if err := ctx.Err(); err != nil {
		p.log.WithContext(ctx).Warn("Aggregation cycle cancelled", "refreshed", len(report.Refreshed))
		return report, err
	}
	p.log.WithContext(ctx).Info("Aggregation cycle finished", "refreshed", len(report.Refreshed), "failed", len(report.Failed))
	return report, nil
}

// source pulls one commons and describes how to summarize it
type source struct {
	pull           func(ctx context.Context) ([]string, map[string]model.Record, error)
	commonsURL     string
	selectExpr     string
	studyField     string
	columns        map[string]interface{}
	fieldToColumns map[string]interface{}
}

func (p *Populator) mdsSource(c config.MDSCommons) source {
	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = p.pageSize
	}
	req := PullRequest{
		MDSURL:   c.MDSURL,
		GUIDType: c.GUIDType,
		PageSize: pageSize,
		Limiter:  client.NewLimiter(c.RequestsPerSecond),
	}
	return source{
		pull: func(ctx context.Context) ([]string, map[string]model.Record, error) {
			res, err := PullMDS(ctx, p.fetcher, req)
			if err != nil {
				return nil, nil, err
			}
			return res.Order, res.Records, nil
		},
		commonsURL:     c.CommonsURL,
		selectExpr:     c.SelectExpression,
		studyField:     c.StudyDataField,
		columns:        c.ColumnsToFields,
		fieldToColumns: c.ColumnsToFields,
	}
}

func (p *Populator) adapterSource(c config.AdapterCommons, schema map[string]config.SchemaField) source {
	req := adapters.FetchRequest{
		URL:     c.MDSURL,
		Filters: c.Filters,
		Config:  c.Config,
		Limiter: client.NewLimiter(c.RequestsPerSecond),
	}
	mappings := adapters.MappingsFor(c, schema)
	return source{
		pull: func(ctx context.Context) ([]string, map[string]model.Record, error) {
			records, err := adapters.GetMetadata(ctx, p.adapters, c.Adapter, req, mappings, p.log)
			if err != nil {
				return nil, nil, err
			}
			order := make([]string, 0, len(records))
			for guid := range records {
				order = append(order, guid)
			}
			sort.Strings(order)
			return order, records, nil
		},
		commonsURL:     c.CommonsURL,
		selectExpr:     c.SelectExpression,
		studyField:     c.StudyDataField,
		fieldToColumns: c.FieldMappings,
	}
}

func (p *Populator) refresh(ctx context.Context, name string, src source, cfg *config.PopulateConfig) error {
	start := time.Now()
	ctx = utils.WithCommons(ctx, name)
	log := p.log.WithContext(ctx)

	entry, err := p.build(ctx, name, src, cfg)
	if err == nil {
		err = p.cache.Publish(ctx, entry)
	}
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("Refresh cancelled, nothing published")
			return ctx.Err()
		}
		log.Error("Refresh failed, keeping previous snapshot", "error", err)
		p.fail(ctx, name, err)
		p.observe(name, false, 0, time.Since(start))
		return err
	}

	log.Info("Commons published", "count", len(entry.GUIDs), "elapsed", time.Since(start).String())
	p.observe(name, true, len(entry.GUIDs), time.Since(start))
	p.emit(ctx, model.EventCommonsRefreshed, model.RefreshEvent{Commons: name, Status: entry.Status})
	return nil
}

func (p *Populator) build(ctx context.Context, name string, src source, cfg *config.PopulateConfig) (*model.CommonsEntry, error) {
	selector, err := NewSelector(src.selectExpr)
	if err != nil {
		return nil, fmt.Errorf("commons %s: %w", name, err)
	}
	order, records, err := src.pull(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	studyField := src.studyField
	if studyField == "" {
		studyField = model.DefaultStudyDataField
	}
	order = selector.Filter(order, records)
	ApplyColumnsToFields(records, src.columns, studyField)

	entry := model.NewCommonsEntry(name, order, records)
	entry.Info = map[string]interface{}{"commons_url": src.commonsURL}
	if src.fieldToColumns != nil {
		entry.FieldMapping = src.fieldToColumns
	}
	entry.Tags = CollectTags(entry.GUIDs, records, studyField)
	entry.Aggregations = ComputeAggregations(entry.GUIDs, records, cfg.Aggregations, studyField)
	return entry, nil
}

// fail records err in the status of name, keeping the previous count
func (p *Populator) fail(ctx context.Context, name string, err error) {
	status := model.Status{LastUpdate: time.Now().UTC(), Error: err.Error()}
	if prev, perr := p.cache.GetStatus(ctx, name); perr == nil && prev != nil {
		status.Count = prev.Count
	}
	if serr := p.cache.SetStatus(ctx, name, status); serr != nil {
		p.log.WithContext(ctx).Error("Failed to record commons status", "commons", name, "error", serr)
	}
	p.emit(ctx, model.EventCommonsFailed, model.RefreshEvent{Commons: name, Status: status})
}

func (p *Populator) emit(ctx context.Context, eventType string, ev model.RefreshEvent) {
	if p.events == nil {
		return
	}
	p.events.PublishAndForget(ctx, eventbus.NewEvent(eventType, ev, "aggregate"))
}

func (p *Populator) observe(name string, ok bool, n int, d time.Duration) {
	if p.recorder != nil {
		p.recorder.ObserveRefresh(name, ok, n, d)
	}
}
