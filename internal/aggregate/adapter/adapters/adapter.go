// Package adapters converts non-MDS sources into discovery records.
package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/client"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"golang.org/x/time/rate"
)

// FetchRequest describes one remote source
type FetchRequest struct {
	URL     string
	Filters map[string]interface{}
	Config  map[string]interface{}
	Limiter *rate.Limiter
}

// Mappings controls how fetched items become discovery records
type Mappings struct {
	FieldMappings      map[string]interface{}
	PerItemValues      map[string]map[string]interface{}
	KeepOriginalFields bool
	GlobalFieldFilters []string
	Schema             map[string]config.SchemaField
	StudyDataField     string
	GUIDType           string
}

// MappingsFor builds the mappings of an adapter commons
func MappingsFor(c config.AdapterCommons, schema map[string]config.SchemaField) Mappings {
	return Mappings{
		FieldMappings:      c.FieldMappings,
		PerItemValues:      c.PerItemValues,
		KeepOriginalFields: c.KeepOriginalFields,
		GlobalFieldFilters: c.GlobalFieldFilters,
		Schema:             schema,
		StudyDataField:     c.StudyDataField,
		GUIDType:           c.GUIDType,
	}
}

// Adapter fetches a remote payload and normalizes it into {guid: record}
type Adapter interface {
	Fetch(ctx context.Context, req FetchRequest) (interface{}, error)
	Normalize(raw interface{}, m Mappings) (map[string]model.Record, error)
}

// Registry holds adapters by name
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter called name
func (r *Registry) Register(name string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = a
}

// Get returns the adapter called name
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names lists the registered adapters
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry registers the built-in adapters
func DefaultRegistry(fetcher client.Fetcher, log logger.Logger) *Registry {
	r := NewRegistry()
	r.Register(ICPSRName, NewICPSRAdapter(fetcher, log))
	r.Register(JSONName, NewJSONAdapter(fetcher))
	return r
}

// GetMetadata fetches and normalizes with the named adapter. On any failure
// it logs and returns an empty map together with the error.
func GetMetadata(ctx context.Context, r *Registry, name string, req FetchRequest, m Mappings, log logger.Logger) (map[string]model.Record, error) {
	empty := map[string]model.Record{}
	a, ok := r.Get(name)
	if !ok {
		err := fmt.Errorf("unknown adapter %q", name)
		log.WithContext(ctx).Error("Adapter lookup failed", "adapter", name, "error", err)
		return empty, err
	}
	raw, err := a.Fetch(ctx, req)
	if err != nil {
		log.WithContext(ctx).Error("Adapter fetch failed", "adapter", name, "url", req.URL, "error", err)
		return empty, err
	}
	out, err := a.Normalize(raw, m)
	if err != nil {
		log.WithContext(ctx).Error("Adapter normalize failed", "adapter", name, "error", err)
		return empty, err
	}
	log.WithContext(ctx).Info("Adapter pull finished", "adapter", name, "count", len(out))
	return out, nil
}
