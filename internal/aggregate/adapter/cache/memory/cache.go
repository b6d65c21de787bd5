package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/search"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
)

// Cache is an in-process AggregateCache. Published entries are never mutated;
// a refresh swaps the pointer under the write lock.
type Cache struct {
	mu       sync.RWMutex
	order    []string
	entries  map[string]*model.CommonsEntry
	statuses map[string]model.Status
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		entries:  make(map[string]*model.CommonsEntry),
		statuses: make(map[string]model.Status),
	}
}

func notFound(commons string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("commons %q", commons))
}

func (c *Cache) entry(commons string) (*model.CommonsEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[commons]
	if !ok {
		return nil, notFound(commons)
	}
	return e, nil
}

func (c *Cache) GetCommons(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.order...), nil
}

func (c *Cache) GetAllMetadata(ctx context.Context, limit, offset int) (map[string][]model.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]model.Record, len(c.order))
	for _, name := range c.order {
		out[name] = model.Page(c.entries[name].Metadata, limit, offset)
	}
	return out, nil
}

func (c *Cache) GetCommonsMetadata(ctx context.Context, commons string, limit, offset int) ([]model.Record, error) {
	e, err := c.entry(commons)
	if err != nil {
		return nil, err
	}
	return model.Page(e.Metadata, limit, offset), nil
}

func (c *Cache) GetAllNamedCommonsMetadata(ctx context.Context, commons string) ([]model.Record, error) {
	e, err := c.entry(commons)
	if err != nil {
		return nil, err
	}
	return e.Metadata, nil
}

func (c *Cache) GetCommonsMetadataGUID(ctx context.Context, commons, guid string) (model.Record, error) {
	e, err := c.entry(commons)
	if err != nil {
		return nil, err
	}
	rec, ok := e.Record(guid)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("guid %q in commons %q", guid, commons))
	}
	return rec, nil
}

func (c *Cache) GetCommonsAttribute(ctx context.Context, commons, what string) (interface{}, error) {
	e, err := c.entry(commons)
	if err != nil {
		return nil, err
	}
	v, ok := e.Attribute(what)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("attribute %q", what))
	}
	return v, nil
}

func (c *Cache) GetStatus(ctx context.Context, commons string) (*model.Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.statuses[commons]
	if !ok {
		return nil, notFound(commons)
	}
	return &s, nil
}

func (c *Cache) Search(ctx context.Context, commons string, dsl map[string]interface{}, limit, offset int) ([]model.Record, int, error) {
	matcher, err := search.Compile(dsl)
	if err != nil {
		return nil, 0, apperrors.NewValidationError(err.Error())
	}

	var entries []*model.CommonsEntry
	if commons != "" {
		e, err := c.entry(commons)
		if err != nil {
			return nil, 0, err
		}
		entries = []*model.CommonsEntry{e}
	} else {
		c.mu.RLock()
		for _, name := range c.order {
			entries = append(entries, c.entries[name])
		}
		c.mu.RUnlock()
	}

	var hits []model.Record
	for _, e := range entries {
		for i, guid := range e.GUIDs {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			rec, ok := e.Metadata[i][guid].(map[string]interface{})
			if ok && matcher.Match(rec) {
				hits = append(hits, e.Metadata[i])
			}
		}
	}
	return model.Page(hits, limit, offset), len(hits), nil
}

// Publish validates entry and makes it the current snapshot of its commons
func (c *Cache) Publish(ctx context.Context, entry *model.CommonsEntry) error {
	if err := entry.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	snapshot := *entry
	snapshot.Status.Count = len(entry.Metadata)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[entry.Name]; !ok {
		c.order = append(c.order, entry.Name)
	}
	c.entries[entry.Name] = &snapshot
	c.statuses[entry.Name] = snapshot.Status
	return nil
}

// SetStatus records a refresh outcome without touching the metadata
func (c *Cache) SetStatus(ctx context.Context, commons string, status model.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[commons] = status
	return nil
}

func (c *Cache) Init(ctx context.Context) error { return nil }

func (c *Cache) Ping(ctx context.Context) error { return ctx.Err() }

func (c *Cache) Close() error { return nil }
