// Package memory is an in-process MetadataStore used by tests and by
// STORE_BACKEND=memory deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/query"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/repository"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
)

var _ repository.MetadataStore = (*Store)(nil)

// Store keeps records, aliases and index paths in maps guarded by one lock
type Store struct {
	mu      sync.RWMutex
	records map[string]*model.MetadataRecord
	aliases map[string]string
	indexes map[string]time.Time
	now     func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		records: make(map[string]*model.MetadataRecord),
		aliases: make(map[string]string),
		indexes: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *Store) Get(ctx context.Context, guid string) (*model.MetadataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[guid]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("guid %q", guid))
	}
	return rec.Clone(), nil
}

func (s *Store) List(ctx context.Context, q repository.ListQuery) ([]*model.MetadataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guids := make([]string, 0, len(s.records))
	for guid := range s.records {
		guids = append(guids, guid)
	}
	sort.Strings(guids)

	out := make([]*model.MetadataRecord, 0)
	skipped := 0
	for _, guid := range guids {
		rec := s.records[guid]
		if !query.Match(q.Filter, rec.Data) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, records []*model.MetadataRecord, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.GUID]; dup {
			return apperrors.NewConflictError(fmt.Sprintf("guid %q appears twice in the request", rec.GUID))
		}
		seen[rec.GUID] = struct{}{}
		if _, exists := s.records[rec.GUID]; exists && !overwrite {
			return apperrors.NewConflictError(fmt.Sprintf("guid %q already exists", rec.GUID))
		}
	}

	now := s.now().UTC()
	for _, rec := range records {
		stored := rec.Clone()
		if stored.CreatedDate == nil {
			if prev, ok := s.records[rec.GUID]; ok && prev.CreatedDate != nil {
				stored.CreatedDate = prev.CreatedDate
			} else {
				stored.CreatedDate = &now
			}
		}
		s.records[rec.GUID] = stored
	}
	return nil
}

func (s *Store) Update(ctx context.Context, guid string, data map[string]interface{}, merge bool) (*model.MetadataRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[guid]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("guid %q", guid))
	}
	updated := rec.Clone()
	if merge {
		updated.Data = model.ShallowMerge(updated.Data, model.CloneObject(data))
	} else {
		updated.Data = model.CloneObject(data)
	}
	s.records[guid] = updated
	return updated.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, guid string) (*model.MetadataRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[guid]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("guid %q", guid))
	}
	delete(s.records, guid)
	for alias, target := range s.aliases {
		if target == guid {
			delete(s.aliases, alias)
		}
	}
	return rec, nil
}

func (s *Store) GetAlias(ctx context.Context, alias string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guid, ok := s.aliases[alias]
	if !ok {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("alias %q", alias))
	}
	return guid, nil
}

func (s *Store) ListAliases(ctx context.Context, guid string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.records[guid]; !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("guid %q", guid))
	}
	return s.aliasesOf(guid), nil
}

func (s *Store) aliasesOf(guid string) []string {
	out := make([]string, 0)
	for alias, target := range s.aliases {
		if target == guid {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) CreateAliases(ctx context.Context, guid string, aliases []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[guid]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("guid %q", guid))
	}
	for _, alias := range aliases {
		if _, taken := s.aliases[alias]; taken {
			return apperrors.NewConflictError(fmt.Sprintf("alias %q already exists", alias))
		}
	}
	for _, alias := range aliases {
		s.aliases[alias] = guid
	}
	return nil
}

func (s *Store) ReplaceAliases(ctx context.Context, guid string, aliases []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[guid]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("guid %q", guid))
	}
	for _, alias := range aliases {
		if target, taken := s.aliases[alias]; taken && target != guid {
			return apperrors.NewConflictError(fmt.Sprintf("alias %q belongs to another guid", alias))
		}
	}
	for _, alias := range s.aliasesOf(guid) {
		delete(s.aliases, alias)
	}
	for _, alias := range aliases {
		s.aliases[alias] = guid
	}
	return nil
}

func (s *Store) DeleteAlias(ctx context.Context, guid, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target, ok := s.aliases[alias]; !ok || target != guid {
		return apperrors.NewNotFoundError(fmt.Sprintf("alias %q for guid %q", alias, guid))
	}
	delete(s.aliases, alias)
	return nil
}

func (s *Store) DeleteAliases(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[guid]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("guid %q", guid))
	}
	for _, alias := range s.aliasesOf(guid) {
		delete(s.aliases, alias)
	}
	return nil
}

func (s *Store) ListIndexPaths(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.indexes))
	for path := range s.indexes {
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateIndexPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indexes[path]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("index path %q already exists", path))
	}
	s.indexes[path] = s.now()
	return nil
}

func (s *Store) DeleteIndexPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indexes[path]; !exists {
		return apperrors.NewNotFoundError(fmt.Sprintf("index path %q", path))
	}
	delete(s.indexes, path)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}
