package usecase

import (
	"context"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/repository"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/search"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"
)

// DefaultSearchLimit bounds search pages without an explicit limit
const DefaultSearchLimit = 20

// ReaderInterface serves the aggregate read API
type ReaderInterface interface {
	GetCommons(ctx context.Context) ([]string, error)
	GetAllMetadata(ctx context.Context, limit, offset int) (map[string][]model.Record, error)
	GetFlatMetadata(ctx context.Context, limit, offset int) ([]model.Record, error)
	GetCommonsMetadata(ctx context.Context, commons string, limit, offset int) ([]model.Record, error)
	GetAllNamedCommonsMetadata(ctx context.Context, commons string) ([]model.Record, error)
	GetCommonsMetadataGUID(ctx context.Context, commons, guid string) (model.Record, error)
	GetCommonsAttribute(ctx context.Context, commons, what string) (interface{}, error)
	GetStatus(ctx context.Context, commons string) (*model.Status, error)
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	Ping(ctx context.Context) error
}

// SearchRequest is the body of a search call
type SearchRequest struct {
	Query   search.Query `json:"query"`
	Commons string       `json:"commons,omitempty"`
	Limit   *int         `json:"limit,omitempty"`
	Offset  int          `json:"offset,omitempty"`
	// Counts lists paths whose matching-document counts are returned
	Counts []string `json:"counts,omitempty"`
}

// SearchResult is one page of hits plus optional per-field counts
type SearchResult struct {
	Total   int            `json:"total"`
	Results []model.Record `json:"results"`
	Counts  map[string]int `json:"counts,omitempty"`
}

var _ ReaderInterface = (*Reader)(nil)

// Reader reads the aggregate cache
type Reader struct {
	cache   repository.AggregateCache
	builder *search.Builder
	log     logger.Logger
}

// NewReader creates a reader. registry holds the nested paths of the
// populate config and may be nil.
func NewReader(cache repository.AggregateCache, registry *search.Registry, log logger.Logger) *Reader {
	return &Reader{cache: cache, builder: search.NewBuilder(registry), log: log.WithComponent("aggregate-reader")}
}

func (r *Reader) GetCommons(ctx context.Context) ([]string, error) {
	return r.cache.GetCommons(ctx)
}

func (r *Reader) GetAllMetadata(ctx context.Context, limit, offset int) (map[string][]model.Record, error) {
	return r.cache.GetAllMetadata(ctx, limit, offset)
}

// GetFlatMetadata pages each commons and concatenates the records in
// commons order
func (r *Reader) GetFlatMetadata(ctx context.Context, limit, offset int) ([]model.Record, error) {
	names, err := r.cache.GetCommons(ctx)
	if err != nil {
		return nil, err
	}
	all, err := r.cache.GetAllMetadata(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := []model.Record{}
	for _, n := range names {
		out = append(out, all[n]...)
	}
	return out, nil
}

func (r *Reader) GetCommonsMetadata(ctx context.Context, commons string, limit, offset int) ([]model.Record, error) {
	return r.cache.GetCommonsMetadata(ctx, commons, limit, offset)
}

// GetAllNamedCommonsMetadata returns every record of one commons
func (r *Reader) GetAllNamedCommonsMetadata(ctx context.Context, commons string) ([]model.Record, error) {
	return r.cache.GetAllNamedCommonsMetadata(ctx, commons)
}

func (r *Reader) GetCommonsMetadataGUID(ctx context.Context, commons, guid string) (model.Record, error) {
	return r.cache.GetCommonsMetadataGUID(ctx, commons, guid)
}

func (r *Reader) GetCommonsAttribute(ctx context.Context, commons, what string) (interface{}, error) {
	return r.cache.GetCommonsAttribute(ctx, commons, what)
}

func (r *Reader) GetStatus(ctx context.Context, commons string) (*model.Status, error) {
	return r.cache.GetStatus(ctx, commons)
}

// Search compiles req.Query with the nested path registry and runs it
func (r *Reader) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	limit := DefaultSearchLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < 0 || req.Offset < 0 {
		return nil, apperrors.NewValidationError("limit and offset must not be negative")
	}

	dsl, err := r.builder.Build(req.Query)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	hits, total, err := r.cache.Search(ctx, req.Commons, dsl, limit, req.Offset)
	if err != nil {
		return nil, err
	}
	res := &SearchResult{Total: total, Results: hits}
	if res.Results == nil {
		res.Results = []model.Record{}
	}

	if len(req.Counts) > 0 {
		res.Counts = make(map[string]int, len(req.Counts))
		for _, path := range req.Counts {
			q := search.Query{Op: search.OpAnd, Terms: []search.Query{search.Exists(path)}}
			if req.Query.Term != nil || len(req.Query.Terms) > 0 {
				q.Terms = append(q.Terms, req.Query)
			}
			countDSL, err := r.builder.Build(q)
			if err != nil {
				return nil, apperrors.NewValidationError(err.Error())
			}
			_, n, err := r.cache.Search(ctx, req.Commons, countDSL, 0, 0)
			if err != nil {
				return nil, err
			}
			res.Counts[path] = n
		}
	}
	r.log.WithContext(ctx).Debug("Search served", "commons", req.Commons, "total", total)
	return res, nil
}

func (r *Reader) Ping(ctx context.Context) error {
	return r.cache.Ping(ctx)
}
