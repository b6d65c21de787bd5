package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/search"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Generation key suffixes
const (
	keyMetadata = "metadata"
	keyGUIDs    = "guids"
	keyIndex    = "index"
	keyAttrs    = "attrs"
)

var generationKeys = []string{keyMetadata, keyGUIDs, keyIndex, keyAttrs}

// writeChunk bounds the number of values per RPUSH/HSET command
const writeChunk = 500

// flipScript makes a fully written generation current. It persists the new
// generation keys, gives the previous generation a grace TTL and stores the
// status. It fails with STALE when current no longer holds the generation the
// caller read. Every key it touches is named in KEYS and shares the commons
// hash slot.
//
// KEYS: current, status, new generation keys, previous generation keys
// ARGV: generation, status JSON, previous generation or "", grace seconds,
// number of keys per generation
var flipScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1]) or ''
if cur ~= ARGV[3] then
  return redis.error_reply('STALE ' .. cur)
end
local n = tonumber(ARGV[5])
for i = 3, 2 + n do
  redis.call('PERSIST', KEYS[i])
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
for i = 3 + n, #KEYS do
  redis.call('EXPIRE', KEYS[i], tonumber(ARGV[4]))
end
return ARGV[3]
`)

// registerScript appends a commons to the registry on its first publication.
//
// KEYS: registry list, registry set
// ARGV: commons name
var registerScript = redis.NewScript(`
if redis.call('SADD', KEYS[2], ARGV[1]) == 1 then
  redis.call('RPUSH', KEYS[1], ARGV[1])
end
return 1
`)

// flipAttempts bounds retries when another publisher flips the same commons
const flipAttempts = 3

// Config holds the redis cache settings
type Config struct {
	Namespace string
	// GraceTTL keeps a replaced generation readable for in-flight readers
	GraceTTL time.Duration
	// StagingTTL expires generations abandoned before their flip
	StagingTTL time.Duration
}

// Cache is an AggregateCache backed by redis
type Cache struct {
	client redis.UniversalClient
	cfg    Config
	log    logger.Logger
}

// NewCache creates a cache on client
func NewCache(client redis.UniversalClient, cfg Config, log logger.Logger) *Cache {
	if cfg.Namespace == "" {
		cfg.Namespace = "aggregate"
	}
	if cfg.GraceTTL <= 0 {
		cfg.GraceTTL = time.Minute
	}
	if cfg.StagingTTL <= 0 {
		cfg.StagingTTL = time.Hour
	}
	return &Cache{client: client, cfg: cfg, log: log.WithComponent("redis-aggregate-cache")}
}

// Registry keys share the {commons} hash tag and the keys of one commons
// share a {<name>} tag, so each script runs in a single cluster slot.
func (c *Cache) registryKey() string    { return c.cfg.Namespace + ":{commons}" }
func (c *Cache) registrySetKey() string { return c.cfg.Namespace + ":{commons}:names" }
func (c *Cache) commonsKey(commons, suffix string) string {
	return fmt.Sprintf("%s:commons:{%s}:%s", c.cfg.Namespace, commons, suffix)
}
func (c *Cache) generationPrefix(commons string) string {
	return c.commonsKey(commons, "gen:")
}
func (c *Cache) generationKey(commons, gen, suffix string) string {
	return c.generationPrefix(commons) + gen + ":" + suffix
}

// current resolves the live generation of commons once per read
func (c *Cache) current(ctx context.Context, commons string) (string, error) {
	gen, err := c.client.Get(ctx, c.commonsKey(commons, "current")).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("commons %q", commons))
	}
	if err != nil {
		return "", apperrors.WrapStoreError(err, "failed to resolve commons generation")
	}
	return gen, nil
}

func decodeRecords(raw []string) ([]model.Record, error) {
	out := make([]model.Record, 0, len(raw))
	for _, item := range raw {
		var rec model.Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("corrupt cached record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Cache) readRange(ctx context.Context, commons, gen string, limit, offset int) ([]model.Record, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit >= 0 {
		if limit == 0 {
			return []model.Record{}, nil
		}
		stop = int64(offset + limit - 1)
	}
	raw, err := c.client.LRange(ctx, c.generationKey(commons, gen, keyMetadata), int64(offset), stop).Result()
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to read commons metadata")
	}
	return decodeRecords(raw)
}

func (c *Cache) GetCommons(ctx context.Context) ([]string, error) {
	names, err := c.client.LRange(ctx, c.registryKey(), 0, -1).Result()
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to read commons registry")
	}
	return names, nil
}

func (c *Cache) GetAllMetadata(ctx context.Context, limit, offset int) (map[string][]model.Record, error) {
	names, err := c.GetCommons(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]model.Record, len(names))
	for _, name := range names {
		page, err := c.GetCommonsMetadata(ctx, name, limit, offset)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = page
	}
	return out, nil
}

func (c *Cache) GetCommonsMetadata(ctx context.Context, commons string, limit, offset int) ([]model.Record, error) {
	gen, err := c.current(ctx, commons)
	if err != nil {
		return nil, err
	}
	return c.readRange(ctx, commons, gen, limit, offset)
}

func (c *Cache) GetAllNamedCommonsMetadata(ctx context.Context, commons string) ([]model.Record, error) {
	return c.GetCommonsMetadata(ctx, commons, -1, 0)
}

func (c *Cache) GetCommonsMetadataGUID(ctx context.Context, commons, guid string) (model.Record, error) {
	gen, err := c.current(ctx, commons)
	if err != nil {
		return nil, err
	}
	notFound := apperrors.NewNotFoundError(fmt.Sprintf("guid %q in commons %q", guid, commons))

	pos, err := c.client.HGet(ctx, c.generationKey(commons, gen, keyIndex), guid).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, notFound
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to read guid index")
	}
	raw, err := c.client.LIndex(ctx, c.generationKey(commons, gen, keyMetadata), pos).Result()
	if errors.Is(err, redis.Nil) {
		return nil, notFound
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to read record")
	}
	var wrapped model.Record
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("corrupt cached record: %w", err)
	}
	rec, ok := wrapped[guid].(map[string]interface{})
	if !ok {
		return nil, notFound
	}
	return rec, nil
}

func (c *Cache) GetCommonsAttribute(ctx context.Context, commons, what string) (interface{}, error) {
	if !model.IsAttribute(what) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("attribute %q", what))
	}
	gen, err := c.current(ctx, commons)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.HGet(ctx, c.generationKey(commons, gen, keyAttrs), what).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("attribute %q", what))
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to read commons attribute")
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("corrupt cached attribute: %w", err)
	}
	return v, nil
}

func (c *Cache) GetStatus(ctx context.Context, commons string) (*model.Status, error) {
	raw, err := c.client.Get(ctx, c.commonsKey(commons, "status")).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("commons %q", commons))
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to read commons status")
	}
	var status model.Status
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("corrupt cached status: %w", err)
	}
	return &status, nil
}

func (c *Cache) Search(ctx context.Context, commons string, dsl map[string]interface{}, limit, offset int) ([]model.Record, int, error) {
	matcher, err := search.Compile(dsl)
	if err != nil {
		return nil, 0, apperrors.NewValidationError(err.Error())
	}
	names := []string{commons}
	if commons == "" {
		if names, err = c.GetCommons(ctx); err != nil {
			return nil, 0, err
		}
	}

	var hits []model.Record
	for _, name := range names {
		records, err := c.GetAllNamedCommonsMetadata(ctx, name)
		if err != nil {
			if commons == "" && apperrors.IsNotFound(err) {
				continue
			}
			return nil, 0, err
		}
		for _, wrapped := range records {
			for _, v := range wrapped {
				if rec, ok := v.(map[string]interface{}); ok && matcher.Match(rec) {
					hits = append(hits, wrapped)
				}
			}
		}
	}
	return model.Page(hits, limit, offset), len(hits), nil
}

// Publish writes entry under a fresh generation, then flips the current
// pointer in one script call.
func (c *Cache) Publish(ctx context.Context, entry *model.CommonsEntry) error {
	if err := entry.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	gen := uuid.NewString()
	name := entry.Name

	if err := c.writeGeneration(ctx, entry, gen); err != nil {
		return apperrors.WrapStoreError(err, fmt.Sprintf("failed to write generation for %s", name))
	}

	status := entry.Status
	status.Count = len(entry.Metadata)
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return err
	}

	var prev string
	for attempt := 1; ; attempt++ {
		prev, err = c.client.Get(ctx, c.commonsKey(name, "current")).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return apperrors.WrapStoreError(err, fmt.Sprintf("failed to resolve generation of %s", name))
		}
		keys, args := c.flipArgs(name, gen, prev, string(statusJSON))
		err = flipScript.Run(ctx, c.client, keys, args...).Err()
		if err == nil {
			break
		}
		if !strings.HasPrefix(err.Error(), "STALE") || attempt == flipAttempts {
			return apperrors.WrapStoreError(err, fmt.Sprintf("failed to publish %s", name))
		}
	}
	if err := registerScript.Run(ctx, c.client, []string{c.registryKey(), c.registrySetKey()}, name).Err(); err != nil {
		return apperrors.WrapStoreError(err, fmt.Sprintf("failed to register %s", name))
	}
	c.log.WithContext(ctx).Info("Published commons generation", "commons", name, "generation", gen, "previous", prev, "count", status.Count)
	return nil
}

// flipArgs names every key flipScript touches: current, status, the new
// generation and, when there is one, the previous generation
func (c *Cache) flipArgs(name, gen, prev, status string) ([]string, []interface{}) {
	keys := []string{c.commonsKey(name, "current"), c.commonsKey(name, "status")}
	keys = append(keys, c.GenerationKeys(name, gen)...)
	if prev != "" && prev != gen {
		keys = append(keys, c.GenerationKeys(name, prev)...)
	}
	args := []interface{}{gen, status, prev, int64(c.cfg.GraceTTL.Seconds()), len(generationKeys)}
	return keys, args
}

func (c *Cache) writeGeneration(ctx context.Context, entry *model.CommonsEntry, gen string) error {
	name := entry.Name
	metaKey := c.generationKey(name, gen, keyMetadata)
	guidKey := c.generationKey(name, gen, keyGUIDs)
	indexKey := c.generationKey(name, gen, keyIndex)
	attrKey := c.generationKey(name, gen, keyAttrs)

	attrs := make([]interface{}, 0, 2*len(model.Attributes))
	for _, what := range model.Attributes {
		v, _ := entry.Attribute(what)
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", what, err)
		}
		attrs = append(attrs, what, string(raw))
	}

	for start := 0; start < len(entry.Metadata) || start == 0; start += writeChunk {
		end := start + writeChunk
		if end > len(entry.Metadata) {
			end = len(entry.Metadata)
		}
		_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			if start == 0 {
				pipe.HSet(ctx, attrKey, attrs...)
				pipe.Expire(ctx, attrKey, c.cfg.StagingTTL)
			}
			if end <= start {
				return nil
			}
			meta := make([]interface{}, 0, end-start)
			guids := make([]interface{}, 0, end-start)
			index := make([]interface{}, 0, 2*(end-start))
			for i := start; i < end; i++ {
				raw, err := json.Marshal(entry.Metadata[i])
				if err != nil {
					return fmt.Errorf("failed to encode record %s: %w", entry.GUIDs[i], err)
				}
				meta = append(meta, string(raw))
				guids = append(guids, entry.GUIDs[i])
				index = append(index, entry.GUIDs[i], strconv.Itoa(i))
			}
			pipe.RPush(ctx, metaKey, meta...)
			pipe.RPush(ctx, guidKey, guids...)
			pipe.HSet(ctx, indexKey, index...)
			for _, k := range []string{metaKey, guidKey, indexKey} {
				pipe.Expire(ctx, k, c.cfg.StagingTTL)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if end >= len(entry.Metadata) {
			break
		}
	}
	return nil
}

// SetStatus records a refresh outcome without touching the current generation
func (c *Cache) SetStatus(ctx context.Context, commons string, status model.Status) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.commonsKey(commons, "status"), raw, 0).Err(); err != nil {
		return apperrors.WrapStoreError(err, "failed to store commons status")
	}
	return nil
}

// Init checks connectivity and loads the publish scripts
func (c *Cache) Init(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return err
	}
	if err := flipScript.Load(ctx, c.client).Err(); err != nil {
		return err
	}
	return registerScript.Load(ctx, c.client).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// GenerationKeys lists the keys of one generation, for inspection and tests
func (c *Cache) GenerationKeys(commons, gen string) []string {
	keys := make([]string, 0, len(generationKeys))
	for _, s := range generationKeys {
		keys = append(keys, c.generationKey(commons, gen, s))
	}
	return keys
}

// CurrentGeneration returns the live generation id of commons
func (c *Cache) CurrentGeneration(ctx context.Context, commons string) (string, error) {
	return c.current(ctx, commons)
}
