package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/search"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(name string, n int, tag string) *model.CommonsEntry {
	order := make([]string, 0, n)
	records := make(map[string]model.Record, n)
	for i := 0; i < n; i++ {
		guid := fmt.Sprintf("%s-%d", name, i)
		order = append(order, guid)
		records[guid] = model.Record{
			"_guid_type":     model.DiscoveryGUIDType,
			"gen3_discovery": map[string]interface{}{"title": tag, "index": float64(i)},
		}
	}
	e := model.NewCommonsEntry(name, order, records)
	e.Tags = map[string][]string{"Disease": {tag}}
	e.Info = map[string]interface{}{"commons_url": "https://" + name}
	return e
}

func TestCache_PublishAndRead(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	require.NoError(t, c.Publish(ctx, entry("alpha", 3, "heart")))
	require.NoError(t, c.Publish(ctx, entry("beta", 1, "lung")))
	require.NoError(t, c.Publish(ctx, entry("alpha", 2, "heart")))

	names, err := c.GetCommons(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	page, err := c.GetCommonsMetadata(ctx, "alpha", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Contains(t, page[0], "alpha-1")

	all, err := c.GetAllMetadata(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all["alpha"], 2)
	assert.Len(t, all["beta"], 1)

	rec, err := c.GetCommonsMetadataGUID(ctx, "beta", "beta-0")
	require.NoError(t, err)
	assert.Equal(t, model.DiscoveryGUIDType, rec["_guid_type"])

	_, err = c.GetCommonsMetadataGUID(ctx, "beta", "nope")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = c.GetCommonsMetadata(ctx, "gamma", 10, 0)
	assert.True(t, apperrors.IsNotFound(err))

	tags, err := c.GetCommonsAttribute(ctx, "alpha", model.AttrTags)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"Disease": {"heart"}}, tags)
	_, err = c.GetCommonsAttribute(ctx, "alpha", "bogus")
	assert.True(t, apperrors.IsNotFound(err))

	status, err := c.GetStatus(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Count)
}

func TestCache_PublishRejectsMisalignedEntry(t *testing.T) {
	c := NewCache()
	bad := entry("alpha", 2, "x")
	bad.GUIDs = bad.GUIDs[:1]
	err := c.Publish(context.Background(), bad)
	assert.True(t, apperrors.IsValidation(err))

	names, _ := c.GetCommons(context.Background())
	assert.Empty(t, names)
}

func TestCache_SetStatusKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	require.NoError(t, c.Publish(ctx, entry("alpha", 2, "x")))

	require.NoError(t, c.SetStatus(ctx, "alpha", model.Status{LastUpdate: time.Now(), Error: "403 Forbidden", Count: 2}))

	meta, err := c.GetAllNamedCommonsMetadata(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, meta, 2)
	status, err := c.GetStatus(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "403 Forbidden", status.Error)

	// a failed first pull has a status but no registry entry
	require.NoError(t, c.SetStatus(ctx, "beta", model.Status{Error: "timeout"}))
	names, _ := c.GetCommons(ctx)
	assert.Equal(t, []string{"alpha"}, names)
}

func TestCache_Search(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	require.NoError(t, c.Publish(ctx, entry("alpha", 3, "heart")))
	require.NoError(t, c.Publish(ctx, entry("beta", 2, "lung")))

	dsl, err := search.NewBuilder(nil).Build(search.Query{Term: &search.Term{Path: "gen3_discovery.title", Value: "heart"}})
	require.NoError(t, err)

	hits, total, err := c.Search(ctx, "", dsl, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, hits, 2)

	_, total, err = c.Search(ctx, "beta", dsl, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	_, _, err = c.Search(ctx, "", map[string]interface{}{"bogus": map[string]interface{}{}}, 10, 0)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCache_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	require.NoError(t, c.Publish(ctx, entry("alpha", 5, "a")))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				meta, err := c.GetAllNamedCommonsMetadata(ctx, "alpha")
				if !assert.NoError(t, err) {
					return
				}
				status, err := c.GetStatus(ctx, "alpha")
				if !assert.NoError(t, err) {
					return
				}
				// every snapshot has either 5 or 10 records, never a mix
				assert.Contains(t, []int{5, 10}, len(meta))
				assert.Contains(t, []int{5, 10}, status.Count)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		n := 5
		if i%2 == 0 {
			n = 10
		}
		require.NoError(t, c.Publish(ctx, entry("alpha", n, "a")))
	}
	close(stop)
	wg.Wait()
}
