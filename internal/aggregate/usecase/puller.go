package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/client"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"

	"golang.org/x/time/rate"
)

// DefaultPageSize is the page size used against peers without an override
const DefaultPageSize = 1000

// PullResult is the union of every page of a peer, in first-seen order
type PullResult struct {
	Order   []string
	Records map[string]model.Record
}

// PullRequest describes one peer metadata service
type PullRequest struct {
	MDSURL   string
	GUIDType string
	PageSize int
	Limiter  *rate.Limiter
}

// PageURL builds the listing URL of one page
func PageURL(mdsURL, guidType string, limit, offset int) string {
	q := url.Values{}
	q.Set("data", "True")
	q.Set("_guid_type", guidType)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return strings.TrimRight(mdsURL, "/") + "/mds/metadata?" + q.Encode()
}

// PullMDS pages through a peer until it returns a short page or a page
// without new guids. Any failure aborts the pull and nothing is returned.
func PullMDS(ctx context.Context, fetcher client.Fetcher, req PullRequest) (*PullResult, error) {
	size := req.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	guidType := req.GUIDType
	if guidType == "" {
		guidType = model.DiscoveryGUIDType
	}

	res := &PullResult{Records: map[string]model.Record{}}
	for offset := 0; ; offset += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := fetcher.Get(ctx, PageURL(req.MDSURL, guidType, size, offset), req.Limiter)
		if err != nil {
			return nil, err
		}
		keys, values, err := decodeOrderedPage(body)
		if err != nil {
			return nil, apperrors.NewUpstreamError(fmt.Sprintf("malformed page at offset %d: %v", offset, err), 0).WithCause(err)
		}

		added := 0
		for i, guid := range keys {
			if _, seen := res.Records[guid]; seen {
				continue
			}
			res.Order = append(res.Order, guid)
			res.Records[guid] = values[i]
			added++
		}
		if len(keys) < size || added == 0 {
			return res, nil
		}
	}
}

// decodeOrderedPage decodes a {guid: record} object keeping key order
func decodeOrderedPage(body []byte) ([]string, []model.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected an object of records")
	}

	var (
		keys   []string
		values []model.Record
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected a guid key")
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		rec, ok := value.(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("record %s is not an object", key)
		}
		keys = append(keys, key)
		values = append(values, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
