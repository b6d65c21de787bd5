package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultLimit is applied when a list request carries no limit
	DefaultLimit = 20
	// MaxLimit caps the page size of any list request
	MaxLimit = 2000
)

// DefaultAuthzJSON is the authz object assigned to records created without one
const DefaultAuthzJSON = `{"version":0,"_resource_paths":["/open"]}`

// MetadataRecord is one GUID-keyed metadata document. Only authz, baseid and
// created_date are promoted out of Data.
type MetadataRecord struct {
	GUID        string                 `json:"guid" bson:"_id"`
	Data        map[string]interface{} `json:"data" bson:"data"`
	Authz       map[string]interface{} `json:"authz" bson:"authz"`
	BaseID      *string                `json:"baseid,omitempty" bson:"baseid,omitempty"`
	CreatedDate *time.Time             `json:"created_date,omitempty" bson:"created_date,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored state
func (r *MetadataRecord) Clone() *MetadataRecord {
	if r == nil {
		return nil
	}
	out := &MetadataRecord{
		GUID:  r.GUID,
		Data:  CloneObject(r.Data),
		Authz: CloneObject(r.Authz),
	}
	if r.BaseID != nil {
		b := *r.BaseID
		out.BaseID = &b
	}
	if r.CreatedDate != nil {
		d := *r.CreatedDate
		out.CreatedDate = &d
	}
	return out
}

// Alias maps an alternate name onto a GUID
type Alias struct {
	Alias string `json:"alias" bson:"_id"`
	GUID  string `json:"guid" bson:"guid"`
}

// IndexPath is a dotted path into data that the store keeps an index for
type IndexPath struct {
	Path      string    `json:"path" bson:"_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ParseAuthz decodes an authz JSON object. Scalars and null are rejected.
func ParseAuthz(raw string) (map[string]interface{}, error) {
	var authz map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &authz); err != nil {
		return nil, fmt.Errorf("authz must be a JSON object: %w", err)
	}
	if authz == nil {
		return nil, fmt.Errorf("authz must not be null")
	}
	return authz, nil
}

// ClampLimit applies the default and the upper bound to a page size
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
