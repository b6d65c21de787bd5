package model

import (
	"fmt"
	"time"
)

const (
	// DiscoveryGUIDType is the _guid_type of normalized discovery records
	DiscoveryGUIDType = "discovery_metadata"
	// DefaultStudyDataField is the envelope key holding the normalized study
	DefaultStudyDataField = "gen3_discovery"
)

// Record is one normalized aggregate record, the value under its guid
type Record = map[string]interface{}

// Status describes the last refresh of a commons
type Status struct {
	LastUpdate time.Time `json:"last_update"`
	Error      string    `json:"error"`
	Count      int       `json:"count"`
}

// Sidecar attributes stored next to the metadata of a commons
const (
	AttrTags           = "tags"
	AttrInfo           = "info"
	AttrFieldToColumns = "field_to_columns"
	AttrAggregations   = "aggregations"
)

// Attributes lists the sidecar names served by the read API
var Attributes = []string{AttrTags, AttrInfo, AttrFieldToColumns, AttrAggregations}

// IsAttribute reports whether name is a known sidecar
func IsAttribute(name string) bool {
	for _, a := range Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// CommonsEntry is the complete cached snapshot of one commons
type CommonsEntry struct {
	Name         string                 `json:"name"`
	Metadata     []Record               `json:"metadata"`
	GUIDs        []string               `json:"guids"`
	FieldMapping map[string]interface{} `json:"field_to_columns"`
	Tags         map[string][]string    `json:"tags"`
	Info         map[string]interface{} `json:"info"`
	Aggregations map[string]interface{} `json:"aggregations"`
	Status       Status                 `json:"status"`

	// position of each guid in Metadata
	index map[string]int
}

// NewCommonsEntry builds an entry from records keyed by guid in the given
// order. Each metadata element is {guid: record}.
func NewCommonsEntry(name string, order []string, records map[string]Record) *CommonsEntry {
	entry := &CommonsEntry{
		Name:         name,
		Metadata:     make([]Record, 0, len(order)),
		GUIDs:        make([]string, 0, len(order)),
		index:        make(map[string]int, len(order)),
		FieldMapping: map[string]interface{}{},
		Tags:         map[string][]string{},
		Info:         map[string]interface{}{},
		Aggregations: map[string]interface{}{},
	}
	for _, guid := range order {
		rec, ok := records[guid]
		if !ok {
			continue
		}
		if _, dup := entry.index[guid]; dup {
			continue
		}
		entry.index[guid] = len(entry.Metadata)
		entry.Metadata = append(entry.Metadata, Record{guid: rec})
		entry.GUIDs = append(entry.GUIDs, guid)
	}
	entry.Status = Status{LastUpdate: time.Now().UTC(), Count: len(entry.Metadata)}
	return entry
}

// Validate checks that metadata and guids line up
func (e *CommonsEntry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("commons name is required")
	}
	if len(e.Metadata) != len(e.GUIDs) {
		return fmt.Errorf("commons %s: %d metadata entries but %d guids", e.Name, len(e.Metadata), len(e.GUIDs))
	}
	for i, guid := range e.GUIDs {
		if _, ok := e.Metadata[i][guid]; !ok || len(e.Metadata[i]) != 1 {
			return fmt.Errorf("commons %s: metadata[%d] is not keyed by guid %q", e.Name, i, guid)
		}
	}
	return nil
}

// Attribute returns the named sidecar
func (e *CommonsEntry) Attribute(name string) (interface{}, bool) {
	switch name {
	case AttrTags:
		return e.Tags, true
	case AttrInfo:
		return e.Info, true
	case AttrFieldToColumns:
		return e.FieldMapping, true
	case AttrAggregations:
		return e.Aggregations, true
	}
	return nil, false
}

// Record returns the record stored under guid. Entries built by
// NewCommonsEntry look it up by index; others fall back to a scan.
func (e *CommonsEntry) Record(guid string) (Record, bool) {
	if e.index != nil {
		i, ok := e.index[guid]
		if !ok {
			return nil, false
		}
		rec, ok := e.Metadata[i][guid].(Record)
		return rec, ok
	}
	for i, g := range e.GUIDs {
		if g == guid {
			rec, ok := e.Metadata[i][guid].(Record)
			return rec, ok
		}
	}
	return nil, false
}

// Page returns metadata[offset:offset+limit], clamped to the slice
func Page(items []Record, limit, offset int) []Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []Record{}
	}
	end := len(items)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// RefreshEvent is published after a commons refresh attempt
type RefreshEvent struct {
	Commons string `json:"commons"`
	Status  Status `json:"status"`
}

// Event types published on the event bus
const (
	EventCommonsRefreshed = "aggregate.commons.refreshed"
	EventCommonsFailed    = "aggregate.commons.failed"
)
