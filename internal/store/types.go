package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Keys owned by the store. They are never kept in Record.Fields.
var reservedKeys = map[string]bool{
	"id":        true,
	"type":      true,
	"version":   true,
	"source":    true,
	"createdAt": true,
	"updatedAt": true,
	"syncedAt":  true,
}

// Record is a persisted canvas element: store metadata plus the element's
// free-form fields (geometry, style, text, points, ...).
type Record struct {
	ID        string
	Type      schema.ElementType
	Fields    map[string]any
	Version   int
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
	SyncedAt  *time.Time
}

// Map returns the flattened JSON view of the record.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.Fields)+7)
	maps.Copy(m, r.Fields)
	m["id"] = r.ID
	m["type"] = string(r.Type)
	m["version"] = r.Version
	if r.Source != "" {
		m["source"] = r.Source
	}
	if !r.CreatedAt.IsZero() {
		m["createdAt"] = r.CreatedAt.Format(time.RFC3339Nano)
	}
	if !r.UpdatedAt.IsZero() {
		m["updatedAt"] = r.UpdatedAt.Format(time.RFC3339Nano)
	}
	if r.SyncedAt != nil {
		m["syncedAt"] = r.SyncedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	rec, err := RecordFromMap(m)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// Clone returns a copy that shares no maps with r.
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = maps.Clone(r.Fields)
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}
	if r.SyncedAt != nil {
		t := *r.SyncedAt
		c.SyncedAt = &t
	}
	return &c
}

// RecordFromMap splits a flattened element object into metadata and fields.
// Only id and type are taken from the map; store-owned metadata is ignored.
func RecordFromMap(m map[string]any) (*Record, error) {
	r := &Record{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		if !reservedKeys[k] {
			r.Fields[k] = v
		}
	}
	if v, ok := m["id"]; ok && v != nil {
		id, ok := v.(string)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "element id must be a string, got %T", v)
		}
		r.ID = id
	}
	if v, ok := m["type"]; ok {
		typ, ok := v.(string)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "element type must be a string, got %T", v)
		}
		r.Type = schema.ElementType(typ)
	}
	return r, nil
}

// RecordFromElement converts a synthesized element into a record.
func RecordFromElement(e schema.Element, source string) (*Record, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal element %s: %w", e.ElementID(), err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal element %s: %w", e.ElementID(), err)
	}
	r, err := RecordFromMap(m)
	if err != nil {
		return nil, err
	}
	r.Source = source
	return r, nil
}

// RecordsFromElements converts a conversion result in order.
func RecordsFromElements(elems []schema.Element, source string) ([]*Record, error) {
	recs := make([]*Record, 0, len(elems))
	for _, e := range elems {
		r, err := RecordFromElement(e, source)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// ElementFilter selects records by type and exact field values. Field values
// are compared in their string form, so "120" matches the number 120.
type ElementFilter struct {
	Type   schema.ElementType
	Fields map[string]string
	Limit  int
	Offset int
}

// Match reports whether r satisfies the type and field conditions.
func (f ElementFilter) Match(r *Record) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if len(f.Fields) == 0 {
		return true
	}
	m := r.Map()
	for k, want := range f.Fields {
		v, ok := m[k]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

// SyncResult reports a full canvas replacement.
type SyncResult struct {
	BeforeCount int       `json:"beforeCount"`
	AfterCount  int       `json:"afterCount"`
	SyncedAt    time.Time `json:"syncedAt"`
}
