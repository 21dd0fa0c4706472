package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// ElementStore persists canvas elements.
// All implementations must be safe for concurrent use.
type ElementStore interface {
	// Create inserts r, assigning an id when empty. It fails with
	// ErrCodeConflict when the id already exists.
	Create(ctx context.Context, r *Record) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	// Update merges fields into the stored record and bumps its version.
	// A "type" key changes the element type; other reserved keys are ignored.
	Update(ctx context.Context, id string, fields map[string]any) (*Record, error)
	Delete(ctx context.Context, id string) error
	// List returns records in creation order.
	List(ctx context.Context, filter ElementFilter) ([]*Record, error)
	// BatchCreate inserts all records or none.
	BatchCreate(ctx context.Context, recs []*Record) ([]*Record, error)
	// Upsert writes recs in order. New ids are inserted; an existing id has
	// its type and fields overwritten in place, keeping its creation time and
	// list position, and its version bumped.
	Upsert(ctx context.Context, recs []*Record) ([]*Record, error)
	// Replace clears the canvas and inserts recs in one step.
	Replace(ctx context.Context, recs []*Record) (*SyncResult, error)
	// LastSync returns the most recent Replace result, or nil.
	LastSync(ctx context.Context) (*SyncResult, error)
	Count(ctx context.Context) (int, error)
	Vacuum(ctx context.Context) error
	Close() error
}

// prepareNew fills the store-owned fields of a record about to be inserted
// and returns a private copy.
func prepareNew(r *Record, now time.Time) *Record {
	c := r.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Source == "" {
		c.Source = schema.SourceAPI
	}
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now
	return c
}

// prepareOverwrite builds the record that replaces prev with the content of r.
func prepareOverwrite(r, prev *Record, now time.Time) *Record {
	c := r.Clone()
	c.ID = prev.ID
	if c.Source == "" {
		c.Source = schema.SourceAPI
	}
	c.Version = prev.Version + 1
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = now
	c.SyncedAt = prev.SyncedAt
	return c
}

// applyUpdate merges fields into r in place.
func applyUpdate(r *Record, fields map[string]any, now time.Time) error {
	if v, ok := fields["type"]; ok {
		typ, ok := v.(string)
		if !ok {
			return schema.NewErrorf(schema.ErrCodeInvalidInput, "element type must be a string, got %T", v).WithElement(r.ID)
		}
		r.Type = schema.ElementType(typ)
	}
	for k, v := range fields {
		if reservedKeys[k] {
			continue
		}
		if v == nil {
			delete(r.Fields, k)
			continue
		}
		r.Fields[k] = v
	}
	r.Version++
	r.UpdatedAt = now
	return nil
}

// page applies the field conditions and limit/offset of filter to recs,
// which must already be in creation order.
func page(recs []*Record, filter ElementFilter) []*Record {
	out := make([]*Record, 0, len(recs))
	skipped := 0
	for _, r := range recs {
		if !filter.Match(r) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

func storeNotFound(id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "element %q not found", id).WithElement(id)
}

func storeConflict(id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeConflict, "element %q already exists", id).WithElement(id)
}

func nowUTC() time.Time { return time.Now().UTC() }
