package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// runContract exercises the ElementStore behavior every backend shares.
func runContract(t *testing.T, newStore func(t *testing.T) ElementStore) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, rect("A", 50, 50, "Start"))
		require.NoError(t, err)
		assert.Equal(t, "A", created.ID)
		assert.Equal(t, 1, created.Version)
		assert.Equal(t, schema.SourceAPI, created.Source)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := s.Get(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, schema.ElementRectangle, got.Type)
		assert.Equal(t, "Start", got.Fields["text"])
		assert.EqualValues(t, 50, got.Fields["x"])
	})

	t.Run("CreateAssignsID", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(context.Background(), &Record{Type: schema.ElementText, Fields: map[string]any{"text": "note"}})
		require.NoError(t, err)
		assert.Len(t, created.ID, 36)
	})

	t.Run("CreateConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Create(ctx, rect("A", 0, 0, "a"))
		require.NoError(t, err)

		_, err = s.Create(ctx, rect("A", 1, 1, "b"))
		require.Error(t, err)
		assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "nope")
		require.Error(t, err)
		assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
	})

	t.Run("UpdateMergesFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Create(ctx, rect("A", 10, 20, "Old"))
		require.NoError(t, err)

		updated, err := s.Update(ctx, "A", map[string]any{
			"text":    "New",
			"width":   nil,
			"version": 99,
			"type":    "ellipse",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)
		assert.Equal(t, schema.ElementEllipse, updated.Type)
		assert.Equal(t, "New", updated.Fields["text"])
		assert.NotContains(t, updated.Fields, "width")
		assert.EqualValues(t, 10, updated.Fields["x"])

		got, err := s.Get(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, "New", got.Fields["text"])
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(context.Background(), "nope", map[string]any{"x": 1})
		assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
	})

	t.Run("UpdateRejectsNonStringType", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Create(ctx, rect("A", 0, 0, "a"))
		require.NoError(t, err)
		_, err = s.Update(ctx, "A", map[string]any{"type": 7})
		assert.Equal(t, schema.ErrCodeInvalidInput, schema.CodeOf(err))
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Create(ctx, rect("A", 0, 0, "a"))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "A"))
		_, err = s.Get(ctx, "A")
		assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
		assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(s.Delete(ctx, "A")))
	})

	t.Run("ListOrderFilterPaging", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.BatchCreate(ctx, []*Record{
			rect("A", 290, 50, "Start"),
			arrow("arrow-A-B", "A", "B"),
			rect("B", 290, 200, "Check"),
			rect("C", 180, 350, "Done"),
		})
		require.NoError(t, err)

		all, err := s.List(ctx, ElementFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "arrow-A-B", "B", "C"}, recordIDs(all))

		rects, err := s.List(ctx, ElementFilter{Type: schema.ElementRectangle})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, recordIDs(rects))

		byField, err := s.List(ctx, ElementFilter{Fields: map[string]string{"x": "290"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, recordIDs(byField))

		paged, err := s.List(ctx, ElementFilter{Type: schema.ElementRectangle, Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, recordIDs(paged))
	})

	t.Run("BatchCreateIsAtomic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Create(ctx, rect("B", 0, 0, "b"))
		require.NoError(t, err)

		_, err = s.BatchCreate(ctx, []*Record{rect("A", 0, 0, "a"), rect("B", 0, 0, "dup")})
		require.Error(t, err)
		assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("UpsertInsertsAndOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.BatchCreate(ctx, []*Record{rect("A", 0, 0, "a"), rect("B", 0, 0, "b")})
		require.NoError(t, err)
		before, err := s.Get(ctx, "A")
		require.NoError(t, err)

		out, err := s.Upsert(ctx, []*Record{
			{ID: "A", Type: schema.ElementEllipse, Fields: map[string]any{"text": "again"}},
			rect("C", 0, 0, "c"),
		})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, 2, out[0].Version)
		assert.Equal(t, 1, out[1].Version)

		got, err := s.Get(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, schema.ElementEllipse, got.Type)
		assert.Equal(t, map[string]any{"text": "again"}, got.Fields)
		assert.Equal(t, 2, got.Version)
		assert.True(t, before.CreatedAt.Equal(got.CreatedAt))

		all, err := s.List(ctx, ElementFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, recordIDs(all))

		again, err := s.Upsert(ctx, []*Record{rect("A", 0, 0, "third")})
		require.NoError(t, err)
		assert.Equal(t, 3, again[0].Version)
	})

	t.Run("ReplaceAndLastSync", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		last, err := s.LastSync(ctx)
		require.NoError(t, err)
		assert.Nil(t, last)

		_, err = s.BatchCreate(ctx, []*Record{rect("old1", 0, 0, "x"), rect("old2", 0, 0, "y"), rect("old3", 0, 0, "z")})
		require.NoError(t, err)

		res, err := s.Replace(ctx, []*Record{rect("A", 1, 1, "a"), rect("B", 2, 2, "b")})
		require.NoError(t, err)
		assert.Equal(t, 3, res.BeforeCount)
		assert.Equal(t, 2, res.AfterCount)

		all, err := s.List(ctx, ElementFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, recordIDs(all))
		require.NotNil(t, all[0].SyncedAt)

		last, err = s.LastSync(ctx)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, 3, last.BeforeCount)
		assert.Equal(t, 2, last.AfterCount)
	})

	t.Run("ReplaceWithEmptyClears", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Create(ctx, rect("A", 0, 0, "a"))
		require.NoError(t, err)

		res, err := s.Replace(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res.BeforeCount)
		assert.Zero(t, res.AfterCount)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("NestedFieldsSurvive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Create(ctx, arrow("arrow-A-B", "A", "B"))
		require.NoError(t, err)

		got, err := s.Get(ctx, "arrow-A-B")
		require.NoError(t, err)
		assert.Equal(t, []any{[]any{0.0, 0.0}, []any{0.0, 90.0}}, got.Fields["points"])
		assert.Equal(t, "A", got.Fields["from"])
	})

	t.Run("Vacuum", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Vacuum(context.Background()))
	})
}

func rect(id string, x, y float64, text string) *Record {
	return &Record{ID: id, Type: schema.ElementRectangle, Fields: map[string]any{
		"x": x, "y": y, "width": 120.0, "height": 60.0, "text": text,
	}}
}

func arrow(id, from, to string) *Record {
	return &Record{ID: id, Type: schema.ElementArrow, Fields: map[string]any{
		"from": from, "to": to,
		"points": []any{[]any{0.0, 0.0}, []any{0.0, 90.0}},
	}}
}

func recordIDs(recs []*Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}
