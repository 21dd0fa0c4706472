package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Query parameters of the search endpoint that are not field filters.
var searchParams = map[string]bool{
	"type": true, "where": true, "engine": true, "select": true, "limit": true, "offset": true,
}

// handleListElements returns every element, optionally narrowed by type.
func (s *Server) handleListElements(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	recs, err := s.deps.Store.List(r.Context(), store.ElementFilter{
		Type:   schema.ElementType(r.URL.Query().Get("type")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"elements": nonNil(recs), "count": len(recs)})
}

// handleCreateElement creates one element. A client-supplied id is kept, and
// posting an id that already exists overwrites that element.
func (s *Server) handleCreateElement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Validator.ValidateElement(body).ToError(); err != nil {
		writeError(w, err)
		return
	}

	rec, err := store.RecordFromMap(body)
	if err != nil {
		writeError(w, err)
		return
	}
	rec.Source = schema.SourceAPI

	var created *store.Record
	if rec.ID == "" {
		created, err = s.deps.Store.Create(ctx, rec)
	} else {
		var out []*store.Record
		if out, err = s.deps.Store.Upsert(ctx, []*store.Record{rec}); err == nil {
			created = out[0]
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	ctx = logging.WithElementID(ctx, created.ID)
	kind, status := schema.EventElementCreated, http.StatusCreated
	if created.Version > 1 {
		kind, status = schema.EventElementUpdated, http.StatusOK
		s.deps.Logger.InfoContext(ctx, "element overwritten", "type", created.Type, "version", created.Version)
	} else {
		s.deps.Logger.InfoContext(ctx, "element created", "type", created.Type)
	}
	s.publish(ctx, streaming.Event{
		Kind:      kind,
		ElementID: created.ID,
		Source:    schema.SourceAPI,
		Payload:   created,
	})
	writeOK(w, status, map[string]any{"element": created})
}

func (s *Server) handleGetElement(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"element": rec})
}

// handleUpdateElement merges the body into the stored element.
func (s *Server) handleUpdateElement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithElementID(r.Context(), id)

	var fields map[string]any
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Validator.ValidatePatch(fields).ToError(); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.deps.Store.Update(ctx, id, fields)
	if err != nil {
		writeError(w, err)
		return
	}

	s.publish(ctx, streaming.Event{
		Kind:      schema.EventElementUpdated,
		ElementID: id,
		Source:    schema.SourceAPI,
		Payload:   updated,
	})
	writeOK(w, http.StatusOK, map[string]any{"element": updated})
}

func (s *Server) handleDeleteElement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithElementID(r.Context(), id)

	if err := s.deps.Store.Delete(ctx, id); err != nil {
		writeError(w, err)
		return
	}

	s.publish(ctx, streaming.Event{
		Kind:      schema.EventElementDeleted,
		ElementID: id,
		Source:    schema.SourceAPI,
	})
	writeOK(w, http.StatusOK, map[string]any{"message": fmt.Sprintf("Element %s deleted successfully", id)})
}

// handleSearchElements filters by type and exact field values, then by an
// optional "where" predicate, then projects with an optional jq "select".
func (s *Server) handleSearchElements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := store.ElementFilter{Type: schema.ElementType(q.Get("type"))}
	for key, vals := range q {
		if searchParams[key] || len(vals) == 0 {
			continue
		}
		if filter.Fields == nil {
			filter.Fields = make(map[string]string)
		}
		filter.Fields[key] = vals[0]
	}

	recs, err := s.deps.Store.List(ctx, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]map[string]any, len(recs))
	for i, rec := range recs {
		items[i] = rec.Map()
	}
	items, err = s.deps.Expressions.Where(ctx, q.Get("engine"), q.Get("where"), items)
	if err != nil {
		writeError(w, err)
		return
	}
	items = pageMaps(items, limit, offset)

	resp := map[string]any{"elements": items, "count": len(items)}
	if sel := q.Get("select"); sel != "" {
		result, err := s.deps.Expressions.Select(ctx, sel, items)
		if err != nil {
			writeError(w, err)
			return
		}
		resp["result"] = result
	}
	writeOK(w, http.StatusOK, resp)
}

type elementsBody struct {
	Elements  []map[string]any `json:"elements"`
	Timestamp string           `json:"timestamp,omitempty"`
}

func (s *Server) decodeElements(r *http.Request) (*elementsBody, []*store.Record, error) {
	var body struct {
		Elements  any    `json:"elements"`
		Timestamp string `json:"timestamp"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return nil, nil, err
	}
	list, ok := body.Elements.([]any)
	if !ok {
		return nil, nil, schema.NewError(schema.ErrCodeInvalidInput, "Expected elements to be an array")
	}

	out := &elementsBody{Timestamp: body.Timestamp, Elements: make([]map[string]any, len(list))}
	recs := make([]*store.Record, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "elements[%d] must be an object", i)
		}
		rec, err := store.RecordFromMap(m)
		if err != nil {
			return nil, nil, err
		}
		out.Elements[i] = m
		recs[i] = rec
	}
	return out, recs, nil
}

// handleBatchCreate writes all elements or none. Ids already on the canvas
// are overwritten.
func (s *Server) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, recs, err := s.decodeElements(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res := s.deps.Validator.ValidateBatch(body.Elements, s.exists(ctx))
	if err := res.ToError(); err != nil {
		writeError(w, err)
		return
	}
	for _, rec := range recs {
		rec.Source = schema.SourceAPI
	}

	created, err := s.deps.Store.Upsert(ctx, recs)
	if err != nil {
		writeError(w, err)
		return
	}

	s.publish(ctx, streaming.Event{
		Kind:    schema.EventElementsBatchCreated,
		Source:  schema.SourceAPI,
		Payload: map[string]any{"count": len(created), "ids": recordIDs(created)},
	})
	writeOK(w, http.StatusCreated, map[string]any{
		"elements": nonNil(created),
		"count":    len(created),
		"warnings": res.Warnings,
	})
}

// handleSync replaces the whole canvas with the posted elements.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithSource(r.Context(), schema.SourceSync)

	body, recs, err := s.decodeElements(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Validator.ValidateBatch(body.Elements, nil).ToError(); err != nil {
		writeError(w, err)
		return
	}
	for _, rec := range recs {
		rec.Source = schema.SourceSync
		if body.Timestamp != "" {
			rec.Fields["syncTimestamp"] = body.Timestamp
		}
	}

	res, err := s.deps.Store.Replace(ctx, recs)
	if err != nil {
		writeError(w, err)
		return
	}

	s.deps.Logger.InfoContext(ctx, "canvas synced",
		"before", res.BeforeCount, "after", res.AfterCount)
	s.publish(ctx, streaming.Event{
		Kind:    schema.EventElementsSynced,
		Source:  schema.SourceSync,
		Payload: res,
	})
	writeOK(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("Successfully synced %d elements", res.AfterCount),
		"count":       res.AfterCount,
		"syncedAt":    res.SyncedAt.Format(time.RFC3339Nano),
		"beforeCount": res.BeforeCount,
		"afterCount":  res.AfterCount,
	})
}

// exists reports whether id is already on the canvas.
func (s *Server) exists(ctx context.Context) func(string) bool {
	return func(id string) bool {
		_, err := s.deps.Store.Get(ctx, id)
		return err == nil
	}
}

func pageMaps(items []map[string]any, limit, offset int) []map[string]any {
	if offset >= len(items) {
		return []map[string]any{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func recordIDs(recs []*store.Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil(recs []*store.Record) []*store.Record {
	if recs == nil {
		return []*store.Record{}
	}
	return recs
}
