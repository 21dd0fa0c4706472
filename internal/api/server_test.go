package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

const decisionFlow = `flowchart TD
    A[Start] --> B{Check}
    B -->|Yes| C[Done]
    B -->|No| D[Retry]
    C --> E[End]
    D --> E`

type testEnv struct {
	store *store.MemoryStore
	hub   *streaming.MemoryHub
	srv   *Server
	h     http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	env := &testEnv{store: store.NewMemoryStore(), hub: streaming.NewMemoryHub()}
	env.srv, err = NewServer(Deps{
		Store:     env.store,
		Hub:       env.hub,
		Validator: v,
		Converter: diagram.NewConverter(diagram.WithSeed(1, 2)),
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	env.h = env.srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func (e *testEnv) subscribe(t *testing.T, kinds ...string) <-chan streaming.Event {
	t.Helper()
	ch, cancel, err := e.hub.Subscribe(context.Background(), streaming.EventFilter{Kinds: kinds})
	require.NoError(t, err)
	t.Cleanup(cancel)
	return ch
}

func nextEvent(t *testing.T, ch <-chan streaming.Event) streaming.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return streaming.Event{}
	}
}

func rectBody(id string) map[string]any {
	return map[string]any{"id": id, "type": "rectangle", "x": 10, "y": 20, "width": 120, "height": 60, "text": id}
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["elements_count"])
	assert.EqualValues(t, 0, body["events_dropped"])
}

func TestElementLifecycle(t *testing.T) {
	env := newTestEnv(t)
	events := env.subscribe(t)

	code, body := env.do(t, http.MethodPost, "/api/elements", rectBody("A"))
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, true, body["success"])
	el := body["element"].(map[string]any)
	assert.Equal(t, "A", el["id"])
	assert.EqualValues(t, 1, el["version"])
	assert.Equal(t, schema.EventElementCreated, nextEvent(t, events).Kind)

	code, body = env.do(t, http.MethodGet, "/api/elements/A", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "A", body["element"].(map[string]any)["text"])

	code, body = env.do(t, http.MethodPut, "/api/elements/A", map[string]any{"text": "Renamed", "x": 99})
	require.Equal(t, http.StatusOK, code, body)
	el = body["element"].(map[string]any)
	assert.Equal(t, "Renamed", el["text"])
	assert.EqualValues(t, 99, el["x"])
	assert.EqualValues(t, 2, el["version"])
	ev := nextEvent(t, events)
	assert.Equal(t, schema.EventElementUpdated, ev.Kind)
	assert.Equal(t, "A", ev.ElementID)

	code, body = env.do(t, http.MethodDelete, "/api/elements/A", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["message"], "deleted")
	assert.Equal(t, schema.EventElementDeleted, nextEvent(t, events).Kind)

	code, body = env.do(t, http.MethodGet, "/api/elements/A", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, schema.ErrCodeNotFound, body["code"])
}

func TestCreateElementOverwritesExistingID(t *testing.T) {
	env := newTestEnv(t)
	events := env.subscribe(t, schema.EventElementCreated, schema.EventElementUpdated)

	code, body := env.do(t, http.MethodPost, "/api/elements", rectBody("A"))
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, schema.EventElementCreated, nextEvent(t, events).Kind)

	again := rectBody("A")
	again["text"] = "Replaced"
	delete(again, "width")
	code, body = env.do(t, http.MethodPost, "/api/elements", again)
	require.Equal(t, http.StatusOK, code, body)
	el := body["element"].(map[string]any)
	assert.EqualValues(t, 2, el["version"])
	assert.Equal(t, "Replaced", el["text"])
	assert.NotContains(t, el, "width")
	ev := nextEvent(t, events)
	assert.Equal(t, schema.EventElementUpdated, ev.Kind)
	assert.Equal(t, "A", ev.ElementID)

	n, _ := env.store.Count(context.Background())
	assert.Equal(t, 1, n)
}

func TestCreateElementErrors(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/elements", map[string]any{"type": "hexagon", "x": 1, "y": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, schema.ErrCodeValidation, body["code"])

	code, body = env.do(t, http.MethodPost, "/api/elements", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, schema.ErrCodeInvalidInput, body["code"])

	code, _ = env.do(t, http.MethodPost, "/api/elements", rectBody("A"))
	require.Equal(t, http.StatusCreated, code)

	code, _ = env.do(t, http.MethodPut, "/api/elements/A", map[string]any{"x": "left"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodPut, "/api/elements/missing", map[string]any{"x": 1})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = env.do(t, http.MethodDelete, "/api/elements/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListAndSearch(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodPost, "/api/convert", map[string]any{"text": decisionFlow, "persist": true})
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(t, http.MethodGet, "/api/elements", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 10, body["count"])

	code, body = env.do(t, http.MethodGet, "/api/elements?type=arrow&limit=2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"])

	code, body = env.do(t, http.MethodGet, "/api/elements/search?type=rectangle&y=350", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"], "C and D share row 2")

	code, body = env.do(t, http.MethodGet, "/api/elements/search?where=type+!%3D+%22arrow%22+%26%26+x+%3E+300&select=map(.id)", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, []any{"D"}, body["result"])

	code, body = env.do(t, http.MethodGet, `/api/elements/search?engine=cel&where=el.type+%3D%3D+%22diamond%22`, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["count"])

	code, body = env.do(t, http.MethodGet, "/api/elements/search?engine=lua&where=true", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, schema.ErrCodeInvalidInput, body["code"])

	code, _ = env.do(t, http.MethodGet, "/api/elements?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBatchCreate(t *testing.T) {
	env := newTestEnv(t)
	events := env.subscribe(t, schema.EventElementsBatchCreated)

	arrow := map[string]any{"id": "a1", "type": "arrow", "x": 0, "y": 0, "from": "A", "to": "ghost",
		"points": []any{[]any{0, 0}, []any{0, 90}}}
	code, body := env.do(t, http.MethodPost, "/api/elements/batch", map[string]any{
		"elements": []any{rectBody("A"), rectBody("B"), arrow},
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.EqualValues(t, 3, body["count"])
	assert.Len(t, body["warnings"], 1, "dangling arrow endpoint")
	assert.Equal(t, schema.EventElementsBatchCreated, nextEvent(t, events).Kind)

	code, body = env.do(t, http.MethodPost, "/api/elements/batch", map[string]any{"elements": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "array")

	code, _ = env.do(t, http.MethodPost, "/api/elements/batch", map[string]any{
		"elements": []any{rectBody("C"), rectBody("C")},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	n, _ := env.store.Count(context.Background())
	assert.Equal(t, 3, n, "rejected batch writes nothing")

	code, body = env.do(t, http.MethodPost, "/api/elements/batch", map[string]any{
		"elements": []any{rectBody("C"), rectBody("A")},
	})
	require.Equal(t, http.StatusCreated, code, body)
	elems := body["elements"].([]any)
	assert.EqualValues(t, 1, elems[0].(map[string]any)["version"])
	assert.EqualValues(t, 2, elems[1].(map[string]any)["version"])
	n, _ = env.store.Count(context.Background())
	assert.Equal(t, 4, n)
}

func TestSync(t *testing.T) {
	env := newTestEnv(t)
	events := env.subscribe(t, schema.EventElementsSynced)

	code, _ := env.do(t, http.MethodPost, "/api/elements", rectBody("old"))
	require.Equal(t, http.StatusCreated, code)

	code, body := env.do(t, http.MethodPost, "/api/elements/sync", map[string]any{
		"elements":  []any{rectBody("A"), rectBody("B")},
		"timestamp": "2026-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["beforeCount"])
	assert.EqualValues(t, 2, body["afterCount"])
	assert.Equal(t, "Successfully synced 2 elements", body["message"])
	nextEvent(t, events)

	rec, err := env.store.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, schema.SourceSync, rec.Source)
	assert.Equal(t, "2026-01-01T00:00:00Z", rec.Fields["syncTimestamp"])

	code, body = env.do(t, http.MethodGet, "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["elementCount"])
	assert.NotNil(t, body["lastSync"])
}

func TestConvert(t *testing.T) {
	env := newTestEnv(t)
	events := env.subscribe(t, schema.EventDiagramConverted)

	code, body := env.do(t, http.MethodPost, "/api/convert", map[string]any{"text": decisionFlow})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 10, body["count"])
	assert.Equal(t, false, body["persisted"])
	assert.Equal(t, "flowchart", body["kind"])
	assert.Equal(t, map[string]any{"A": 0.0, "B": 1.0, "C": 2.0, "D": 2.0, "E": 3.0}, body["levels"])

	elems := body["elements"].([]any)
	first := elems[0].(map[string]any)
	assert.Equal(t, "A", first["id"])
	assert.EqualValues(t, 290, first["x"])
	assert.EqualValues(t, 50, first["y"])
	assert.Equal(t, "diamond", elems[1].(map[string]any)["type"])

	ev := nextEvent(t, events)
	assert.NotEmpty(t, ev.ConversionID)
	n, _ := env.store.Count(context.Background())
	assert.Zero(t, n)
}

func TestConvertPersistAndReplace(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/api/elements", rectBody("old"))
	require.Equal(t, http.StatusCreated, code)

	code, body := env.do(t, http.MethodPost, "/api/convert", map[string]any{"text": decisionFlow, "replace": true})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["persisted"])
	sync := body["sync"].(map[string]any)
	assert.EqualValues(t, 1, sync["beforeCount"])
	assert.EqualValues(t, 10, sync["afterCount"])

	rec, err := env.store.Get(context.Background(), "arrow-B-C")
	require.NoError(t, err)
	assert.Equal(t, schema.SourceDiagram, rec.Source)
	assert.Equal(t, "Yes", rec.Fields["text"])

}

func TestConvertPersistTwice(t *testing.T) {
	env := newTestEnv(t)
	req := map[string]any{"text": decisionFlow, "persist": true}

	code, body := env.do(t, http.MethodPost, "/api/convert", req)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["persisted"])

	code, body = env.do(t, http.MethodPost, "/api/convert", req)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["persisted"])

	n, _ := env.store.Count(context.Background())
	assert.Equal(t, 10, n)
	rec, err := env.store.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version)
	assert.Equal(t, schema.SourceDiagram, rec.Source)
}

func TestConvertErrors(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/convert", map[string]any{"text": "   \n  "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, schema.ErrCodeEmptyInput, body["code"])

	code, body = env.do(t, http.MethodPost, "/api/convert", map[string]any{"text": "flowchart TD\n%% nothing here"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, schema.ErrCodeNoNodesFound, body["code"])
}

func TestEventsSSE(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.h)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?types="+schema.EventElementCreated, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	code, _ := env.do(t, http.MethodPost, "/api/elements", rectBody("A"))
	require.Equal(t, http.StatusCreated, code)

	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		l, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(l, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(l, "event: "))
		case strings.HasPrefix(l, "data: "):
			dataLine = strings.TrimPrefix(l, "data: ")
		}
	}
	assert.Equal(t, schema.EventElementCreated, eventLine)

	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(dataLine), &ev))
	assert.Equal(t, "A", ev["elementId"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(schema.NewError(schema.ErrCodeStore, "x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(schema.NewError(schema.ErrCodeExpression, "x")))
}

func TestPageMaps(t *testing.T) {
	items := []map[string]any{{"id": "a"}, {"id": "b"}, {"id": "c"}}
	assert.Len(t, pageMaps(items, 0, 0), 3)
	assert.Equal(t, []map[string]any{{"id": "b"}}, pageMaps(items, 1, 1))
	assert.Empty(t, pageMaps(items, 0, 5))
}
