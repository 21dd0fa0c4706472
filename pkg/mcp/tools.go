package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kaptinlin/jsonrepair"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// handleConvert lays out diagram text and optionally stores the result.
func (s *FlowCanvasServer) handleConvert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}
	persist := req.GetBool("persist", false)
	replace := req.GetBool("replace", false)

	ctx = logging.WithSource(ctx, schema.SourceMCP)
	conv, convErr := s.converter.Convert(ctx, text)
	if convErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("conversion failed: %v", convErr)), nil
	}
	ctx = logging.WithConversionID(ctx, conv.ID)

	result := map[string]any{
		"conversion_id": conv.ID,
		"kind":          conv.Diagram.Kind,
		"direction":     conv.Diagram.Direction,
		"elements":      conv.Elements,
		"count":         len(conv.Elements),
		"levels":        conv.Placement.Levels,
		"unplaced":      conv.Placement.Unplaced,
		"skipped":       conv.Diagram.Skipped,
		"persisted":     false,
	}

	if persist || replace {
		if s.store == nil {
			return mcp.NewToolResultError("no element store configured"), nil
		}
		recs, recErr := store.RecordsFromElements(conv.Elements, schema.SourceMCP)
		if recErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("conversion failed: %v", recErr)), nil
		}
		if replace {
			res, syncErr := s.store.Replace(ctx, recs)
			if syncErr != nil {
				return mcp.NewToolResultError(fmt.Sprintf("replace failed: %v", syncErr)), nil
			}
			result["sync"] = res
			s.publish(ctx, streaming.Event{
				Kind:         schema.EventElementsSynced,
				ConversionID: conv.ID,
				Source:       schema.SourceMCP,
				Payload:      res,
			})
		} else if _, createErr := s.store.Upsert(ctx, recs); createErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("persist failed: %v", createErr)), nil
		}
		result["persisted"] = true
	}

	s.publish(ctx, streaming.Event{
		Kind:         schema.EventDiagramConverted,
		ConversionID: conv.ID,
		Source:       schema.SourceMCP,
		Payload: map[string]any{
			"nodes":     len(conv.Diagram.Nodes),
			"edges":     len(conv.Diagram.Edges),
			"elements":  len(conv.Elements),
			"persisted": result["persisted"],
		},
	})
	return marshalResult(result)
}

// handleQuery filters canvas elements by type and predicate, then projects.
func (s *FlowCanvasServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no element store configured"), nil
	}
	limit := req.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must be non-negative"), nil
	}

	recs, err := s.store.List(ctx, store.ElementFilter{Type: schema.ElementType(req.GetString("type", ""))})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	items := make([]map[string]any, len(recs))
	for i, rec := range recs {
		items[i] = rec.Map()
	}
	items, err = s.expressions.Where(ctx, req.GetString("engine", ""), req.GetString("where", ""), items)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	result := map[string]any{"elements": items, "count": len(items)}
	if sel := req.GetString("select", ""); sel != "" {
		projected, selErr := s.expressions.Select(ctx, sel, items)
		if selErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("select failed: %v", selErr)), nil
		}
		result["result"] = projected
	}
	return marshalResult(result)
}

// handleCreate writes every element in the payload, overwriting ids already
// on the canvas.
func (s *FlowCanvasServer) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no element store configured"), nil
	}
	raw, err := req.RequireString("elements")
	if err != nil {
		return mcp.NewToolResultError("elements is required"), nil
	}

	els, parseErr := parseElements(raw)
	if parseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid elements: %v", parseErr)), nil
	}

	res := s.validator.ValidateBatch(els, s.exists(ctx))
	if vErr := res.ToError(); vErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed: %v", vErr)), nil
	}

	recs := make([]*store.Record, len(els))
	for i, el := range els {
		rec, recErr := store.RecordFromMap(el)
		if recErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid elements: %v", recErr)), nil
		}
		rec.Source = schema.SourceMCP
		recs[i] = rec
	}

	created, createErr := s.store.Upsert(ctx, recs)
	if createErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create failed: %v", createErr)), nil
	}

	ids := make([]string, len(created))
	for i, rec := range created {
		ids[i] = rec.ID
	}
	s.publish(ctx, streaming.Event{
		Kind:    schema.EventElementsBatchCreated,
		Source:  schema.SourceMCP,
		Payload: map[string]any{"count": len(created), "ids": ids},
	})
	return marshalResult(map[string]any{
		"ids":      ids,
		"count":    len(created),
		"warnings": res.Warnings,
	})
}

// handleDelete removes one element.
func (s *FlowCanvasServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no element store configured"), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	ctx = logging.WithElementID(ctx, id)
	if delErr := s.store.Delete(ctx, id); delErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", delErr)), nil
	}

	s.publish(ctx, streaming.Event{
		Kind:      schema.EventElementDeleted,
		ElementID: id,
		Source:    schema.SourceMCP,
	})
	return marshalResult(map[string]any{"ok": true, "id": id})
}

// handleRender parses diagram text and renders it in the requested format.
func (s *FlowCanvasServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "mermaid" && format != "ascii" && format != "dot" {
		return mcp.NewToolResultError("format must be mermaid, ascii, or dot"), nil
	}

	pd, parseErr := diagram.Parse(text)
	if parseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("parse failed: %v", parseErr)), nil
	}

	switch format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(pd)), nil
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCIIAuto(ctx, pd, s.asciiBinDir)), nil
	default:
		dot, dotErr := diagram.RenderImage(ctx, pd, diagram.FormatDOT)
		if dotErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("dot render failed: %v", dotErr)), nil
		}
		return mcp.NewToolResultText(string(dot)), nil
	}
}

// parseElements decodes a JSON array (or a single object) of elements,
// repairing malformed JSON once before giving up.
func parseElements(raw string) ([]map[string]any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &decoded); err != nil {
			return nil, fmt.Errorf("parse repaired JSON: %w", err)
		}
	}

	var list []any
	switch v := decoded.(type) {
	case []any:
		list = v
	case map[string]any:
		list = []any{v}
	default:
		return nil, fmt.Errorf("expected an array of element objects, got %T", decoded)
	}

	out := make([]map[string]any, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("elements[%d] must be an object", i)
		}
		out[i] = m
	}
	return out, nil
}

// exists reports whether id is already on the canvas.
func (s *FlowCanvasServer) exists(ctx context.Context) func(string) bool {
	return func(id string) bool {
		_, err := s.store.Get(ctx, id)
		return err == nil
	}
}

// publish sends an event to the hub when one is configured. Failures are
// logged, never returned to the caller.
func (s *FlowCanvasServer) publish(ctx context.Context, ev streaming.Event) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", slog.String("type", ev.Kind), slog.Any("error", err))
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
