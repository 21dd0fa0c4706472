package api

import (
	"net/http"

	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/pkg/schema"
)

type convertRequest struct {
	Text    string `json:"text"`
	Persist bool   `json:"persist"`
	Replace bool   `json:"replace"`
}

// handleConvert turns diagram text into elements and optionally stores them,
// either appended to the canvas or replacing it.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithSource(r.Context(), schema.SourceDiagram)

	var req convertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	conv, err := s.deps.Converter.Convert(ctx, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx = logging.WithConversionID(ctx, conv.ID)

	resp := map[string]any{
		"conversionId": conv.ID,
		"kind":         conv.Diagram.Kind,
		"direction":    conv.Diagram.Direction,
		"elements":     conv.Elements,
		"count":        len(conv.Elements),
		"levels":       conv.Placement.Levels,
		"unplaced":     conv.Placement.Unplaced,
		"skipped":      conv.Diagram.Skipped,
		"persisted":    false,
	}

	if req.Persist || req.Replace {
		recs, err := store.RecordsFromElements(conv.Elements, schema.SourceDiagram)
		if err != nil {
			writeError(w, err)
			return
		}
		if req.Replace {
			res, err := s.deps.Store.Replace(ctx, recs)
			if err != nil {
				writeError(w, err)
				return
			}
			resp["sync"] = res
			s.publish(ctx, streaming.Event{
				Kind:         schema.EventElementsSynced,
				ConversionID: conv.ID,
				Source:       schema.SourceDiagram,
				Payload:      res,
			})
		} else {
			if _, err := s.deps.Store.Upsert(ctx, recs); err != nil {
				writeError(w, err)
				return
			}
		}
		resp["persisted"] = true
	}

	s.publish(ctx, streaming.Event{
		Kind:         schema.EventDiagramConverted,
		ConversionID: conv.ID,
		Source:       schema.SourceDiagram,
		Payload: map[string]any{
			"nodes":     len(conv.Diagram.Nodes),
			"edges":     len(conv.Diagram.Edges),
			"elements":  len(conv.Elements),
			"persisted": resp["persisted"],
		},
	})
	writeOK(w, http.StatusOK, resp)
}
