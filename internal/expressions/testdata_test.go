package expressions

// canvas is a small set of flattened element records.
func canvas() []map[string]any {
	return []map[string]any{
		{"id": "A", "type": "rectangle", "x": 290.0, "y": 50.0, "text": "Start", "version": 1},
		{"id": "B", "type": "diamond", "x": 290.0, "y": 200.0, "text": "Check"},
		{"id": "C", "type": "rectangle", "x": 180.0, "y": 350.0, "text": "Done"},
		{"id": "arrow-A-B", "type": "arrow", "from": "A", "to": "B",
			"points": []any{[]any{0.0, 0.0}, []any{0.0, 90.0}}},
	}
}

func ids(items []map[string]any) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i], _ = it["id"].(string)
	}
	return out
}
