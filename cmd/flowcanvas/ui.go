package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/flowcanvas/internal/diagram"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorWhite  = lipgloss.Color("255")
	colorDim    = lipgloss.Color("240")
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleLabel   = lipgloss.NewStyle().Foreground(colorDim).Width(10)
	styleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	styleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

const (
	iconSuccess = "✓"
	iconWarning = "!"
)

// printSummary writes a short styled report of a conversion.
func printSummary(w io.Writer, conv *diagram.Conversion, format string) {
	pd := conv.Diagram
	depth := 0
	for _, lvl := range conv.Placement.Levels {
		depth = max(depth, lvl+1)
	}

	rows := [][2]string{
		{"diagram", styleValue.Render(fmt.Sprintf("%s %s", pd.Kind, pd.Direction))},
		{"nodes", styleNumber.Render(fmt.Sprint(len(pd.Nodes)))},
		{"edges", styleNumber.Render(fmt.Sprint(len(pd.Edges)))},
		{"levels", styleNumber.Render(fmt.Sprint(depth))},
		{"elements", styleNumber.Render(fmt.Sprint(len(conv.Elements)))},
		{"format", styleValue.Render(format)},
	}

	var b strings.Builder
	b.WriteString(styleSuccess.Render(iconSuccess) + " " + styleTitle.Render("Converted "+conv.ID) + "\n")
	for _, r := range rows {
		b.WriteString("  " + styleLabel.Render(r[0]) + r[1] + "\n")
	}
	if n := len(conv.Placement.Unplaced); n > 0 {
		b.WriteString(styleWarning.Render(iconWarning) + " " +
			styleWarning.Render(fmt.Sprintf("%d unreachable node(s) at fallback position: %s",
				n, strings.Join(conv.Placement.Unplaced, ", "))) + "\n")
	}
	if n := len(pd.Skipped); n > 0 {
		b.WriteString(styleWarning.Render(iconWarning) + " " +
			styleWarning.Render(fmt.Sprintf("%d line(s) skipped", n)) + "\n")
	}
	fmt.Fprint(w, b.String())
}
