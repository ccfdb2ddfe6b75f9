package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// JSONHighlighter colorizes pretty-printed JSON documents line by line.
// It works on the indented output of json.MarshalIndent, not arbitrary
// JSON, which keeps the tokenizing trivial: one "key": value pair (or a
// bare bracket) per line.
type JSONHighlighter struct {
	keyStyle     lipgloss.Style
	stringStyle  lipgloss.Style
	numberStyle  lipgloss.Style
	literalStyle lipgloss.Style
	bracketStyle lipgloss.Style
}

func NewJSONHighlighter() *JSONHighlighter {
	return &JSONHighlighter{
		keyStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8BE9FD")).
			Bold(true),
		stringStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C")),
		numberStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#BD93F9")),
		literalStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF79C6")),
		bracketStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4")),
	}
}

// Highlight colorizes one indented JSON document.
func (h *JSONHighlighter) Highlight(doc string) string {
	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		lines[i] = h.highlightLine(line)
	}
	return strings.Join(lines, "\n")
}

func (h *JSONHighlighter) highlightLine(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(trimmed)]

	trailing := ""
	if strings.HasSuffix(trimmed, ",") {
		trailing = ","
		trimmed = strings.TrimSuffix(trimmed, ",")
	}

	// "key": value lines split once on the colon following the key.
	if strings.HasPrefix(trimmed, `"`) {
		if end := strings.Index(trimmed[1:], `": `); end >= 0 {
			key := trimmed[:end+2]
			value := trimmed[end+4:]
			return indent + h.keyStyle.Render(key) + ": " + h.highlightValue(value) + trailing
		}
	}
	return indent + h.highlightValue(trimmed) + trailing
}

func (h *JSONHighlighter) highlightValue(value string) string {
	switch {
	case value == "":
		return value
	case strings.HasPrefix(value, `"`):
		return h.stringStyle.Render(value)
	case value == "true" || value == "false" || value == "null":
		return h.literalStyle.Render(value)
	case strings.ContainsAny(value[:1], "{}[]"):
		return h.bracketStyle.Render(value)
	case isNumeric(value):
		return h.numberStyle.Render(value)
	default:
		return value
	}
}

// isNumeric checks if a string represents a number
func isNumeric(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789.-eE+", c) {
			return false
		}
	}
	return s != ""
}
