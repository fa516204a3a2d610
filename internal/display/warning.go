package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/harrison/fvc/internal/walker"
)

// Warning represents a user-facing warning message
type Warning struct {
	Title      string   // Main warning title
	Message    string   // Detailed explanation (optional)
	Entries    []string // Related entries (optional)
	Suggestion string   // Action to take (optional)
}

// Display shows a formatted warning in yellow
func (w Warning) Display(out io.Writer) {
	var b strings.Builder

	if useColor(out) {
		b.WriteString("\x1b[33m")
	}
	b.WriteString("Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	if len(w.Entries) > 0 {
		b.WriteString("    ")
		if len(w.Entries) == 1 {
			b.WriteString("Affected entry:\n")
		} else {
			b.WriteString("Affected entries:\n")
		}

		for i, entry := range w.Entries {
			b.WriteString("      ")
			b.WriteString(fmt.Sprintf("%d. %s", i+1, entry))
			b.WriteString("\n")
		}
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n")
		b.WriteString("    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	if useColor(out) {
		b.WriteString("\x1b[0m")
	}

	fmt.Fprint(out, b.String())
}

// WarnSkipped builds a warning listing every entry that did not contribute
// to the code. Returns false when nothing was skipped.
func WarnSkipped(skipped []walker.SkippedEntry) (Warning, bool) {
	if len(skipped) == 0 {
		return Warning{}, false
	}

	entries := make([]string, 0, len(skipped))
	for _, s := range skipped {
		line := fmt.Sprintf("%s (%s)", s.Path, s.Kind)
		if s.Reason != "" {
			line += ": " + s.Reason
		}
		entries = append(entries, line)
	}

	return Warning{
		Title:      fmt.Sprintf("%d entries did not contribute to the code", len(skipped)),
		Entries:    entries,
		Suggestion: "The code covers only the files that were hashed. Re-run with --log-level debug for details.",
	}, true
}
