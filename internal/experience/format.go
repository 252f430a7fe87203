package experience

import (
	"fmt"
	"strings"
)

// Interjection renders the blocking message written to stderr before exit 2.
// The host shows it to the user verbatim, so it reads as a direct warning:
// first line names the lesson, body carries the guidance, last line the
// override.
func Interjection(d Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "WARNING: %s\n\n", d.Top.Node.Label)
	if body := lessonBody(d.Top); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "(process knowledge from the %s triad, confidence %.2f; set TRIADS_DISABLE_BLOCK=1 to override)\n",
		d.Top.Triad, d.Top.Node.Confidence)
	return b.String()
}

// AdditionalContext renders the non-blocking injection: a compact list the
// host forwards through its additional-context channel.
func AdditionalContext(items []Scored) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant process knowledge:\n")
	for _, it := range items {
		prio := strings.ToUpper(it.Node.Priority)
		if prio == "" {
			prio = "MEDIUM"
		}
		fmt.Fprintf(&b, "- [%s] %s", prio, it.Node.Label)
		if body := lessonBody(it); body != "" {
			fmt.Fprintf(&b, ": %s", firstLine(body))
		}
		fmt.Fprintf(&b, " (confidence %.2f)\n", it.Node.Confidence)
	}
	return b.String()
}

func lessonBody(it Scored) string {
	if it.Node.Content != "" {
		return strings.TrimSpace(it.Node.Content)
	}
	return strings.TrimSpace(it.Node.Description)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
