// Package blocks extracts the structured update blocks agents embed in
// their final response text. The payload grammar is line-oriented
// "key: value"; a value of "|" (or nothing) opens a multi-line value whose
// continuation lines begin with "|". It looks like YAML but is not: no
// nesting, no quoting, no escapes, so a hand parser is both smaller and
// stricter than a YAML library would be here.
package blocks

import (
	"sort"
	"strings"
)

// The five block tags the orchestrator understands.
const (
	TagHandoffRequest   = "HANDOFF_REQUEST"
	TagWorkflowComplete = "WORKFLOW_COMPLETE"
	TagGraphUpdate      = "GRAPH_UPDATE"
	TagProcessKnowledge = "PROCESS_KNOWLEDGE"
	TagPreFlightCheck   = "PRE_FLIGHT_CHECK"
)

var Tags = []string{
	TagHandoffRequest,
	TagWorkflowComplete,
	TagGraphUpdate,
	TagProcessKnowledge,
	TagPreFlightCheck,
}

// Block is one parsed tag occurrence. Fields holds the key/value payload
// with multi-line values joined by newlines; unknown keys are kept, the
// dispatcher ignores what it does not need.
type Block struct {
	Tag    string
	Fields map[string]string
	Raw    string
	pos    int
}

func (b Block) Field(key string) string {
	return strings.TrimSpace(b.Fields[key])
}

func (b Block) Has(key string) bool {
	_, ok := b.Fields[key]
	return ok
}

// Parse extracts every well-delimited block of every known tag, in text
// order. Unclosed tags are ignored: a truncated response must not consume
// the rest of the text as one runaway block.
func Parse(text string) []Block {
	var found []Block
	for _, tag := range Tags {
		openTag := "[" + tag + "]"
		closeTag := "[/" + tag + "]"
		offset := 0
		for {
			start := strings.Index(text[offset:], openTag)
			if start < 0 {
				break
			}
			bodyStart := offset + start + len(openTag)
			end := strings.Index(text[bodyStart:], closeTag)
			if end < 0 {
				break
			}
			raw := text[bodyStart : bodyStart+end]
			found = append(found, Block{
				Tag:    tag,
				Fields: parseFields(raw),
				Raw:    raw,
				pos:    offset + start,
			})
			offset = bodyStart + end + len(closeTag)
		}
	}
	// Per-tag scanning found blocks grouped by kind; restore text order.
	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	return found
}

// ByTag filters parsed blocks to one kind, preserving order.
func ByTag(all []Block, tag string) []Block {
	var out []Block
	for _, b := range all {
		if b.Tag == tag {
			out = append(out, b)
		}
	}
	return out
}

// parseFields runs the two-phase line parse: a "key: value" line either
// carries its value inline or, when the value is "|" or empty, collects
// the immediately following "|"-prefixed lines.
func parseFields(body string) map[string]string {
	fields := map[string]string{}
	lines := strings.Split(body, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.ContainsAny(key, " \t") {
			// Not a key line; likely stray prose inside the block.
			continue
		}
		value = strings.TrimSpace(value)
		if value == "|" || value == "" {
			var cont []string
			for i+1 < len(lines) {
				next := strings.TrimSpace(lines[i+1])
				if !strings.HasPrefix(next, "|") {
					break
				}
				cont = append(cont, strings.TrimPrefix(strings.TrimPrefix(next, "|"), " "))
				i++
			}
			if len(cont) > 0 {
				fields[key] = strings.Join(cont, "\n")
				continue
			}
			if value == "" {
				fields[key] = ""
				continue
			}
		}
		fields[key] = value
	}
	return fields
}
