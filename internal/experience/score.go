package experience

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Sub-score weights; a configuration decision, and they must sum to 1.
const (
	weightTool    = 0.40
	weightFile    = 0.40
	weightAction  = 0.10
	weightContext = 0.10

	// Items below this final score are not worth the user's attention.
	scoreThreshold = 0.4
)

// ToolContext is the invocation the pre-tool hook is scoring against.
type ToolContext struct {
	ToolName     string
	ToolInput    map[string]any
	CWD          string
	RecentInputs []string
}

// FilePath extracts the target path from the tool input, covering the
// spellings the host's file tools use.
func (c ToolContext) FilePath() string {
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if v, ok := c.ToolInput[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (c ToolContext) inputText() string {
	if c.ToolInput == nil {
		return ""
	}
	b, err := json.Marshal(c.ToolInput)
	if err != nil {
		return fmt.Sprint(c.ToolInput)
	}
	return string(b)
}

func (c ToolContext) contextText() string {
	parts := []string{filepath.Base(c.CWD)}
	parts = append(parts, c.RecentInputs...)
	return strings.Join(parts, "\n")
}

type Scored struct {
	Item
	Score float64
}

func priorityMultiplier(priority string) float64 {
	switch strings.ToUpper(strings.TrimSpace(priority)) {
	case "CRITICAL":
		return 2.0
	case "HIGH":
		return 1.5
	case "LOW":
		return 0.5
	default:
		return 1.0
	}
}

// Score computes the weighted relevance of one item for the invocation.
// Hot path: keyword matching works on a tokenized word set, no regex.
func Score(item Item, ctx ToolContext) float64 {
	tc := item.Node.TriggerConditions
	if tc == nil {
		return 0
	}

	var toolScore float64
	for _, name := range tc.ToolNames {
		if strings.EqualFold(name, ctx.ToolName) {
			toolScore = 1
			break
		}
	}
	// A declared tool list is a hard trigger condition: an item scoped to
	// Write must stay silent on Read no matter how well the file matches.
	if len(tc.ToolNames) > 0 && toolScore == 0 {
		return 0
	}

	var fileScore float64
	if path := ctx.FilePath(); path != "" {
		for _, pattern := range tc.FilePatterns {
			if matchPattern(pattern, path) {
				fileScore = 1
				break
			}
		}
	}

	actionScore := keywordFraction(tc.ActionKeywords, ctx.inputText())
	contextScore := keywordFraction(tc.ContextKeywords, ctx.contextText())

	base := weightTool*toolScore + weightFile*fileScore + weightAction*actionScore + weightContext*contextScore
	return base * priorityMultiplier(item.Node.Priority)
}

// Rank scores every item and keeps those at or above the threshold, sorted
// by score then confidence, descending.
func Rank(items []Item, ctx ToolContext) []Scored {
	var kept []Scored
	for _, item := range items {
		if s := Score(item, ctx); s >= scoreThreshold {
			kept = append(kept, Scored{Item: item, Score: s})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Node.Confidence > kept[j].Node.Confidence
	})
	return kept
}

// matchPattern glob-matches a trigger pattern against the tool's file path.
// Absolute paths are tried as given and with the leading slash stripped so
// "**/plugin.json" covers "/x/plugin.json".
func matchPattern(pattern, path string) bool {
	if ok, err := doublestar.Match(pattern, path); err == nil && ok {
		return true
	}
	trimmed := strings.TrimPrefix(path, "/")
	if ok, err := doublestar.Match(pattern, trimmed); err == nil && ok {
		return true
	}
	ok, err := doublestar.Match(pattern, filepath.Base(path))
	return err == nil && ok
}

// keywordFraction returns the fraction of keywords present in text.
// Single-word keywords match on word boundaries via tokenization;
// multi-word keywords fall back to substring search.
func keywordFraction(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	words := tokenize(lower)
	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.ContainsAny(kw, " \t") {
			if strings.Contains(lower, kw) {
				hits++
			}
		} else if words[kw] {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func tokenize(s string) map[string]bool {
	words := make(map[string]bool)
	start := -1
	for i, r := range s {
		isWord := r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isWord {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words[s[start:i]] = true
			start = -1
		}
	}
	if start >= 0 {
		words[s[start:]] = true
	}
	return words
}
