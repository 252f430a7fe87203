package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/reliable-agents-ai/triads-sub002/internal/gitutil"
)

// Complexity classes and the thresholds dividing them.
const (
	ComplexityMinimal     = "minimal"
	ComplexityModerate    = "moderate"
	ComplexitySubstantial = "substantial"

	substantialQuantity   = 100
	substantialComponents = 5
	moderateQuantity      = 30
	moderateComponents    = 2
)

// ContentCreated quantifies what the phase produced.
type ContentCreated struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
	Units    string `json:"units"`
}

// MetricsResult is the provider-neutral summary the validator consumes.
type MetricsResult struct {
	ContentCreated     ContentCreated `json:"content_created"`
	ComponentsModified int            `json:"components_modified"`
	Complexity         string         `json:"complexity"`
	NewFeatures        bool           `json:"new_features,omitempty"`
	RawData            map[string]any `json:"raw_data,omitempty"`
}

// ClassifyComplexity applies the shared thresholds: strictly greater than
// the boundary promotes, so quantity 100 is still moderate and 101 is
// substantial.
func ClassifyComplexity(quantity, components int) string {
	switch {
	case quantity > substantialQuantity || components > substantialComponents:
		return ComplexitySubstantial
	case quantity > moderateQuantity || components > moderateComponents:
		return ComplexityModerate
	default:
		return ComplexityMinimal
	}
}

// Provider computes metrics for one kind of deliverable.
type Provider interface {
	Name() string
	Metrics(ctx context.Context, baseRef string) (*MetricsResult, error)
}

// Registry maps deliverable kinds to providers. Missing metrics are never
// fatal to the validator: a provider error downgrades to "no data".
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CodeProvider measures code change via git: line deltas from numstat
// (binary files skipped), component count from distinct top-level paths,
// new-feature signal from untracked source files.
type CodeProvider struct {
	Dir string
}

func (CodeProvider) Name() string { return "code" }

func (p CodeProvider) Metrics(ctx context.Context, baseRef string) (*MetricsResult, error) {
	if baseRef == "" {
		baseRef = "HEAD~1"
	}
	stats, err := gitutil.DiffNumstat(ctx, p.Dir, baseRef)
	if err != nil {
		return nil, fmt.Errorf("code metrics: %w", err)
	}
	lines := 0
	components := map[string]bool{}
	for _, st := range stats {
		if st.Binary {
			continue
		}
		lines += st.Added + st.Deleted
		components[topComponent(st.Path)] = true
	}

	untracked, err := gitutil.UntrackedFiles(ctx, p.Dir)
	if err != nil {
		untracked = nil
	}
	newSource := 0
	for _, f := range untracked {
		if isSourceFile(f) {
			newSource++
			components[topComponent(f)] = true
		}
	}

	m := &MetricsResult{
		ContentCreated:     ContentCreated{Type: "code", Quantity: lines, Units: "lines"},
		ComponentsModified: len(components),
		NewFeatures:        newSource > 0,
		RawData: map[string]any{
			"base_ref":        baseRef,
			"files_changed":   len(stats),
			"untracked_files": len(untracked),
		},
	}
	m.Complexity = ClassifyComplexity(m.ContentCreated.Quantity, m.ComponentsModified)
	return m, nil
}

func topComponent(path string) string {
	if i := strings.IndexByte(path, '/'); i > 0 {
		return path[:i]
	}
	return path
}

func isSourceFile(path string) bool {
	for _, ext := range []string{".go", ".py", ".ts", ".tsx", ".js", ".rs", ".java", ".rb", ".c", ".cc", ".cpp", ".h"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
