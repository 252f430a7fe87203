package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
)

// Flags are the operator toggles for garden-tending enforcement.
type Flags struct {
	Require bool // force GT regardless of metrics
	Skip    bool // waive GT when metrics alone would trigger it
}

// RequiresGardenTending decides whether garden-tending must precede
// deployment. Require always wins; Skip waives metric triggers only.
func RequiresGardenTending(m *MetricsResult, flags Flags) bool {
	if flags.Require {
		return true
	}
	if flags.Skip || m == nil {
		return false
	}
	return m.Complexity == ComplexitySubstantial || m.Complexity == ComplexityModerate || m.NewFeatures
}

// Result is the enforcement verdict. A blocked result carries the
// triggers and the message to print; the exit code is the caller's job.
type Result struct {
	Allowed  bool           `json:"allowed"`
	Bypassed bool           `json:"bypassed,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Triggers []string       `json:"triggers,omitempty"`
	Metrics  *MetricsResult `json:"metrics,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Enforcer gates entry into the deployment phase.
type Enforcer struct {
	Store    *Store
	Registry *Registry
	Audit    *AuditLog
	BaseRef  string
}

// Enforce runs the deployment gate:
//
//  1. load state;
//  2. garden-tending completed -> pass;
//  3. implementation not completed -> pass, GT not yet in play;
//  4. metrics not substantial -> pass (provider failure counts as no
//     data and passes);
//  5. otherwise block with the specific triggers, unless an emergency
//     bypass justification is accepted and audited.
func (e *Enforcer) Enforce(ctx context.Context, bypassJustification string) Result {
	st := e.Store.Load()

	if st.Completed("garden-tending") {
		return Result{Allowed: true, Reason: "garden-tending completed"}
	}
	if !st.Completed("implementation") {
		return Result{Allowed: true, Reason: "implementation not completed; garden-tending not yet required"}
	}

	var metrics *MetricsResult
	if p, ok := e.Registry.Get("code"); ok {
		m, err := p.Metrics(ctx, e.BaseRef)
		if err != nil {
			hooklog.Warnf("metrics unavailable, treating as non-triggering: %v", err)
		} else {
			metrics = m
		}
	}
	if metrics == nil || metrics.Complexity != ComplexitySubstantial {
		return Result{Allowed: true, Reason: "change metrics below substantial", Metrics: metrics}
	}

	triggers := metricTriggers(metrics)

	if bypassJustification != "" {
		if err := ValidateJustification(bypassJustification); err != nil {
			return Result{
				Allowed:  false,
				Triggers: triggers,
				Metrics:  metrics,
				Message:  blockMessage(triggers) + "\n\nBypass rejected: " + err.Error(),
			}
		}
		if err := e.Audit.Append(ctx, bypassJustification, map[string]any{"triggers": triggers}); err != nil {
			return Result{
				Allowed:  false,
				Triggers: triggers,
				Metrics:  metrics,
				Message:  blockMessage(triggers) + "\n\nBypass rejected: audit log unavailable: " + err.Error(),
			}
		}
		return Result{
			Allowed:  true,
			Bypassed: true,
			Reason:   "emergency bypass",
			Triggers: triggers,
			Metrics:  metrics,
			Message:  "WARNING: deployment allowed by emergency bypass; garden-tending remains outstanding.",
		}
	}

	return Result{
		Allowed:  false,
		Triggers: triggers,
		Metrics:  metrics,
		Message:  blockMessage(triggers),
	}
}

func metricTriggers(m *MetricsResult) []string {
	var triggers []string
	if m.ContentCreated.Quantity > substantialQuantity {
		triggers = append(triggers, fmt.Sprintf("%d %s changed (threshold %d)",
			m.ContentCreated.Quantity, m.ContentCreated.Units, substantialQuantity))
	}
	if m.ComponentsModified > substantialComponents {
		triggers = append(triggers, fmt.Sprintf("%d components modified (threshold %d)",
			m.ComponentsModified, substantialComponents))
	}
	if m.NewFeatures {
		triggers = append(triggers, "new source files present")
	}
	if len(triggers) == 0 {
		triggers = append(triggers, "complexity classified substantial")
	}
	return triggers
}

func blockMessage(triggers []string) string {
	var b strings.Builder
	b.WriteString("DEPLOYMENT BLOCKED: garden-tending required before deployment.\n\nTriggers:\n")
	for _, t := range triggers {
		b.WriteString("  - " + t + "\n")
	}
	b.WriteString("\nComplete the garden-tending triad, or re-run with an emergency bypass justification.")
	return b.String()
}
