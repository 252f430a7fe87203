package experience

import (
	"strings"

	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
)

type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeConfirmation  Outcome = "confirmation"
	OutcomeFailure       Outcome = "failure"
	OutcomeContradiction Outcome = "contradiction"
)

const (
	confidenceCap   = 0.99
	confidenceFloor = 0.10
)

// ApplyOutcome is the Bayesian-style confidence update: multiply, then
// clamp. Successes compound slowly; human contradiction cuts hard.
func ApplyOutcome(confidence float64, outcome Outcome) float64 {
	var mult float64
	switch outcome {
	case OutcomeSuccess:
		mult = 1.15
	case OutcomeConfirmation:
		mult = 1.10
	case OutcomeFailure:
		mult = 0.60
	case OutcomeContradiction:
		mult = 0.40
	default:
		return confidence
	}
	c := confidence * mult
	if c > confidenceCap {
		c = confidenceCap
	}
	if c < confidenceFloor {
		c = confidenceFloor
	}
	return c
}

// InitialConfidence assigns a starting confidence by provenance.
// repetitions only matters for repeated_mistake; conflictingEvidence
// discounts any source.
func InitialConfidence(source, priority string, repetitions int, conflictingEvidence bool) float64 {
	var c float64
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "user_correction":
		c = 0.95
	case "process_knowledge_block":
		c = 0.90
	case "repeated_mistake":
		c = 0.75
		if repetitions > 1 {
			boost := 0.05 * float64(repetitions-1)
			if boost > 0.15 {
				boost = 0.15
			}
			c += boost
		}
	case "agent_inference":
		c = 0.65
	default: // suggestion and anything unrecognized
		c = 0.50
	}
	if strings.EqualFold(priority, "CRITICAL") {
		c *= 1.05
	}
	if conflictingEvidence {
		c *= 0.85
	}
	if c > 0.95 {
		c = 0.95
	}
	if c < 0.50 {
		c = 0.50
	}
	return c
}

// Lesson lifecycle statuses derived from confidence.
const (
	StatusActive          = "active"
	StatusActiveLow       = "active_low_emphasis"
	StatusNeedsValidation = "needs_validation"
	StatusArchived        = "archived"
)

func StatusFor(confidence float64, priority string) string {
	p := strings.ToUpper(strings.TrimSpace(priority))
	switch {
	case confidence >= 0.80:
		return StatusActive
	case confidence >= 0.70:
		if p == "CRITICAL" || p == "HIGH" {
			return StatusActive
		}
		return StatusActiveLow
	case confidence >= 0.50:
		return StatusNeedsValidation
	default:
		return StatusArchived
	}
}

// ShouldDeprecate reports whether a lesson has lost its right to be
// injected.
func ShouldDeprecate(n graph.Node) bool {
	if n.Confidence < 0.30 {
		return true
	}
	if n.FailureCount >= 3 && n.SuccessCount == 0 {
		return true
	}
	return n.ContradictionCount >= 2
}
