package experience

import (
	"strings"
)

// OutcomeEvent is one detected signal for an injected lesson.
type OutcomeEvent struct {
	LessonID string
	Outcome  Outcome
	Signal   string
}

// Phrases that read as a human pushing back on advice. Matched
// case-insensitively within signalWindow characters of the lesson label.
var correctionPhrases = []string{
	"that's wrong",
	"that is wrong",
	"not correct",
	"don't do that",
	"do not do that",
	"actually,",
	"no, ",
	"incorrect",
}

// Phrases that read as a human confirming the lesson helped.
var confirmationPhrases = []string{
	"good catch",
	"that worked",
	"you're right",
	"correct,",
	"thanks for flagging",
}

// Signals that the operation the lesson guided was walked back.
var revertSignals = []string{
	"revert",
	"reverted",
	"rolled back",
	"undo the",
	"undid",
}

const signalWindow = 240

// DetectOutcomes scans the assistant's final response for outcome signals
// per injected lesson, strongest signal first:
//
//  1. an explicit [PROCESS_KNOWLEDGE] block whose contradicts field cites
//     the lesson -> contradiction;
//  2. a user-correction phrase near the lesson label -> contradiction;
//  3. a confirmation phrase near the label -> confirmation;
//  4. a revert signal near the label -> failure;
//  5. otherwise -> success (the lesson rode along and nothing was undone).
//
// Known-ambiguous cases are deliberately not guessed at: a user who quotes
// the lesson while rejecting it reads as a correction only when one of the
// listed phrases appears, and a success followed by a later revert in a
// different session is recorded as success here.
func DetectOutcomes(responseText string, injections []InjectionRecord) []OutcomeEvent {
	lower := strings.ToLower(responseText)
	contradicted := contradictedLessons(responseText)

	var out []OutcomeEvent
	for _, rec := range injections {
		if rec.Outcome != "" {
			continue
		}
		if contradicted[rec.LessonID] {
			out = append(out, OutcomeEvent{LessonID: rec.LessonID, Outcome: OutcomeContradiction, Signal: "process_knowledge_block"})
			continue
		}
		label := strings.ToLower(rec.LessonLabel)
		if phrase := nearPhrase(lower, label, correctionPhrases); phrase != "" {
			out = append(out, OutcomeEvent{LessonID: rec.LessonID, Outcome: OutcomeContradiction, Signal: "user_correction:" + phrase})
			continue
		}
		if phrase := nearPhrase(lower, label, confirmationPhrases); phrase != "" {
			out = append(out, OutcomeEvent{LessonID: rec.LessonID, Outcome: OutcomeConfirmation, Signal: "confirmation:" + phrase})
			continue
		}
		if phrase := nearPhrase(lower, label, revertSignals); phrase != "" {
			out = append(out, OutcomeEvent{LessonID: rec.LessonID, Outcome: OutcomeFailure, Signal: "revert:" + phrase})
			continue
		}
		out = append(out, OutcomeEvent{LessonID: rec.LessonID, Outcome: OutcomeSuccess, Signal: "no_negative_signal"})
	}
	return out
}

// contradictedLessons extracts lesson ids cited by contradicts fields inside
// [PROCESS_KNOWLEDGE] blocks.
func contradictedLessons(text string) map[string]bool {
	cited := make(map[string]bool)
	rest := text
	for {
		start := strings.Index(rest, "[PROCESS_KNOWLEDGE]")
		if start < 0 {
			return cited
		}
		rest = rest[start+len("[PROCESS_KNOWLEDGE]"):]
		end := strings.Index(rest, "[/PROCESS_KNOWLEDGE]")
		body := rest
		if end >= 0 {
			body = rest[:end]
			rest = rest[end:]
		} else {
			rest = ""
		}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			if v, ok := strings.CutPrefix(line, "contradicts:"); ok {
				if id := strings.TrimSpace(v); id != "" {
					cited[id] = true
				}
			}
		}
	}
}

// nearPhrase reports the first phrase occurring within signalWindow
// characters of any occurrence of label in text (both lowercased).
func nearPhrase(text, label string, phrases []string) string {
	if label == "" {
		return ""
	}
	from := 0
	for {
		i := strings.Index(text[from:], label)
		if i < 0 {
			return ""
		}
		i += from
		lo := i - signalWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + len(label) + signalWindow
		if hi > len(text) {
			hi = len(text)
		}
		window := text[lo:hi]
		for _, p := range phrases {
			if strings.Contains(window, p) {
				return p
			}
		}
		from = i + len(label)
	}
}
