package events

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

const (
	// Rotation thresholds for the primary log.
	defaultMaxBytes = 10 * 1024 * 1024
	defaultMaxLines = 10_000

	// Per-hook token bucket: events allowed per sliding minute.
	defaultRatePerMinute = 100

	// Rotated logs kept after pruning.
	rotationKeep = 5

	// How far back from the end of the log the rate limiter reads. 256 KiB
	// comfortably covers a minute of traffic at the allowed rate.
	rateTailBytes = 256 * 1024

	ratePredicate = "rate_limit_exceeded"
)

// Capture is the write-side service used by every hook. It never returns an
// error: an event is either appended or dropped, and drops are surfaced only
// through stderr diagnostics and (for rate limiting) a single audit event
// per window. Hook processes are short-lived, so all limiter state is
// derived from the log itself rather than kept in memory.
type Capture struct {
	Path string

	MaxBytes      int64
	MaxLines      int
	RatePerMinute int

	now func() time.Time
}

func NewCapture(claudeDir string) *Capture {
	return &Capture{
		Path:          filepath.Join(claudeDir, "events.jsonl"),
		MaxBytes:      defaultMaxBytes,
		MaxLines:      defaultMaxLines,
		RatePerMinute: defaultRatePerMinute,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Capture appends one event. Returns false when the event was dropped
// (invalid payload, rate limit, or unrecoverable I/O failure).
func (c *Capture) Capture(hookName, predicate string, objectData map[string]any, workspaceID string) bool {
	if strings.TrimSpace(predicate) == "" {
		hooklog.Debugf("capture dropped: empty predicate (hook %s)", hookName)
		return false
	}
	if objectData == nil {
		objectData = map[string]any{}
	}

	allowed, emitViolation := c.checkRate(hookName)
	if !allowed {
		if emitViolation {
			c.append(Event{
				Subject:    hookName,
				Predicate:  ratePredicate,
				ObjectData: map[string]any{"limit_per_minute": c.ratePerMinute()},
				HookName:   hookName,
			})
		}
		return false
	}

	c.maybeRotate()

	return c.append(Event{
		Subject:     hookName,
		Predicate:   predicate,
		ObjectData:  objectData,
		WorkspaceID: workspaceID,
		HookName:    hookName,
	})
}

// CaptureExecution records a completed hook run with elapsed milliseconds.
// The caller's data map is copied, not written to.
func (c *Capture) CaptureExecution(hookName string, start time.Time, data map[string]any, workspaceID string) bool {
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["execution_time_ms"] = c.now().Sub(start).Milliseconds()
	return c.Capture(hookName, "executed", payload, workspaceID)
}

// CaptureError records a hook failure. The hook continues; the event is the
// only trace.
func (c *Capture) CaptureError(hookName string, start time.Time, hookErr error, workspaceID string) bool {
	msg := ""
	errType := ""
	if hookErr != nil {
		msg = hookErr.Error()
		errType = fmt.Sprintf("%T", hookErr)
	}
	elapsed := c.now().Sub(start).Milliseconds()
	if !c.Capture(hookName, "failed", map[string]any{
		"error_type":        errType,
		"error_message":     msg,
		"execution_time_ms": elapsed,
	}, workspaceID) {
		return false
	}
	return true
}

func (c *Capture) append(ev Event) bool {
	if err := prepare(&ev); err != nil {
		hooklog.Debugf("capture dropped: %v", err)
		return false
	}
	ev.Timestamp = c.now()
	b, err := Encode(ev)
	if err != nil {
		hooklog.Debugf("capture encode failed: %v", err)
		return false
	}
	if err := safeio.AppendLine(c.Path, string(b)); err != nil {
		hooklog.Warnf("capture append failed: %v", err)
		return false
	}
	return true
}

func (c *Capture) ratePerMinute() int {
	if c.RatePerMinute > 0 {
		return c.RatePerMinute
	}
	return defaultRatePerMinute
}

// checkRate derives the per-hook token bucket from the tail of the log: no
// extra state file, no coordination between processes. Returns whether this
// event may be written and whether a violation event is due (at most one per
// window).
func (c *Capture) checkRate(hookName string) (allowed, emitViolation bool) {
	tail, err := readTail(c.Path, rateTailBytes)
	if err != nil {
		// Cannot read the log; do not penalize the writer.
		return true, false
	}
	cutoff := c.now().Add(-time.Minute)
	count := 0
	violated := false
	for _, line := range strings.Split(tail, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ev, err := Decode([]byte(line))
		if err != nil {
			continue
		}
		if ev.HookName != hookName || ev.Timestamp.Before(cutoff) {
			continue
		}
		if ev.Predicate == ratePredicate {
			violated = true
			continue
		}
		count++
	}
	if count >= c.ratePerMinute() {
		return false, !violated
	}
	return true, false
}

// maybeRotate renames the log to events.jsonl.backup_<ts> when it crosses
// the size or line thresholds, then prunes old rotations. Failures are
// logged and writing continues into the oversized file.
func (c *Capture) maybeRotate() {
	info, err := os.Stat(c.Path)
	if err != nil {
		return
	}
	maxBytes := c.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	maxLines := c.MaxLines
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	rotate := info.Size() >= maxBytes
	if !rotate {
		n, err := countLines(c.Path)
		if err != nil {
			return
		}
		rotate = n >= maxLines
	}
	if !rotate {
		return
	}
	// Nanosecond precision keeps suffixes unique under rapid rotation and
	// lexically sortable for pruning.
	stamp := c.now().Format("20060102T150405.000000000")
	dst := fmt.Sprintf("%s.backup_%s", c.Path, stamp)
	if err := os.Rename(c.Path, dst); err != nil {
		hooklog.Warnf("event log rotation failed: %v", err)
		return
	}
	c.pruneRotations()
}

func (c *Capture) pruneRotations() {
	matches, err := filepath.Glob(c.Path + ".backup_*")
	if err != nil || len(matches) <= rotationKeep {
		return
	}
	// Timestamp suffixes sort lexically in age order.
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-rotationKeep] {
		if err := os.Remove(old); err != nil {
			hooklog.Debugf("prune rotation %s: %v", old, err)
		}
	}
}

func readTail(path string, n int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	off := info.Size() - n
	if off < 0 {
		off = 0
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return "", err
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	s := string(b)
	if off > 0 {
		// Drop the first partial line.
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
	}
	return s, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, 64*1024)
	n := 0
	for {
		read, err := f.Read(buf)
		for i := 0; i < read; i++ {
			if buf[i] == '\n' {
				n++
			}
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
