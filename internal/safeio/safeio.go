// Package safeio provides the file primitives every other package builds on:
// atomic JSON writes, locked line appends, and tolerant reads. Hook processes
// share nothing but files, so every write here must survive a concurrent
// writer and a crash at any point.
package safeio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Resolve cleans path to an absolute form. Empty paths and paths that cannot
// be made absolute are rejected before any file is opened.
func Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// ReadJSON decodes the file at path into v. On any failure (unresolvable
// path, missing file, permission, malformed JSON) v is left untouched and
// false is returned; the caller keeps its default.
func ReadJSON(path string, v any) bool {
	abs, err := Resolve(path)
	if err != nil {
		return false
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false
	}
	return true
}

// EncodeJSON marshals v without HTML escaping. indent <= 0 produces a single
// line (JSONL-friendly); the trailing newline from the encoder is kept.
func EncodeJSON(v any, indent int) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", indent))
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSONAtomic writes v as JSON to path through a temp file in the same
// directory: write, fsync, rename. Either the full new content lands or the
// previous content survives; partial temp files are removed on failure.
func WriteJSONAtomic(path string, v any, indent int) error {
	abs, err := Resolve(path)
	if err != nil {
		return err
	}
	b, err := EncodeJSON(v, indent)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(abs), err)
	}
	return WriteFileAtomic(abs, b)
}

// WriteFileAtomic is the byte-level form of WriteJSONAtomic. Parent
// directories are created on demand.
func WriteFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UnixNano())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}()
	if _, err := f.Write(b); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	// Crash-consistency: make the directory entry durable.
	if d, err := os.Open(filepath.Dir(path)); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// AppendLine appends a single newline-terminated line to path while holding
// an exclusive advisory lock on the destination. The directory is created on
// demand and the write is fsynced before the lock is released.
func AppendLine(path, line string) error {
	abs, err := Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := flock(f, true); err != nil {
		return err
	}
	defer func() { _ = funlock(f) }()
	line = strings.TrimRight(line, "\r\n") + "\n"
	if _, err := f.WriteString(line); err != nil {
		return err
	}
	return f.Sync()
}

// WithLock runs fn while holding an advisory lock on a ".lock" sidecar of
// path. The sidecar (rather than the file itself) keeps the lock meaningful
// across the atomic renames used by WriteFileAtomic. Shared locks serialize
// against exclusive ones; release happens on every exit path.
func WithLock(path string, exclusive bool, fn func() error) error {
	abs, err := Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	lf, err := os.OpenFile(abs+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = lf.Close() }()
	if err := flock(lf, exclusive); err != nil {
		return err
	}
	defer func() { _ = funlock(lf) }()
	return fn()
}
