package safeio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	in := map[string]any{"status": "active", "count": float64(3)}
	if err := WriteJSONAtomic(path, in, 2); err != nil {
		t.Fatal(err)
	}

	var out map[string]any
	if !ReadJSON(path, &out) {
		t.Fatal("ReadJSON failed on freshly written file")
	}
	if out["status"] != "active" || out["count"] != float64(3) {
		t.Errorf("round trip mismatch: %v", out)
	}
}

func TestWriteJSONAtomicNonSerializable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := WriteJSONAtomic(path, map[string]any{"initial": true}, 2); err != nil {
		t.Fatal(err)
	}

	// Channels cannot be marshaled; the write must fail without touching
	// the existing file and without leaving temp files behind.
	if err := WriteJSONAtomic(path, map[string]any{"ch": make(chan int)}, 2); err == nil {
		t.Fatal("expected encode error")
	}

	var out map[string]any
	if !ReadJSON(path, &out) {
		t.Fatal("prior content unreadable after failed write")
	}
	if out["initial"] != true {
		t.Errorf("prior content corrupted: %v", out)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestReadJSONDefaults(t *testing.T) {
	dir := t.TempDir()

	var v map[string]any
	if ReadJSON(filepath.Join(dir, "missing.json"), &v) {
		t.Error("missing file should report failure")
	}
	if v != nil {
		t.Errorf("value mutated on missing file: %v", v)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ReadJSON(bad, &v) {
		t.Error("malformed file should report failure")
	}

	if ReadJSON("", &v) {
		t.Error("empty path should report failure")
	}
}

func TestAppendLineConcurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				line, _ := json.Marshal(map[string]int{"writer": w, "seq": i})
				if err := AppendLine(path, string(line)); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != writers*perWriter {
		t.Fatalf("got %d lines, want %d", len(lines), writers*perWriter)
	}
	// Every line must be intact JSON: no interleaved partial writes.
	for i, line := range lines {
		var v map[string]int
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			t.Fatalf("line %d torn: %q", i, line)
		}
	}
}

func TestAppendLineNormalizesNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")

	if err := AppendLine(path, "one\n"); err != nil {
		t.Fatal(err)
	}
	if err := AppendLine(path, "two"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "one\ntwo\n" {
		t.Errorf("got %q", string(b))
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	wantErr := os.ErrInvalid
	if err := WithLock(path, true, func() error { return wantErr }); err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}

	// A second acquisition must not dead-lock against the first.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = WithLock(path, true, func() error { return nil })
	}()
	<-done
}

func TestResolveRejectsEmpty(t *testing.T) {
	if _, err := Resolve("  "); err == nil {
		t.Error("blank path accepted")
	}
}
