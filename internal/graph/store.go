package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

// Triad names double as file names, so the pattern also rejects path
// traversal.
var triadRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func ValidTriadName(triad string) bool { return triadRe.MatchString(triad) }

const defaultBackupKeep = 10

// Store manages <triad>_graph.json files in one directory. Loads go through
// an in-process cache invalidated by file mtime/size or an explicit Refresh;
// saves follow the non-negotiable protocol: validate, backup, locked atomic
// write, restore from backup on post-validation failure.
type Store struct {
	Dir        string
	BackupKeep int

	mu    sync.Mutex
	cache map[string]*cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	graph   *Graph
	modTime time.Time
	size    int64
}

func NewStore(dir string) *Store {
	return &Store{
		Dir:        dir,
		BackupKeep: defaultBackupKeep,
		cache:      make(map[string]*cacheEntry),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Path(triad string) (string, error) {
	if !ValidTriadName(triad) {
		return "", fmt.Errorf("invalid triad name %q", triad)
	}
	return filepath.Join(s.Dir, triad+"_graph.json"), nil
}

// ListTriads scans the directory for graph files with well-formed names.
func (s *Store) ListTriads() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var triads []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, "_graph.json") {
			continue
		}
		triad := strings.TrimSuffix(name, "_graph.json")
		if ValidTriadName(triad) {
			triads = append(triads, triad)
		}
	}
	sort.Strings(triads)
	return triads, nil
}

// Refresh drops the in-process cache.
func (s *Store) Refresh() {
	s.mu.Lock()
	s.cache = make(map[string]*cacheEntry)
	s.mu.Unlock()
}

// Load returns the parsed graph for triad, from cache when the file is
// unchanged. A missing file yields an empty graph. The caller owns the
// returned graph: the cache keeps a pristine copy, so mutating a loaded
// graph (even one whose save later fails) cannot leak into other loads.
func (s *Store) Load(triad string) (*Graph, error) {
	path, err := s.Path(triad)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Graph{}, nil
		}
		return nil, err
	}

	s.mu.Lock()
	if ce, ok := s.cache[triad]; ok && ce.modTime.Equal(info.ModTime()) && ce.size == info.Size() {
		g := ce.graph.Clone()
		s.mu.Unlock()
		return g, nil
	}
	s.mu.Unlock()

	var g Graph
	err = safeio.WithLock(path, false, func() error {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, &g)
	})
	if err != nil {
		return nil, fmt.Errorf("load %s graph: %w", triad, err)
	}

	s.mu.Lock()
	s.cache[triad] = &cacheEntry{graph: &g, modTime: info.ModTime(), size: info.Size()}
	s.mu.Unlock()
	return g.Clone(), nil
}

// Save persists the graph for triad. Unchanged content (by blake3 hash) is a
// no-op so chatty writers do not churn the backup rotation.
func (s *Store) Save(triad string, g *Graph) error {
	path, err := s.Path(triad)
	if err != nil {
		return err
	}
	if err := Validate(g); err != nil {
		return err
	}

	Normalize(g)
	g.Touch(s.now())
	newBytes, err := safeio.EncodeJSON(g, 2)
	if err != nil {
		return fmt.Errorf("encode %s graph: %w", triad, err)
	}
	if err := ValidateBytes(newBytes); err != nil {
		return err
	}

	// The whole read-compare-backup-write-verify cycle runs under one
	// exclusive lock so concurrent savers serialize per file.
	backupPath := ""
	err = safeio.WithLock(path, true, func() error {
		existing, readErr := os.ReadFile(path)
		if readErr == nil {
			if contentEqualIgnoringMeta(existing, newBytes) {
				return nil
			}
			var berr error
			backupPath, berr = s.backup(triad, existing)
			if berr != nil {
				return fmt.Errorf("backup: %w", berr)
			}
		}
		if err := safeio.WriteFileAtomic(path, newBytes); err != nil {
			return err
		}
		// Post-write verification: anything unreadable here means the save
		// must be rolled back to the freshest backup.
		written, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return ValidateBytes(written)
	})
	if err != nil {
		if backupPath != "" {
			if rerr := s.restore(path, backupPath); rerr != nil {
				return fmt.Errorf("save %s graph: %w (restore also failed: %v)", triad, err, rerr)
			}
			return fmt.Errorf("save %s graph: %w (restored previous version)", triad, err)
		}
		return fmt.Errorf("save %s graph: %w", triad, err)
	}

	s.mu.Lock()
	delete(s.cache, triad)
	s.mu.Unlock()
	return nil
}

// contentEqualIgnoringMeta compares two serialized graphs with _meta zeroed,
// so a save that only refreshes updated_at does not count as a change.
func contentEqualIgnoringMeta(a, b []byte) bool {
	return hashIgnoringMeta(a) == hashIgnoringMeta(b)
}

func hashIgnoringMeta(b []byte) [32]byte {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return blake3.Sum256(b)
	}
	delete(doc, "_meta")
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := blake3.New()
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write(doc[k])
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func (s *Store) backupDir() string { return filepath.Join(s.Dir, "backups") }

func (s *Store) backup(triad string, content []byte) (string, error) {
	stamp := s.now().Format("20060102T150405.000000000")
	path := filepath.Join(s.backupDir(), fmt.Sprintf("%s_graph_%s.json.backup", triad, stamp))
	if err := safeio.WriteFileAtomic(path, content); err != nil {
		return "", err
	}
	s.pruneBackups(triad)
	return path, nil
}

func (s *Store) pruneBackups(triad string) {
	keep := s.BackupKeep
	if keep <= 0 {
		keep = defaultBackupKeep
	}
	matches, err := filepath.Glob(filepath.Join(s.backupDir(), triad+"_graph_*.json.backup"))
	if err != nil || len(matches) <= keep {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-keep] {
		if err := os.Remove(old); err != nil {
			hooklog.Debugf("prune backup %s: %v", old, err)
		}
	}
}

// FreshestBackup returns the newest backup file for triad, if any.
func (s *Store) FreshestBackup(triad string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(s.backupDir(), triad+"_graph_*.json.backup"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[len(matches)-1], true
}

func (s *Store) restore(path, backupPath string) error {
	b, err := os.ReadFile(backupPath)
	if err != nil {
		return err
	}
	return safeio.WriteFileAtomic(path, b)
}
