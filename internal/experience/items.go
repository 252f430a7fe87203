// Package experience is the pre-tool injection engine and its session
// tracker. Given the tool about to run, it ranks process-knowledge nodes
// from every triad graph, decides between silent injection and a hard
// block, and records each injection so the stop hook can close the loop
// with confidence updates.
package experience

import (
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

// Item is one process-knowledge node together with the triad it came from.
type Item struct {
	Triad string     `msgpack:"triad"`
	Node  graph.Node `msgpack:"node"`
}

// SessionCache memoizes extracted process knowledge per graph file, keyed by
// (mtime, size). The pre-tool hook runs on every tool call and has a tight
// latency budget; re-parsing unchanged graphs is the dominant cost it
// avoids. The cache is advisory: any failure falls back to a full scan.
type SessionCache struct {
	Path string
}

type cachedFile struct {
	ModTimeNS int64  `msgpack:"mtime_ns"`
	Size      int64  `msgpack:"size"`
	Items     []Item `msgpack:"items"`
}

func (c *SessionCache) load() map[string]cachedFile {
	if c == nil || c.Path == "" {
		return nil
	}
	b, err := os.ReadFile(c.Path)
	if err != nil {
		return nil
	}
	var m map[string]cachedFile
	if err := msgpack.Unmarshal(b, &m); err != nil {
		hooklog.Debugf("session cache unreadable, rescanning: %v", err)
		return nil
	}
	return m
}

func (c *SessionCache) store(m map[string]cachedFile) {
	if c == nil || c.Path == "" {
		return
	}
	b, err := msgpack.Marshal(m)
	if err != nil {
		return
	}
	if err := safeio.WriteFileAtomic(c.Path, b); err != nil {
		hooklog.Debugf("session cache write failed: %v", err)
	}
}

// Collect gathers non-deprecated process-knowledge items from every triad
// graph, consulting the session cache where graph files are unchanged.
func Collect(store *graph.Store, cache *SessionCache) ([]Item, error) {
	triads, err := store.ListTriads()
	if err != nil {
		return nil, err
	}
	cached := cache.load()
	next := make(map[string]cachedFile, len(triads))
	var items []Item
	dirty := false

	for _, triad := range triads {
		path, err := store.Path(triad)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if ce, ok := cached[path]; ok && ce.ModTimeNS == info.ModTime().UnixNano() && ce.Size == info.Size() {
			items = append(items, ce.Items...)
			next[path] = ce
			continue
		}

		g, err := store.Load(triad)
		if err != nil {
			hooklog.Debugf("skip unreadable graph %s: %v", triad, err)
			continue
		}
		var extracted []Item
		for _, n := range g.Nodes {
			if n.IsProcessKnowledge() && !n.Deprecated {
				extracted = append(extracted, Item{Triad: triad, Node: n})
			}
		}
		items = append(items, extracted...)
		next[path] = cachedFile{ModTimeNS: info.ModTime().UnixNano(), Size: info.Size(), Items: extracted}
		dirty = true
	}

	if dirty {
		cache.store(next)
	}
	return items, nil
}
