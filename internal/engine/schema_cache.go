package engine

import (
	"slices"
	"strings"
	"sync"

	"crud6-backend/internal/schema"
)

type filteredEntry struct {
	etag     string
	contexts []string
	combined bool
	payload  schema.Payload
}

// FilteredCache memoizes context-filtered schema payloads per model and
// connection. A request for some contexts is served from a cached entry
// covering a superset of them. Entries built from an older schema version
// (different ETag) are discarded on read.
type FilteredCache struct {
	mu      sync.RWMutex
	entries map[string][]filteredEntry
}

func NewFilteredCache() *FilteredCache {
	return &FilteredCache{entries: make(map[string][]filteredEntry)}
}

// Get returns the projection of s for context. key identifies the
// model@connection the schema was loaded for.
func (fc *FilteredCache) Get(key string, s *schema.Schema, context string) any {
	requested := knownContexts(context)
	if requested == nil {
		return schema.Filter(s, context)
	}
	combined := strings.Contains(context, ",")

	fc.mu.RLock()
	list := fc.entries[key]
	fc.mu.RUnlock()

	var stale bool
	for _, e := range list {
		if e.etag != s.ETag() {
			stale = true
			continue
		}
		if e.combined == combined && slices.Equal(e.contexts, requested) {
			return e.payload
		}
		if p, ok := narrow(e, requested, combined); ok {
			return p
		}
	}

	payload := schema.Compose(s, requested, combined)
	entry := filteredEntry{etag: s.ETag(), contexts: requested, combined: combined, payload: payload}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	current := fc.entries[key]
	if stale {
		current = slices.DeleteFunc(slices.Clone(current), func(e filteredEntry) bool { return e.etag != s.ETag() })
	}
	fc.entries[key] = append(current, entry)
	return payload
}

// Invalidate drops every entry for key.
func (fc *FilteredCache) Invalidate(key string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	delete(fc.entries, key)
}

// InvalidateModel drops the entries of model for every connection.
func (fc *FilteredCache) InvalidateModel(model string) {
	prefix := model + "@"
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for key := range fc.entries {
		if strings.HasPrefix(key, prefix) {
			delete(fc.entries, key)
		}
	}
}

// knownContexts returns the sorted known contexts named by raw, or nil when
// raw asks for the full schema.
func knownContexts(raw string) []string {
	var out []string
	for _, c := range schema.ParseContexts(raw) {
		if c == schema.ContextFull {
			return nil
		}
		if schema.KnownContext(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return out
}

// narrow builds the payload for requested from a combined entry that
// covers it.
func narrow(e filteredEntry, requested []string, combined bool) (schema.Payload, bool) {
	if !e.combined {
		return nil, false
	}
	for _, c := range requested {
		if !slices.Contains(e.contexts, c) {
			return nil, false
		}
	}
	combined, _ := e.payload["contexts"].(map[string]any)
	p := make(schema.Payload, len(e.payload))
	for k, v := range e.payload {
		if k != "contexts" {
			p[k] = v
		}
	}
	if len(requested) == 1 && !combined {
		proj, _ := combined[requested[0]].(schema.Payload)
		for k, v := range proj {
			p[k] = v
		}
		return p, true
	}
	sub := make(map[string]any, len(requested))
	for _, c := range requested {
		sub[c] = combined[c]
	}
	p["contexts"] = sub
	return p, true
}
