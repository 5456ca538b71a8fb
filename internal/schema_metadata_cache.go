package internal

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lychee-technology/formtab"
)

type definitionKey struct {
	formID int64
	rc     formtab.ReadContext
}

// MetadataCache holds reconstructed form definitions and the form name to
// id mapping. Any schema change invalidates the whole cache because parent
// definitions embed their children.
type MetadataCache struct {
	mu sync.RWMutex

	definitions map[definitionKey]*formtab.FormDefinition
	formIDs     map[string]int64
}

// NewMetadataCache creates an empty cache.
func NewMetadataCache() *MetadataCache {
	return &MetadataCache{
		definitions: make(map[definitionKey]*formtab.FormDefinition),
		formIDs:     make(map[string]int64),
	}
}

// Definition returns a cached definition (thread-safe).
func (mc *MetadataCache) Definition(formID int64, rc formtab.ReadContext) (*formtab.FormDefinition, bool) {
	if mc == nil {
		return nil, false
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	def, ok := mc.definitions[definitionKey{formID, rc}]
	if !ok {
		zap.S().Debugw("form definition not cached", "form_id", formID, "context", rc.String(), "cache_size", len(mc.definitions))
	}
	return def, ok
}

// FormID resolves a form name from the cache (thread-safe).
func (mc *MetadataCache) FormID(name string) (int64, bool) {
	if mc == nil {
		return 0, false
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	id, ok := mc.formIDs[name]
	return id, ok
}

// Store caches def under its form id.
func (mc *MetadataCache) Store(def *formtab.FormDefinition, rc formtab.ReadContext) {
	if mc == nil || def == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.definitions[definitionKey{def.Form.ID, rc}] = def
	mc.formIDs[def.Form.Name] = def.Form.ID
}

// Invalidate drops every cached definition.
func (mc *MetadataCache) Invalidate() {
	if mc == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.definitions = make(map[definitionKey]*formtab.FormDefinition)
	mc.formIDs = make(map[string]int64)
}

// Len reports the number of cached definitions.
func (mc *MetadataCache) Len() int {
	if mc == nil {
		return 0
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.definitions)
}
