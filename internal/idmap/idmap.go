// Package idmap tracks the correspondence between source ids and created
// destination entities during one migration run, and the durable record of
// which projects have already been migrated.
package idmap

import (
	"fmt"
	"sync"
)

// Kind partitions the mapping space so a story id and a label id with the
// same numeric value never collide.
type Kind string

const (
	KindWorkspace Kind = "workspace"
	KindUser      Kind = "user"
	KindLabel     Kind = "label"
	KindGrouping  Kind = "grouping"
	KindPeriod    Kind = "period"
	KindWorkItem  Kind = "workitem"
)

// Map is a write-once mapping from (kind, source id) to the created
// destination entity. It is safe for concurrent use; the story fan-out
// writes work items from several goroutines.
type Map struct {
	mu      sync.RWMutex
	entries map[Kind]map[int64]any
}

func New() *Map {
	return &Map{entries: make(map[Kind]map[int64]any)}
}

// Put records a mapping. Each key is written at most once per run; a second
// Put for the same key is a bug in the caller.
func (m *Map) Put(kind Kind, sourceID int64, entity any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.entries[kind]
	if !ok {
		byID = make(map[int64]any)
		m.entries[kind] = byID
	}
	if _, ok := byID[sourceID]; ok {
		return fmt.Errorf("%s %d is already mapped", kind, sourceID)
	}
	byID[sourceID] = entity
	return nil
}

// Get returns the destination entity for a source id, if one was recorded.
func (m *Map) Get(kind Kind, sourceID int64) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entity, ok := m.entries[kind][sourceID]
	return entity, ok
}

// Len reports how many mappings of a kind exist.
func (m *Map) Len(kind Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[kind])
}
