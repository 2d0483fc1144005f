package service

import (
	"sort"
	"sync"
)

// InFlightSet tracks the object identifiers that have been dispatched
// for checking and have not yet finished. It is safe to share across
// goroutines. Tracking is best-effort and in memory only: a restarted
// process starts with an empty set.
type InFlightSet struct {
	items map[string]struct{}
	mutex *sync.RWMutex
}

// NewInFlightSet creates a new, empty InFlightSet.
func NewInFlightSet() *InFlightSet {
	return &InFlightSet{
		items: make(map[string]struct{}),
		mutex: &sync.RWMutex{},
	}
}

// Add marks item as in flight. It returns false if the item
// was already in the set.
func (set *InFlightSet) Add(item string) bool {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	if _, exists := set.items[item]; exists {
		return false
	}
	set.items[item] = struct{}{}
	return true
}

// Contains returns true if item is in flight.
func (set *InFlightSet) Contains(item string) bool {
	set.mutex.RLock()
	_, exists := set.items[item]
	set.mutex.RUnlock()
	return exists
}

// Del removes item from the set.
func (set *InFlightSet) Del(item string) {
	set.mutex.Lock()
	delete(set.items, item)
	set.mutex.Unlock()
}

func (set *InFlightSet) Len() int {
	set.mutex.RLock()
	defer set.mutex.RUnlock()
	return len(set.items)
}

// Items returns a sorted copy of the items in flight.
func (set *InFlightSet) Items() []string {
	set.mutex.RLock()
	items := make([]string, 0, len(set.items))
	for item := range set.items {
		items = append(items, item)
	}
	set.mutex.RUnlock()
	sort.Strings(items)
	return items
}

// Clear empties the set. Call this on shutdown.
func (set *InFlightSet) Clear() {
	set.mutex.Lock()
	set.items = make(map[string]struct{})
	set.mutex.Unlock()
}
