package engine

import "sync"

// KeySets holds the key sets published by `provides` collections during a
// run, so later sections can filter against them.
type KeySets struct {
	mu    sync.RWMutex
	order map[string][]string
	sets  map[string]map[string]bool
}

func NewKeySets() *KeySets {
	return &KeySets{
		order: make(map[string][]string),
		sets:  make(map[string]map[string]bool),
	}
}

// Declare creates an empty set, so that a provider with no entries still
// filters its references down to nothing.
func (k *KeySets) Declare(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.sets[name]; !ok {
		k.sets[name] = make(map[string]bool)
	}
}

// Add records key under name.
func (k *KeySets) Add(name, key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	set, ok := k.sets[name]
	if !ok {
		set = make(map[string]bool)
		k.sets[name] = set
	}
	if !set[key] {
		set[key] = true
		k.order[name] = append(k.order[name], key)
	}
}

// Has reports whether a set was published in this run.
func (k *KeySets) Has(name string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.sets[name]
	return ok
}

// Allows reports whether key passes a reference filter on name. Unknown sets
// allow everything.
func (k *KeySets) Allows(name, key string) bool {
	if name == "" {
		return true
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	set, ok := k.sets[name]
	if !ok {
		return true
	}
	return set[key]
}

// Keys returns the keys of a set in insertion order.
func (k *KeySets) Keys(name string) []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]string(nil), k.order[name]...)
}
