package cmap

// Entry is a key-value pair returned by Entries and Drain.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Range iterates over all key-value pairs until fn returns false.
//
// Shards are locked one at a time; fn must not call back into the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Entries returns a copy of all key-value pairs.
func (m *Map[K, V]) Entries() []Entry[K, V] {
	out := make([]Entry[K, V], 0, m.Count())
	m.Range(func(k K, v V) bool {
		out = append(out, Entry[K, V]{Key: k, Value: v})
		return true
	})
	return out
}

// Drain removes every item and returns the removed pairs.
//
// Each removed pair is returned exactly once even when Pop runs concurrently.
func (m *Map[K, V]) Drain() []Entry[K, V] {
	var out []Entry[K, V]
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			out = append(out, Entry[K, V]{Key: k, Value: v})
		}
		s.items = make(map[K]V)
		s.mu.Unlock()
	}
	return out
}
