package devbackend

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"farmacia/client/internal/state"
)

// idKey is where every stored record keeps its numeric id.
const idKey = "ID"

// Record is one stored object, keyed by the backend's field names.
type Record map[string]any

// ID returns the record's numeric id, or 0.
func (r Record) ID() int {
	id, _ := toInt(r[idKey])
	return id
}

// Text returns the field as trimmed text.
func (r Record) Text(key string) string {
	switch v := r[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

type collection struct {
	nextID int
	items  map[int]Record
}

// Store keeps every collection in memory. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[state.Resource]*collection
}

// NewStore returns an empty store with one collection per resource.
func NewStore() *Store {
	s := &Store{collections: make(map[state.Resource]*collection, len(state.Resources))}
	for _, res := range state.Resources {
		s.collections[res] = &collection{nextID: 1, items: make(map[int]Record)}
	}
	return s
}

func resourceByName(name string) (state.Resource, bool) {
	res := state.Resource(strings.ToLower(strings.TrimSpace(name)))
	return res, res.Valid()
}

// Seed inserts fixtures, keeping an explicit id when the fixture has one.
func (s *Store) Seed(res state.Resource, items []map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[res]
	if !ok {
		return fmt.Errorf("unknown resource %q", res)
	}
	for i, item := range items {
		rec := cleaned(item)
		id := c.nextID
		for _, key := range []string{"ID", "id"} {
			if raw, ok := item[key]; ok {
				n, ok := toInt(raw)
				if !ok || n <= 0 {
					return fmt.Errorf("%s fixture %d: invalid id %v", res, i, raw)
				}
				id = n
				break
			}
		}
		if _, taken := c.items[id]; taken {
			return fmt.Errorf("%s fixture %d: duplicate id %d", res, i, id)
		}
		rec[idKey] = id
		c.items[id] = rec
		if id >= c.nextID {
			c.nextID = id + 1
		}
	}
	return nil
}

// List returns copies of every record of res ordered by id.
func (s *Store) List(res state.Resource) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[res]
	if !ok {
		return nil
	}
	ids := slices.Sorted(maps.Keys(c.items))
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, maps.Clone(c.items[id]))
	}
	return out
}

// Get returns a copy of one record.
func (s *Store) Get(res state.Resource, id int) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[res]
	if !ok {
		return nil, false
	}
	rec, ok := c.items[id]
	if !ok {
		return nil, false
	}
	return maps.Clone(rec), true
}

// Create stores rec under a fresh id and returns the stored copy.
func (s *Store) Create(res state.Resource, rec Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collections[res]
	stored := cleaned(rec)
	stored[idKey] = c.nextID
	c.items[c.nextID] = stored
	c.nextID++
	return maps.Clone(stored)
}

// Update replaces the record with id. Fields missing from rec are kept.
func (s *Store) Update(res state.Resource, id int, rec Record) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[res]
	if !ok {
		return nil, false
	}
	current, ok := c.items[id]
	if !ok {
		return nil, false
	}
	merged := maps.Clone(current)
	maps.Copy(merged, cleaned(rec))
	merged[idKey] = id
	c.items[id] = merged
	return maps.Clone(merged), true
}

// Delete removes the record with id and reports whether it existed.
func (s *Store) Delete(res state.Resource, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[res]
	if !ok {
		return false
	}
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	return true
}

// Count returns the number of records of res.
func (s *Store) Count(res state.Resource) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[res]; ok {
		return len(c.items)
	}
	return 0
}

// cleaned copies item without any id field; ids are owned by the store.
func cleaned(item map[string]any) Record {
	rec := make(Record, len(item))
	for k, v := range item {
		if strings.EqualFold(k, idKey) {
			continue
		}
		rec[k] = v
	}
	return rec
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}
