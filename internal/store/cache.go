package store

import (
	"bytes"
	"sort"
)

type cacheEntry struct {
	value   []byte
	deleted bool
}

// Cache buffers writes over a parent Store until Commit. Reads see buffered
// writes first. A Cache is owned by one invocation and is not safe for
// concurrent use.
type Cache struct {
	parent Store
	writes map[string]cacheEntry
}

func NewCache(parent Store) *Cache {
	return &Cache{parent: parent, writes: make(map[string]cacheEntry)}
}

func (c *Cache) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if e, ok := c.writes[string(key)]; ok {
		if e.deleted {
			return nil, nil
		}
		return bytes.Clone(e.value), nil
	}
	return c.parent.Get(key)
}

func (c *Cache) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}
	c.writes[string(key)] = cacheEntry{value: bytes.Clone(value)}
	return nil
}

func (c *Cache) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	c.writes[string(key)] = cacheEntry{deleted: true}
	return nil
}

func (c *Cache) Iterate(start, end []byte, order Order, fn VisitFunc) error {
	merged := make(map[string][]byte)
	err := c.parent.Iterate(start, end, Ascending, func(k, v []byte) bool {
		merged[string(k)] = v
		return true
	})
	if err != nil {
		return err
	}
	for k, e := range c.writes {
		if !inRange([]byte(k), start, end) {
			continue
		}
		if e.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = e.value
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if order == Descending {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}
	for _, k := range keys {
		if !fn([]byte(k), bytes.Clone(merged[k])) {
			return nil
		}
	}
	return nil
}

// Dirty reports whether the cache holds uncommitted writes.
func (c *Cache) Dirty() bool {
	return len(c.writes) > 0
}

// Commit flushes buffered writes to the parent in key order and resets the cache.
func (c *Cache) Commit() error {
	keys := make([]string, 0, len(c.writes))
	for k := range c.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := c.writes[k]
		var err error
		if e.deleted {
			err = c.parent.Delete([]byte(k))
		} else {
			err = c.parent.Set([]byte(k), e.value)
		}
		if err != nil {
			return err
		}
	}
	c.Discard()
	return nil
}

// Discard drops buffered writes.
func (c *Cache) Discard() {
	c.writes = make(map[string]cacheEntry)
}
