package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// namespaceKey length-prefixes the namespace so one namespace can never be a
// prefix of another.
func namespaceKey(namespace string) []byte {
	out := make([]byte, 2, 2+len(namespace))
	binary.BigEndian.PutUint16(out, uint16(len(namespace)))
	return append(out, namespace...)
}

// Map is a JSON-valued mapping from string keys to V under a stable namespace.
type Map[V any] struct {
	namespace string
	prefix    []byte
}

func NewMap[V any](namespace string) Map[V] {
	return Map[V]{namespace: namespace, prefix: namespaceKey(namespace)}
}

func (m Map[V]) Namespace() string { return m.namespace }

func (m Map[V]) key(k string) ([]byte, error) {
	if k == "" {
		return nil, fmt.Errorf("%w: %s: empty map key", ErrInvalidKey, m.namespace)
	}
	out := make([]byte, 0, len(m.prefix)+len(k))
	out = append(out, m.prefix...)
	return append(out, k...), nil
}

// Load returns the value for k and whether it was present.
func (m Map[V]) Load(s Store, k string) (V, bool, error) {
	var out V
	key, err := m.key(k)
	if err != nil {
		return out, false, err
	}
	raw, err := s.Get(key)
	if err != nil || raw == nil {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("%w: %s/%s: %v", ErrCorrupt, m.namespace, k, err)
	}
	return out, true, nil
}

func (m Map[V]) Has(s Store, k string) (bool, error) {
	key, err := m.key(k)
	if err != nil {
		return false, err
	}
	raw, err := s.Get(key)
	return raw != nil, err
}

func (m Map[V]) Save(s Store, k string, v V) error {
	key, err := m.key(k)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s/%s: encode: %w", m.namespace, k, err)
	}
	return s.Set(key, raw)
}

func (m Map[V]) Remove(s Store, k string) error {
	key, err := m.key(k)
	if err != nil {
		return err
	}
	return s.Delete(key)
}

// Update loads k, applies fn and saves the result. fn sees ok=false for a missing key.
func (m Map[V]) Update(s Store, k string, fn func(v V, ok bool) (V, error)) (V, error) {
	cur, ok, err := m.Load(s, k)
	if err != nil {
		return cur, err
	}
	next, err := fn(cur, ok)
	if err != nil {
		return cur, err
	}
	if err := m.Save(s, k, next); err != nil {
		return cur, err
	}
	return next, nil
}

// Keys lists every key in the namespace in the given order.
func (m Map[V]) Keys(s Store, order Order) ([]string, error) {
	keys := make([]string, 0)
	n := len(m.prefix)
	err := IteratePrefix(s, m.prefix, order, func(k, _ []byte) bool {
		keys = append(keys, string(k[n:]))
		return true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Item is a single JSON value stored under a namespace.
type Item[V any] struct {
	key []byte
}

func NewItem[V any](namespace string) Item[V] {
	return Item[V]{key: []byte(namespace)}
}

func (i Item[V]) Load(s Store) (V, bool, error) {
	var out V
	raw, err := s.Get(i.key)
	if err != nil || raw == nil {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, i.key, err)
	}
	return out, true, nil
}

func (i Item[V]) Save(s Store, v V) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", i.key, err)
	}
	return s.Set(i.key, raw)
}
