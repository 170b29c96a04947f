// Package store owns the key-value abstraction that contract state lives in.
//
// Ownership boundary:
// - Store interface (get/set/delete/ordered iteration)
// - memory and sqlite backends
// - transactional cache and prefixed views used per invocation
// - typed Map/Item namespaces
package store

import (
	"bytes"
	"errors"
)

var (
	ErrClosed     = errors.New("store: closed")
	ErrEmptyKey   = errors.New("store: empty key")
	ErrCorrupt    = errors.New("store: corrupt value")
	ErrInvalidKey = errors.New("store: invalid key")
)

type Order int

const (
	Ascending Order = iota
	Descending
)

// VisitFunc is called for each entry in iteration order. Returning false stops iteration.
type VisitFunc func(key, value []byte) bool

// Store is the persistence boundary. Get returns nil for a missing key.
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate visits keys in [start, end) in byte order. Nil bounds are open.
	Iterate(start, end []byte, order Order, fn VisitFunc) error
}

// PrefixEnd returns the smallest key greater than every key with prefix p,
// or nil when no such key exists.
func PrefixEnd(p []byte) []byte {
	end := bytes.Clone(p)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// IteratePrefix visits every key that starts with prefix.
func IteratePrefix(s Store, prefix []byte, order Order, fn VisitFunc) error {
	return s.Iterate(prefix, PrefixEnd(prefix), order, fn)
}

func inRange(key, start, end []byte) bool {
	if start != nil && bytes.Compare(key, start) < 0 {
		return false
	}
	if end != nil && bytes.Compare(key, end) >= 0 {
		return false
	}
	return true
}
