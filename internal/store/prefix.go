package store

import "bytes"

// Prefixed scopes every key of a parent Store under a fixed prefix.
type Prefixed struct {
	parent Store
	prefix []byte
}

func NewPrefixed(parent Store, prefix []byte) *Prefixed {
	return &Prefixed{parent: parent, prefix: bytes.Clone(prefix)}
}

func (p *Prefixed) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p *Prefixed) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	return p.parent.Get(p.key(key))
}

func (p *Prefixed) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return p.parent.Set(p.key(key), value)
}

func (p *Prefixed) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return p.parent.Delete(p.key(key))
}

func (p *Prefixed) Iterate(start, end []byte, order Order, fn VisitFunc) error {
	lo := p.prefix
	if start != nil {
		lo = p.key(start)
	}
	hi := PrefixEnd(p.prefix)
	if end != nil {
		hi = p.key(end)
	}
	n := len(p.prefix)
	return p.parent.Iterate(lo, hi, order, func(k, v []byte) bool {
		return fn(k[n:], v)
	})
}
