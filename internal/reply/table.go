// Package reply correlates sub-call completions with the continuation that
// issued them.
//
// Ownership boundary:
// - fixed id -> handler tables declared per contract
// - store-backed id allocation for continuations created at runtime
// - the unknown-id failure that aborts an invocation
package reply

import (
	"errors"
	"fmt"

	"github.com/danmuck/edgerelay/internal/host"
)

// ErrUnknownReplyID means a completion arrived for an id nobody is waiting on.
// It always aborts the invocation.
var ErrUnknownReplyID = errors.New("unknown reply id")

// UnknownID formats ErrUnknownReplyID for id.
func UnknownID(id uint64) error {
	return fmt.Errorf("%w: %d", ErrUnknownReplyID, id)
}

// Handler resumes a continuation with the outcome of its sub-call.
type Handler func(deps host.Deps, env host.Env, result host.SubMsgResult) (*host.Response, error)

// Fallback receives completions for ids not in the table.
type Fallback func(deps host.Deps, env host.Env, r host.Reply) (*host.Response, error)

// Table maps fixed continuation ids to handlers. It is built once at contract
// construction and read-only afterwards.
type Table struct {
	handlers map[uint64]Handler
	fallback Fallback
}

func NewTable() *Table {
	return &Table{handlers: make(map[uint64]Handler)}
}

// Register binds id to h. Registering an id twice is a programming error.
func (t *Table) Register(id uint64, h Handler) *Table {
	if h == nil {
		panic(fmt.Sprintf("reply: nil handler for id %d", id))
	}
	if _, ok := t.handlers[id]; ok {
		panic(fmt.Sprintf("reply: duplicate handler for id %d", id))
	}
	t.handlers[id] = h
	return t
}

// WithFallback routes ids missing from the table to fb instead of failing.
func (t *Table) WithFallback(fb Fallback) *Table {
	t.fallback = fb
	return t
}

func (t *Table) Has(id uint64) bool {
	_, ok := t.handlers[id]
	return ok
}

// Route dispatches r to its handler.
func (t *Table) Route(deps host.Deps, env host.Env, r host.Reply) (*host.Response, error) {
	if h, ok := t.handlers[r.ID]; ok {
		return h(deps, env, r.Result)
	}
	if t.fallback != nil {
		return t.fallback(deps, env, r)
	}
	return nil, UnknownID(r.ID)
}
