package reply

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/danmuck/edgerelay/internal/store"
)

// DefaultBase keeps allocated ids clear of fixed table ids.
const DefaultBase uint64 = 1000

// Pending is the durable record of one outstanding continuation.
type Pending struct {
	Tag     string          `json:"tag"`
	Context json.RawMessage `json:"context,omitempty"`
}

// Allocator hands out continuation ids at runtime and remembers what each one
// is waiting for until the completion is consumed.
type Allocator struct {
	base    uint64
	next    store.Item[uint64]
	pending store.Map[Pending]
}

func NewAllocator(namespace string, base uint64) Allocator {
	return Allocator{
		base:    base,
		next:    store.NewItem[uint64](namespace + "/next"),
		pending: store.NewMap[Pending](namespace + "/pending"),
	}
}

func (a Allocator) Base() uint64 { return a.base }

// Owns reports whether id falls in the allocator's range.
func (a Allocator) Owns(id uint64) bool { return id >= a.base }

// Reserve records p and returns a fresh id. Ids are never reused.
func (a Allocator) Reserve(s store.Store, p Pending) (uint64, error) {
	id, ok, err := a.next.Load(s)
	if err != nil {
		return 0, err
	}
	if !ok || id < a.base {
		id = a.base
	}
	if err := a.pending.Save(s, strconv.FormatUint(id, 10), p); err != nil {
		return 0, err
	}
	if err := a.next.Save(s, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

// Consume removes and returns the record for id. An id that was never
// reserved, or was already consumed, is ErrUnknownReplyID.
func (a Allocator) Consume(s store.Store, id uint64) (Pending, error) {
	key := strconv.FormatUint(id, 10)
	p, ok, err := a.pending.Load(s, key)
	if err != nil {
		return Pending{}, err
	}
	if !ok {
		return Pending{}, UnknownID(id)
	}
	if err := a.pending.Remove(s, key); err != nil {
		return Pending{}, err
	}
	return p, nil
}

// Outstanding lists reserved ids not yet consumed in ascending order.
func (a Allocator) Outstanding(s store.Store) ([]uint64, error) {
	keys, err := a.pending.Keys(s, store.Ascending)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
