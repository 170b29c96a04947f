package relayer

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/edgerelay/internal/packet"
)

// PendingPacket tracks one packet the relayer has seen but not yet settled
// with an ack or a timeout.
type PendingPacket struct {
	Key           string
	Packet        packet.Packet
	Attempts      int
	QueuedAt      time.Time
	LastAttemptAt time.Time
	LastError     string
	// AwaitingAck is set once the destination stored a receipt without an ack.
	AwaitingAck bool
}

// Outbox stores pending packets by packet key.
type Outbox struct {
	mu    sync.RWMutex
	items map[string]PendingPacket
}

func NewOutbox() *Outbox {
	return &Outbox{
		items: make(map[string]PendingPacket),
	}
}

// Track adds p on first sight and leaves an existing entry untouched.
func (o *Outbox) Track(p packet.Packet, at time.Time) PendingPacket {
	key := p.Key()
	o.mu.Lock()
	defer o.mu.Unlock()
	if item, ok := o.items[key]; ok {
		return item
	}
	item := PendingPacket{Key: key, Packet: p, QueuedAt: at}
	o.items[key] = item
	return item
}

func (o *Outbox) MarkAttempt(key string, at time.Time, lastErr string) (PendingPacket, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	if !ok {
		return PendingPacket{}, false
	}
	item.Attempts++
	item.LastAttemptAt = at
	item.LastError = strings.TrimSpace(lastErr)
	o.items[key] = item
	return item, true
}

func (o *Outbox) MarkAwaitingAck(key string, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	if !ok {
		return
	}
	item.Attempts++
	item.LastAttemptAt = at
	item.LastError = ""
	item.AwaitingAck = true
	o.items[key] = item
}

func (o *Outbox) Remove(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, key)
}

func (o *Outbox) Get(key string) (PendingPacket, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[key]
	return item, ok
}

func (o *Outbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

func (o *Outbox) List() []PendingPacket {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingPacket, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}
