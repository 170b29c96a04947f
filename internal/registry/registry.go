// Package registry owns the channel-keyed protocol state: connection presence
// flags and per-channel round-trip counters. The store is injected per call.
package registry

import (
	"fmt"
	"math"
	"strings"

	"github.com/danmuck/edgerelay/internal/store"
)

var (
	connections = store.NewMap[bool]("connections")
	counters    = store.NewMap[uint32]("counters")
)

// Connect records channel as connected. It is set once per successful handshake.
func Connect(s store.Store, channel string) error {
	channel = strings.TrimSpace(channel)
	return connections.Save(s, channel, true)
}

// Disconnect removes the presence flag for channel.
func Disconnect(s store.Store, channel string) error {
	return connections.Remove(s, strings.TrimSpace(channel))
}

func IsConnected(s store.Store, channel string) (bool, error) {
	return connections.Has(s, strings.TrimSpace(channel))
}

// Connections lists connected channel ids in ascending order.
func Connections(s store.Store) ([]string, error) {
	return connections.Keys(s, store.Ascending)
}

// Increment bumps the round-trip counter for channel and returns the new value.
func Increment(s store.Store, channel string) (uint32, error) {
	return counters.Update(s, strings.TrimSpace(channel), func(v uint32, _ bool) (uint32, error) {
		if v == math.MaxUint32 {
			return v, fmt.Errorf("registry: counter overflow for %q", channel)
		}
		return v + 1, nil
	})
}

// Counter returns the round-trip counter for channel, 0 when unknown.
func Counter(s store.Store, channel string) (uint32, error) {
	v, _, err := counters.Load(s, strings.TrimSpace(channel))
	return v, err
}
