package packet

import (
	"fmt"
	"time"
)

// DefaultTimeout is the relative timeout applied to every packet sent by a dispatcher.
const DefaultTimeout = 300 * time.Second

// Endpoint identifies one end of a channel on one chain.
type Endpoint struct {
	PortID    string `json:"port_id"`
	ChannelID string `json:"channel_id"`
}

func (e Endpoint) String() string {
	return e.PortID + "/" + e.ChannelID
}

// Packet is the transport record created at send time and consumed by the receiver.
type Packet struct {
	Sequence    uint64    `json:"sequence"`
	Source      Endpoint  `json:"source"`
	Destination Endpoint  `json:"destination"`
	Data        []byte    `json:"data"`
	Timeout     time.Time `json:"timeout"`
}

// TimedOut reports whether the destination clock has reached the packet deadline.
func (p Packet) TimedOut(now time.Time) bool {
	if p.Timeout.IsZero() {
		return false
	}
	return !now.Before(p.Timeout)
}

// Key is the stable identity of a packet on its source channel.
func (p Packet) Key() string {
	return fmt.Sprintf("%s/%s/%d", p.Source.PortID, p.Source.ChannelID, p.Sequence)
}

// TimeoutFrom returns the absolute deadline for a packet sent at now.
func TimeoutFrom(now time.Time) time.Time {
	return now.Add(DefaultTimeout)
}
