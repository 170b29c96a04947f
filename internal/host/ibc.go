package host

import (
	"github.com/danmuck/edgerelay/internal/packet"
)

type Order string

const (
	OrderUnordered Order = "ORDER_UNORDERED"
	OrderOrdered   Order = "ORDER_ORDERED"
)

type ChannelState string

const (
	ChannelInit    ChannelState = "INIT"
	ChannelTryOpen ChannelState = "TRYOPEN"
	ChannelOpen    ChannelState = "OPEN"
	ChannelClosed  ChannelState = "CLOSED"
)

// Channel is one chain's view of a channel end.
type Channel struct {
	Endpoint     packet.Endpoint `json:"endpoint"`
	Counterparty packet.Endpoint `json:"counterparty"`
	Order        Order           `json:"order"`
	Version      string          `json:"version"`
	State        ChannelState    `json:"state"`
}

// ChannelOpenMsg is delivered on init (CounterpartyVersion empty) and on try.
type ChannelOpenMsg struct {
	Channel             Channel
	CounterpartyVersion string
}

type ChannelConnectMsg struct {
	Channel             Channel
	CounterpartyVersion string
}

type ChannelCloseMsg struct {
	Channel Channel
}

type PacketReceiveMsg struct {
	Packet  packet.Packet
	Relayer string
}

type PacketAckMsg struct {
	OriginalPacket  packet.Packet
	Acknowledgement []byte
	Relayer         string
}

type PacketTimeoutMsg struct {
	Packet  packet.Packet
	Relayer string
}

// Receipt is the receiver-side record of a delivered packet. Written is false
// while the acknowledgement is still pending.
type Receipt struct {
	Sequence uint64 `json:"sequence"`
	Ack      []byte `json:"ack,omitempty"`
	Written  bool   `json:"written"`
}

// Status is the chain clock as seen by relayers.
type Status struct {
	ChainID string `json:"chain_id"`
	Height  uint64 `json:"height"`
	Time    int64  `json:"time_unix_nano"`
}

// OpenInitRequest starts a handshake on the initiating chain.
type OpenInitRequest struct {
	PortID           string `json:"port_id"`
	CounterpartyPort string `json:"counterparty_port"`
	Version          string `json:"version"`
	Order            Order  `json:"order"`
}

// OpenTryRequest answers an init on the counterparty chain.
type OpenTryRequest struct {
	PortID              string          `json:"port_id"`
	Counterparty        packet.Endpoint `json:"counterparty"`
	Version             string          `json:"version"`
	CounterpartyVersion string          `json:"counterparty_version"`
	Order               Order           `json:"order"`
}

// OpenAckRequest completes the handshake on the initiating chain.
type OpenAckRequest struct {
	ChannelID           string          `json:"channel_id"`
	Counterparty        packet.Endpoint `json:"counterparty"`
	CounterpartyVersion string          `json:"counterparty_version"`
}
