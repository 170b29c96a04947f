package relayer

import (
	"context"
	"time"

	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/packet"
)

// Peer is one chain as seen by a relayer. *host.Chain satisfies it in
// process; grpcrelay.Client satisfies it across processes.
type Peer interface {
	Status(ctx context.Context) (host.Status, error)
	ChannelOpenInit(ctx context.Context, req host.OpenInitRequest) (host.Channel, error)
	ChannelOpenTry(ctx context.Context, req host.OpenTryRequest) (host.Channel, error)
	ChannelOpenAck(ctx context.Context, req host.OpenAckRequest) (*host.Result, error)
	ChannelOpenConfirm(ctx context.Context, channelID string) (*host.Result, error)
	CloseChannel(ctx context.Context, channelID string) (*host.Result, error)
	PendingPackets(ctx context.Context, channelID string) ([]packet.Packet, error)
	ReceivePacket(ctx context.Context, p packet.Packet, relayer string) (host.Receipt, error)
	AcknowledgePacket(ctx context.Context, p packet.Packet, ack []byte, relayer string) (*host.Result, error)
	TimeoutPacket(ctx context.Context, p packet.Packet, destTime time.Time, relayer string) (*host.Result, error)
}

var _ Peer = (*host.Chain)(nil)

// PeerTime converts a peer status clock to a time.
func PeerTime(s host.Status) time.Time {
	return time.Unix(0, s.Time).UTC()
}
