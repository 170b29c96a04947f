package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/observability"
	"github.com/danmuck/edgerelay/internal/packet"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrHandshake   = errors.New("relayer: channel handshake failed")
	ErrInvalidLink = errors.New("relayer: invalid link")
)

// DefaultName is the relayer identity passed to chains when none is set.
const DefaultName = "relayer"

// maxRounds bounds RelayAll when deliveries keep producing new packets.
const maxRounds = 16

// End is one side of a link: a peer and the channel it owns.
type End struct {
	Peer    Peer
	Port    string
	Channel string
}

func (e End) Endpoint() packet.Endpoint {
	return packet.Endpoint{PortID: e.Port, ChannelID: e.Channel}
}

// Link relays between two connected channel ends.
type Link struct {
	ID     string
	Name   string
	A      End
	B      End
	outbox *Outbox
	now    func() time.Time
}

// ConnectOptions configures a handshake.
type ConnectOptions struct {
	Version string
	Order   host.Order
	Name    string
}

// Connect runs the four-step handshake with a initiating and returns a link
// over the resulting channel pair.
func Connect(ctx context.Context, a Peer, portA string, b Peer, portB string, opts ConnectOptions) (*Link, error) {
	if opts.Order == "" {
		opts.Order = host.OrderUnordered
	}
	chA, err := a.ChannelOpenInit(ctx, host.OpenInitRequest{
		PortID:           portA,
		CounterpartyPort: portB,
		Version:          opts.Version,
		Order:            opts.Order,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init on %s: %w", ErrHandshake, portA, err)
	}
	chB, err := b.ChannelOpenTry(ctx, host.OpenTryRequest{
		PortID:              portB,
		Counterparty:        chA.Endpoint,
		Version:             opts.Version,
		CounterpartyVersion: chA.Version,
		Order:               opts.Order,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: try on %s: %w", ErrHandshake, portB, err)
	}
	if _, err := a.ChannelOpenAck(ctx, host.OpenAckRequest{
		ChannelID:           chA.Endpoint.ChannelID,
		Counterparty:        chB.Endpoint,
		CounterpartyVersion: chB.Version,
	}); err != nil {
		return nil, fmt.Errorf("%w: ack on %s: %w", ErrHandshake, chA.Endpoint, err)
	}
	if _, err := b.ChannelOpenConfirm(ctx, chB.Endpoint.ChannelID); err != nil {
		return nil, fmt.Errorf("%w: confirm on %s: %w", ErrHandshake, chB.Endpoint, err)
	}
	link, err := NewLink(
		End{Peer: a, Port: portA, Channel: chA.Endpoint.ChannelID},
		End{Peer: b, Port: portB, Channel: chB.Endpoint.ChannelID},
		opts.Name,
	)
	if err != nil {
		return nil, err
	}
	log.Info().Str("link", link.ID).Str("a", chA.Endpoint.String()).Str("b", chB.Endpoint.String()).
		Str("version", chB.Version).Msg("link connected")
	return link, nil
}

// NewLink relays over an existing channel pair.
func NewLink(a, b End, name string) (*Link, error) {
	if a.Peer == nil || b.Peer == nil {
		return nil, fmt.Errorf("%w: missing peer", ErrInvalidLink)
	}
	if a.Channel == "" || b.Channel == "" {
		return nil, fmt.Errorf("%w: missing channel", ErrInvalidLink)
	}
	if name == "" {
		name = DefaultName
	}
	return &Link{
		ID:     uuid.NewString(),
		Name:   name,
		A:      a,
		B:      b,
		outbox: NewOutbox(),
		now:    time.Now,
	}, nil
}

func (l *Link) String() string {
	return l.A.Endpoint().String() + "<->" + l.B.Endpoint().String()
}

// Outbox exposes packets seen but not yet settled.
func (l *Link) Outbox() *Outbox { return l.outbox }

// AckInfo is one acknowledgement handed back to the sender.
type AckInfo struct {
	Packet packet.Packet
	Ack    []byte
	Result *host.Result
}

// TimeoutInfo is one packet the sender was told expired.
type TimeoutInfo struct {
	Packet packet.Packet
	Result *host.Result
}

// RelayInfo summarizes one RelayAll call.
type RelayInfo struct {
	Received int
	Acks     []AckInfo
	Timeouts []TimeoutInfo
	// Pending counts packets still in the outbox afterwards.
	Pending int
	// Failed counts packets whose last attempt returned an error.
	Failed int
}

// RelayAll moves everything that can move in both directions until a round
// makes no progress. Per-packet failures stay in the outbox and are retried on
// the next call. Only peer-level failures are returned.
func (l *Link) RelayAll(ctx context.Context) (RelayInfo, error) {
	start := time.Now()
	defer func() {
		observability.RecordRelayRound(l.String(), time.Since(start))
	}()

	var info RelayInfo
	for round := 0; round < maxRounds; round++ {
		moved := 0
		for _, dir := range [2][2]End{{l.A, l.B}, {l.B, l.A}} {
			n, err := l.relay(ctx, dir[0], dir[1], &info)
			if err != nil {
				return info, err
			}
			moved += n
		}
		if moved == 0 {
			break
		}
	}
	for _, item := range l.outbox.List() {
		info.Pending++
		if item.LastError != "" {
			info.Failed++
		}
	}
	log.Debug().Str("link", l.ID).Int("received", info.Received).Int("acks", len(info.Acks)).
		Int("timeouts", len(info.Timeouts)).Int("pending", info.Pending).Msg("relay round")
	return info, nil
}

// relay settles every packet pending on src's channel and reports how many
// were settled.
func (l *Link) relay(ctx context.Context, src, dst End, info *RelayInfo) (int, error) {
	status, err := dst.Peer.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("relayer: status of %s: %w", dst.Endpoint(), err)
	}
	destTime := PeerTime(status)
	pending, err := src.Peer.PendingPackets(ctx, src.Channel)
	if err != nil {
		return 0, fmt.Errorf("relayer: pending on %s: %w", src.Endpoint(), err)
	}
	l.prune(src, pending)

	moved := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		now := l.now()
		l.outbox.Track(p, now)
		key := p.Key()

		if p.TimedOut(destTime) {
			res, err := src.Peer.TimeoutPacket(ctx, p, destTime, l.Name)
			if err != nil {
				l.fail(key, now, "timeout", err)
				continue
			}
			l.outbox.Remove(key)
			info.Timeouts = append(info.Timeouts, TimeoutInfo{Packet: p, Result: res})
			moved++
			continue
		}

		receipt, err := dst.Peer.ReceivePacket(ctx, p, l.Name)
		if err != nil {
			l.fail(key, now, "receive", err)
			continue
		}
		info.Received++
		if !receipt.Written {
			l.outbox.MarkAwaitingAck(key, now)
			continue
		}
		res, err := src.Peer.AcknowledgePacket(ctx, p, receipt.Ack, l.Name)
		if err != nil {
			l.fail(key, now, "acknowledge", err)
			continue
		}
		l.outbox.Remove(key)
		info.Acks = append(info.Acks, AckInfo{Packet: p, Ack: receipt.Ack, Result: res})
		moved++
	}
	return moved, nil
}

// prune drops outbox entries for src that the chain no longer lists, which
// happens when another relayer settled them.
func (l *Link) prune(src End, pending []packet.Packet) {
	live := make(map[string]struct{}, len(pending))
	for _, p := range pending {
		live[p.Key()] = struct{}{}
	}
	for _, item := range l.outbox.List() {
		if item.Packet.Source != src.Endpoint() {
			continue
		}
		if _, ok := live[item.Key]; !ok {
			l.outbox.Remove(item.Key)
		}
	}
}

func (l *Link) fail(key string, at time.Time, step string, err error) {
	item, _ := l.outbox.MarkAttempt(key, at, err.Error())
	log.Warn().Err(err).Str("link", l.ID).Str("packet", key).Str("step", step).
		Int("attempts", item.Attempts).Msg("relay attempt failed")
}

// Run relays every interval until ctx ends. Rounds that fail on a peer wait
// out a growing backoff instead.
func (l *Link) Run(ctx context.Context, interval time.Duration, backoff BackoffConfig) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		wait := interval
		if _, err := l.RelayAll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			wait = NextBackoffDelay(backoff, attempt, rng)
			log.Warn().Err(err).Str("link", l.ID).Int("attempt", attempt).Dur("retry_in", wait).Msg("relay round failed")
		} else {
			attempt = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
