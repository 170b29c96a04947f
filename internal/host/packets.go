package host

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/danmuck/edgerelay/internal/ack"
	"github.com/danmuck/edgerelay/internal/observability"
	"github.com/danmuck/edgerelay/internal/packet"
	"github.com/danmuck/edgerelay/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	sendSequences = store.NewMap[uint64]("ibc/next_sequence_send")
	commitments   = store.NewMap[packet.Packet]("ibc/commitments")
	receipts      = store.NewMap[Receipt]("ibc/receipts")
)

// seqKey orders packets of one channel by sequence under plain byte ordering.
func seqKey(channelID string, seq uint64) string {
	return fmt.Sprintf("%s/%020d", channelID, seq)
}

func (c *Chain) sendPacket(x *call, st store.Store, sender string, m SendPacket) error {
	ch, err := loadChannel(st, m.ChannelID)
	if err != nil {
		return err
	}
	if ch.State != ChannelOpen {
		return fmt.Errorf("%w: %s is %s", ErrChannelState, m.ChannelID, ch.State)
	}
	if ch.Endpoint.PortID != c.PortID(sender) {
		return fmt.Errorf("%w: %s does not own %s", ErrChannelOwner, sender, m.ChannelID)
	}
	seq, err := sendSequences.Update(st, m.ChannelID, func(v uint64, _ bool) (uint64, error) {
		return v + 1, nil
	})
	if err != nil {
		return err
	}
	p := packet.Packet{
		Sequence:    seq,
		Source:      ch.Endpoint,
		Destination: ch.Counterparty,
		Data:        bytes.Clone(m.Data),
		Timeout:     m.Timeout,
	}
	if err := commitments.Save(st, seqKey(m.ChannelID, seq), p); err != nil {
		return err
	}
	x.emit(EventSendPacket, sender, []Attribute{
		{Key: AttrPacketSequence, Value: strconv.FormatUint(seq, 10)},
		{Key: AttrPacketSrcChannel, Value: m.ChannelID},
		{Key: AttrPacketDstChannel, Value: ch.Counterparty.ChannelID},
	})
	return nil
}

// PendingPackets lists committed packets that have been neither acknowledged
// nor timed out. An empty channelID lists every channel.
func (c *Chain) PendingPackets(ctx context.Context, channelID string) ([]packet.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, err := commitments.Keys(c.root, store.Ascending)
	if err != nil {
		return nil, err
	}
	out := make([]packet.Packet, 0, len(keys))
	for _, k := range keys {
		p, _, err := commitments.Load(c.root, k)
		if err != nil {
			return nil, err
		}
		if channelID != "" && p.Source.ChannelID != channelID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ReceivePacket delivers p to the contract owning its destination port and
// records the acknowledgement. Delivering the same packet twice returns the
// first receipt without re-executing.
func (c *Chain) ReceivePacket(ctx context.Context, p packet.Packet, relayer string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := loadChannel(c.root, p.Destination.ChannelID)
	if err != nil {
		return Receipt{}, err
	}
	if ch.State != ChannelOpen {
		return Receipt{}, fmt.Errorf("%w: %s is %s", ErrChannelState, ch.Endpoint.ChannelID, ch.State)
	}
	if ch.Endpoint.PortID != p.Destination.PortID || ch.Counterparty != p.Source {
		return Receipt{}, fmt.Errorf("%w: packet %s", ErrCounterpartyMismatch, p.Key())
	}
	key := seqKey(ch.Endpoint.ChannelID, p.Sequence)
	if prior, ok, err := receipts.Load(c.root, key); err != nil {
		return Receipt{}, err
	} else if ok {
		log.Debug().Str("chain", c.cfg.ChainID).Str("packet", p.Key()).Msg("duplicate receive")
		return prior, nil
	}
	if p.TimedOut(c.block.Time) {
		return Receipt{}, fmt.Errorf("%w: %s", ErrPacketTimedOut, p.Key())
	}
	addr, contract, err := c.ibcContract(ch.Endpoint.PortID)
	if err != nil {
		return Receipt{}, err
	}

	cache := store.NewCache(c.root)
	x := &call{chain: c}
	ackBytes, err := c.deliver(x, cache, addr, contract, PacketReceiveMsg{Packet: p, Relayer: relayer})
	if err != nil {
		cache.Discard()
		x.events = nil
		ackBytes = ack.Fail(err.Error())
		log.Warn().Err(err).Str("chain", c.cfg.ChainID).Str("packet", p.Key()).Msg("receive aborted")
	}

	receipt := Receipt{Sequence: p.Sequence, Ack: ackBytes, Written: ackBytes != nil}
	if err := receipts.Save(cache, key, receipt); err != nil {
		return Receipt{}, err
	}
	attrs := []Attribute{
		{Key: AttrPacketSequence, Value: strconv.FormatUint(p.Sequence, 10)},
		{Key: AttrPacketDstChannel, Value: ch.Endpoint.ChannelID},
	}
	if receipt.Written {
		attrs = append(attrs, Attribute{Key: AttrPacketAck, Value: string(ackBytes)})
	}
	x.emit(EventWriteAcknowledgement, addr, attrs)
	if err := cache.Commit(); err != nil {
		return Receipt{}, fmt.Errorf("host: commit: %w", err)
	}
	c.observe(x.events)
	observability.RecordPacketReceived(c.cfg.ChainID, ch.Endpoint.ChannelID, ackOutcome(receipt))
	return receipt, nil
}

// deliver runs the receive entry point and its sub-messages. A contract panic
// is reported as an error so the caller can revert it like any other abort.
func (c *Chain) deliver(x *call, st store.Store, addr string, contract IBCContract, msg PacketReceiveMsg) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("contract panic: %v", r)
		}
	}()
	resp := contract.PacketReceive(c.deps(st, addr), c.env(addr), msg)
	if resp == nil {
		resp = NewReceiveResponse()
	}
	data, err := x.finish(st, EventPacketReceive, addr, &resp.Response)
	if err != nil {
		return nil, err
	}
	if resp.Ack != nil {
		return resp.Ack, nil
	}
	return data, nil
}

// AcknowledgePacket hands ackBytes to the sender of p and clears its commitment.
func (c *Chain) AcknowledgePacket(ctx context.Context, p packet.Packet, ackBytes []byte, relayer string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key, original, err := c.commitment(p)
	if err != nil {
		return nil, err
	}
	addr, contract, err := c.ibcContract(original.Source.PortID)
	if err != nil {
		return nil, err
	}
	res, err := c.run(func(x *call, st store.Store) ([]byte, error) {
		if err := commitments.Remove(st, key); err != nil {
			return nil, err
		}
		resp, err := contract.PacketAck(c.deps(st, addr), c.env(addr), PacketAckMsg{
			OriginalPacket:  original,
			Acknowledgement: ackBytes,
			Relayer:         relayer,
		})
		if err != nil {
			return nil, err
		}
		return x.finish(st, EventPacketAck, addr, resp)
	})
	if err != nil {
		return nil, err
	}
	outcome := "error"
	if a, err := ack.Decode(ackBytes); err == nil && a.IsSuccess() {
		outcome = "success"
	}
	observability.RecordAck(c.cfg.ChainID, original.Source.ChannelID, outcome)
	return res, nil
}

// TimeoutPacket notifies the sender that p expired. destTime is the
// counterparty clock observed by the relayer and must be past the deadline.
func (c *Chain) TimeoutPacket(ctx context.Context, p packet.Packet, destTime time.Time, relayer string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key, original, err := c.commitment(p)
	if err != nil {
		return nil, err
	}
	if !original.TimedOut(destTime) {
		return nil, fmt.Errorf("%w: %s", ErrPacketNotTimedOut, original.Key())
	}
	addr, contract, err := c.ibcContract(original.Source.PortID)
	if err != nil {
		return nil, err
	}
	res, err := c.run(func(x *call, st store.Store) ([]byte, error) {
		if err := commitments.Remove(st, key); err != nil {
			return nil, err
		}
		resp, err := contract.PacketTimeout(c.deps(st, addr), c.env(addr), PacketTimeoutMsg{Packet: original, Relayer: relayer})
		if err != nil {
			return nil, err
		}
		return x.finish(st, EventPacketTimeout, addr, resp)
	})
	if err != nil {
		return nil, err
	}
	observability.RecordTimeout(c.cfg.ChainID, original.Source.ChannelID)
	return res, nil
}

func (c *Chain) commitment(p packet.Packet) (string, packet.Packet, error) {
	key := seqKey(p.Source.ChannelID, p.Sequence)
	original, ok, err := commitments.Load(c.root, key)
	if err != nil {
		return "", packet.Packet{}, err
	}
	if !ok {
		return "", packet.Packet{}, fmt.Errorf("%w: %s", ErrPacketNotFound, p.Key())
	}
	if original.Source != p.Source || !bytes.Equal(original.Data, p.Data) {
		return "", packet.Packet{}, fmt.Errorf("%w: %s", ErrPacketMismatch, p.Key())
	}
	return key, original, nil
}

func ackOutcome(r Receipt) string {
	if !r.Written {
		return "pending"
	}
	if a, err := ack.Decode(r.Ack); err == nil && a.IsSuccess() {
		return "success"
	}
	return "error"
}
