package host

import (
	"context"
	"fmt"
	"strconv"

	"github.com/danmuck/edgerelay/internal/packet"
	"github.com/danmuck/edgerelay/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	channels    = store.NewMap[Channel]("ibc/channels")
	nextChannel = store.NewItem[uint64]("ibc/next_channel")
)

func allocateChannelID(st store.Store) (string, error) {
	n, _, err := nextChannel.Load(st)
	if err != nil {
		return "", err
	}
	if err := nextChannel.Save(st, n+1); err != nil {
		return "", err
	}
	return "channel-" + strconv.FormatUint(n, 10), nil
}

func loadChannel(st store.Store, id string) (Channel, error) {
	ch, ok, err := channels.Load(st, id)
	if err != nil {
		return Channel{}, err
	}
	if !ok {
		return Channel{}, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return ch, nil
}

// ChannelOpenInit creates a channel end in INIT after the port owner accepts it.
func (c *Chain) ChannelOpenInit(ctx context.Context, req OpenInitRequest) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return Channel{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	addr, contract, err := c.ibcContract(req.PortID)
	if err != nil {
		return Channel{}, err
	}
	var ch Channel
	_, err = c.run(func(x *call, st store.Store) ([]byte, error) {
		id, err := allocateChannelID(st)
		if err != nil {
			return nil, err
		}
		ch = Channel{
			Endpoint:     packet.Endpoint{PortID: req.PortID, ChannelID: id},
			Counterparty: packet.Endpoint{PortID: req.CounterpartyPort},
			Order:        req.Order,
			Version:      req.Version,
			State:        ChannelInit,
		}
		version, err := contract.ChannelOpen(c.deps(st, addr), c.env(addr), ChannelOpenMsg{Channel: ch})
		if err != nil {
			return nil, err
		}
		if version != "" {
			ch.Version = version
		}
		return nil, channels.Save(st, id, ch)
	})
	if err != nil {
		return Channel{}, err
	}
	log.Debug().Str("chain", c.cfg.ChainID).Str("channel", ch.Endpoint.String()).Msg("channel open init")
	return ch, nil
}

// ChannelOpenTry creates the counterparty end in TRYOPEN.
func (c *Chain) ChannelOpenTry(ctx context.Context, req OpenTryRequest) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return Channel{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	addr, contract, err := c.ibcContract(req.PortID)
	if err != nil {
		return Channel{}, err
	}
	var ch Channel
	_, err = c.run(func(x *call, st store.Store) ([]byte, error) {
		id, err := allocateChannelID(st)
		if err != nil {
			return nil, err
		}
		ch = Channel{
			Endpoint:     packet.Endpoint{PortID: req.PortID, ChannelID: id},
			Counterparty: req.Counterparty,
			Order:        req.Order,
			Version:      req.Version,
			State:        ChannelTryOpen,
		}
		version, err := contract.ChannelOpen(c.deps(st, addr), c.env(addr), ChannelOpenMsg{
			Channel:             ch,
			CounterpartyVersion: req.CounterpartyVersion,
		})
		if err != nil {
			return nil, err
		}
		if version != "" {
			ch.Version = version
		}
		return nil, channels.Save(st, id, ch)
	})
	if err != nil {
		return Channel{}, err
	}
	log.Debug().Str("chain", c.cfg.ChainID).Str("channel", ch.Endpoint.String()).Msg("channel open try")
	return ch, nil
}

// ChannelOpenAck opens the initiating end and notifies its owner.
func (c *Chain) ChannelOpenAck(ctx context.Context, req OpenAckRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(req.ChannelID, ChannelInit, &req.Counterparty, req.CounterpartyVersion)
}

// ChannelOpenConfirm opens the counterparty end and notifies its owner.
func (c *Chain) ChannelOpenConfirm(ctx context.Context, channelID string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(channelID, ChannelTryOpen, nil, "")
}

func (c *Chain) connect(channelID string, from ChannelState, counterparty *packet.Endpoint, counterpartyVersion string) (*Result, error) {
	ch, err := loadChannel(c.root, channelID)
	if err != nil {
		return nil, err
	}
	if ch.State != from {
		return nil, fmt.Errorf("%w: %s is %s", ErrChannelState, channelID, ch.State)
	}
	if counterparty != nil {
		if counterparty.PortID != ch.Counterparty.PortID {
			return nil, fmt.Errorf("%w: port %s, expected %s", ErrCounterpartyMismatch, counterparty.PortID, ch.Counterparty.PortID)
		}
		ch.Counterparty = *counterparty
	}
	if counterpartyVersion == "" {
		counterpartyVersion = ch.Version
	}
	addr, contract, err := c.ibcContract(ch.Endpoint.PortID)
	if err != nil {
		return nil, err
	}
	ch.State = ChannelOpen

	res, err := c.run(func(x *call, st store.Store) ([]byte, error) {
		if err := channels.Save(st, channelID, ch); err != nil {
			return nil, err
		}
		resp, err := contract.ChannelConnect(c.deps(st, addr), c.env(addr), ChannelConnectMsg{
			Channel:             ch,
			CounterpartyVersion: counterpartyVersion,
		})
		if err != nil {
			return nil, err
		}
		return x.finish(st, EventChannelConnect, addr, resp)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("chain", c.cfg.ChainID).Str("channel", ch.Endpoint.String()).
		Str("counterparty", ch.Counterparty.String()).Msg("channel open")
	return res, nil
}

// CloseChannel closes an open channel end and notifies its owner.
func (c *Chain) CloseChannel(ctx context.Context, channelID string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := loadChannel(c.root, channelID)
	if err != nil {
		return nil, err
	}
	if ch.State != ChannelOpen {
		return nil, fmt.Errorf("%w: %s is %s", ErrChannelState, channelID, ch.State)
	}
	addr, contract, err := c.ibcContract(ch.Endpoint.PortID)
	if err != nil {
		return nil, err
	}
	ch.State = ChannelClosed

	res, err := c.run(func(x *call, st store.Store) ([]byte, error) {
		if err := channels.Save(st, channelID, ch); err != nil {
			return nil, err
		}
		resp, err := contract.ChannelClose(c.deps(st, addr), c.env(addr), ChannelCloseMsg{Channel: ch})
		if err != nil {
			return nil, err
		}
		return x.finish(st, EventChannelClose, addr, resp)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("chain", c.cfg.ChainID).Str("channel", ch.Endpoint.String()).Msg("channel closed")
	return res, nil
}

func (c *Chain) Channel(ctx context.Context, channelID string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return Channel{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return loadChannel(c.root, channelID)
}

// Channels lists every channel end in id order.
func (c *Chain) Channels(ctx context.Context) ([]Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, err := channels.Keys(c.root, store.Ascending)
	if err != nil {
		return nil, err
	}
	out := make([]Channel, 0, len(ids))
	for _, id := range ids {
		ch, err := loadChannel(c.root, id)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}
