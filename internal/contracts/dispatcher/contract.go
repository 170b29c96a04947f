// Package dispatcher is the contract that moves commands across channels.
//
// Ownership boundary:
// - execute: remote dispatch, direct (same-chain) dispatch and ping
// - packet receive: command execution with every failure mapped to an error ack
// - packet ack and timeout: counter bookkeeping on the origin side
// - channel hooks: handshake validation and the connection registry
// - replies: continuation ids 1 (receive) and 2 (direct dispatch)
package dispatcher

import (
	"encoding/json"
	"time"

	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/packet"
	"github.com/danmuck/edgerelay/internal/registry"
	"github.com/danmuck/edgerelay/internal/reply"
	"github.com/danmuck/edgerelay/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	// ReplyDispatchTarget resumes a receive after the target contract ran.
	ReplyDispatchTarget uint64 = 1
	// ReplyDirectDispatch resumes a same-chain dispatch.
	ReplyDirectDispatch uint64 = 2

	Version = "dispatch-1"
	Name    = "edgerelay:dispatcher"
)

type Config struct {
	Version       string
	PacketTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Version: Version, PacketTimeout: packet.DefaultTimeout}
}

type contractInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

var info = store.NewItem[contractInfo]("contract_info")

type Contract struct {
	cfg     Config
	replies *reply.Table
}

var (
	_ host.IBCContract = (*Contract)(nil)
	_ host.Replier     = (*Contract)(nil)
)

func New(cfg Config) *Contract {
	def := DefaultConfig()
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.PacketTimeout <= 0 {
		cfg.PacketTimeout = def.PacketTimeout
	}
	c := &Contract{cfg: cfg}
	c.replies = reply.NewTable().
		Register(ReplyDispatchTarget, handleTargetContractReply).
		Register(ReplyDirectDispatch, handleDirectDispatchReply)
	return c
}

func (c *Contract) Instantiate(deps host.Deps, env host.Env, _ host.MessageInfo, raw []byte) (*host.Response, error) {
	var msg InstantiateMsg
	if len(raw) > 0 {
		if err := decodeStrict(raw, &msg); err != nil {
			return nil, err
		}
	}
	if err := info.Save(deps.Storage, contractInfo{Name: Name, Version: c.cfg.Version}); err != nil {
		return nil, err
	}
	return host.NewResponse().AddAttribute("method", "instantiate"), nil
}

func (c *Contract) Execute(deps host.Deps, env host.Env, _ host.MessageInfo, raw []byte) (*host.Response, error) {
	msg, err := parseExecute(raw)
	if err != nil {
		return nil, err
	}
	switch {
	case msg.Dispatch != nil:
		d := msg.Dispatch
		if d.Channel == "" {
			return executeDispatchDirect(d.TargetAddress, d.Msg), nil
		}
		return c.executeDispatchRemote(env, *d)
	default:
		return c.executePing(env, msg.Ping.Channel), nil
	}
}

// executeDispatchRemote sends the dispatch envelope on the channel.
func (c *Contract) executeDispatchRemote(env host.Env, d DispatchMsg) (*host.Response, error) {
	data, err := packet.EncodeCommand(packet.Command{Dispatch: &packet.Dispatch{
		Msg:           d.Msg,
		TargetAddress: d.TargetAddress,
		Channel:       d.ForwardChannel,
	}})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("contract", env.Contract).Str("channel", d.Channel).
		Str("target", d.TargetAddress).Msg("dispatch remote")
	return host.NewResponse().
		AddAttribute("method", "execute_dispatch_remote").
		AddAttribute("channel", d.Channel).
		AddMessage(host.SendPacket{
			ChannelID: d.Channel,
			Data:      data,
			Timeout:   env.Block.Time.Add(c.cfg.PacketTimeout),
		}), nil
}

func executeDispatchDirect(target string, payload []byte) *host.Response {
	return host.NewResponse().
		AddAttribute("method", "execute_dispatch_direct").
		AddAttribute("target_address", target).
		AddSubMessage(host.ReplyOnSuccess(host.WasmExecute{ContractAddr: target, Msg: payload}, ReplyDirectDispatch))
}

func (c *Contract) executePing(env host.Env, channel string) *host.Response {
	return host.NewResponse().
		AddAttribute("method", "execute_ping").
		AddAttribute("channel", channel).
		AddMessage(host.SendPacket{
			ChannelID: channel,
			Data:      packet.EncodePing(),
			Timeout:   env.Block.Time.Add(c.cfg.PacketTimeout),
		})
}

func (c *Contract) Query(deps host.Deps, _ host.Env, raw []byte) ([]byte, error) {
	msg, err := parseQuery(raw)
	if err != nil {
		return nil, err
	}
	if msg.GetConnections != nil {
		conns, err := registry.Connections(deps.Storage)
		if err != nil {
			return nil, err
		}
		return json.Marshal(GetConnectionsResponse{Connections: conns})
	}
	n, err := registry.Counter(deps.Storage, msg.GetCounter.Channel)
	if err != nil {
		return nil, err
	}
	return json.Marshal(GetCounterResponse{Count: n})
}

func (c *Contract) Reply(deps host.Deps, env host.Env, r host.Reply) (*host.Response, error) {
	return c.replies.Route(deps, env, r)
}
