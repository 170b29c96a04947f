package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/edgerelay/internal/ack"
	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/packet"
	"github.com/danmuck/edgerelay/internal/registry"
	"github.com/rs/zerolog/log"
)

// TimeoutReason is the error reason a timed-out packet is handled with.
const TimeoutReason = "packet timed out"

func (c *Contract) ChannelOpen(_ host.Deps, _ host.Env, msg host.ChannelOpenMsg) (string, error) {
	if msg.Channel.Order != host.OrderUnordered {
		return "", fmt.Errorf("%w: %s", ErrInvalidOrder, msg.Channel.Order)
	}
	if msg.Channel.Version != c.cfg.Version {
		return "", fmt.Errorf("%w: %q, expected %q", ErrInvalidVersion, msg.Channel.Version, c.cfg.Version)
	}
	if msg.CounterpartyVersion != "" && msg.CounterpartyVersion != c.cfg.Version {
		return "", fmt.Errorf("%w: counterparty %q, expected %q", ErrInvalidVersion, msg.CounterpartyVersion, c.cfg.Version)
	}
	return c.cfg.Version, nil
}

func (c *Contract) ChannelConnect(deps host.Deps, _ host.Env, msg host.ChannelConnectMsg) (*host.Response, error) {
	id := msg.Channel.Endpoint.ChannelID
	if err := registry.Connect(deps.Storage, id); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "ibc_channel_connect").
		AddAttribute("channel_id", id), nil
}

func (c *Contract) ChannelClose(deps host.Deps, _ host.Env, msg host.ChannelCloseMsg) (*host.Response, error) {
	id := msg.Channel.Endpoint.ChannelID
	if err := registry.Disconnect(deps.Storage, id); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "ibc_channel_close").
		AddAttribute("channel", id), nil
}

// PacketReceive always produces a response. Any failure in the command is
// written back as an error ack.
func (c *Contract) PacketReceive(deps host.Deps, env host.Env, msg host.PacketReceiveMsg) *host.ReceiveResponse {
	resp, err := c.receive(deps, env, msg)
	if err != nil {
		log.Debug().Err(err).Str("contract", env.Contract).Str("packet", msg.Packet.Key()).Msg("receive failed")
		return host.NewReceiveResponse().
			AddAttribute("method", "ibc_packet_receive").
			AddAttribute("error", err.Error()).
			SetAck(ack.Fail(err.Error()))
	}
	return resp
}

func (c *Contract) receive(deps host.Deps, env host.Env, msg host.PacketReceiveMsg) (*host.ReceiveResponse, error) {
	cmd, err := packet.DecodeCommand(msg.Packet.Data)
	if err != nil {
		return nil, err
	}
	if cmd.Ping != nil {
		return host.NewReceiveResponse().
			AddAttribute("method", "execute_ping").
			SetAck(ack.SuccessData(packet.PingResponse{Result: "pong"})), nil
	}
	d := cmd.Dispatch
	if d.Channel != "" {
		return c.forward(deps, env, *d)
	}
	return dispatchTargetContract(d.TargetAddress, d.Msg), nil
}

// dispatchTargetContract leaves the ack unset; the reply to
// ReplyDispatchTarget produces it.
func dispatchTargetContract(target string, payload []byte) *host.ReceiveResponse {
	return host.NewReceiveResponse().
		AddAttribute("method", "dispatch_target_contract").
		AddSubMessage(host.ReplyAlwaysOn(host.WasmExecute{ContractAddr: target, Msg: payload}, ReplyDispatchTarget))
}

// forward relays a dispatch one more hop and acknowledges the hand-off.
func (c *Contract) forward(deps host.Deps, env host.Env, d packet.Dispatch) (*host.ReceiveResponse, error) {
	ok, err := registry.IsConnected(deps.Storage, d.Channel)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, d.Channel)
	}
	data, err := packet.EncodeDispatch(d.TargetAddress, d.Msg)
	if err != nil {
		return nil, err
	}
	return host.NewReceiveResponse().
		AddAttribute("method", "forward_dispatch").
		AddAttribute("channel", d.Channel).
		AddMessage(host.SendPacket{
			ChannelID: d.Channel,
			Data:      data,
			Timeout:   env.Block.Time.Add(c.cfg.PacketTimeout),
		}).
		SetAck(ack.SuccessData(packet.ForwardResponse{Forwarded: d.Channel})), nil
}

func (c *Contract) PacketAck(deps host.Deps, _ host.Env, msg host.PacketAckMsg) (*host.Response, error) {
	kind, err := commandKind(msg.OriginalPacket)
	if err != nil {
		return nil, err
	}
	channel := msg.OriginalPacket.Source.ChannelID
	a, err := ack.Decode(msg.Acknowledgement)
	if err != nil {
		return host.NewResponse().
			AddAttribute("action", "ack_"+string(kind)).
			AddAttribute("error", err.Error()), nil
	}
	return onAck(deps, channel, kind, a, "ack_"+string(kind))
}

// PacketTimeout handles an expired packet exactly like an error ack.
func (c *Contract) PacketTimeout(deps host.Deps, _ host.Env, msg host.PacketTimeoutMsg) (*host.Response, error) {
	kind, err := commandKind(msg.Packet)
	if err != nil {
		return nil, err
	}
	return onAck(deps, msg.Packet.Source.ChannelID, kind, ack.NewError(TimeoutReason), "timeout_"+string(kind))
}

func commandKind(p packet.Packet) (packet.Kind, error) {
	cmd, err := packet.DecodeCommand(p.Data)
	if err != nil {
		return "", fmt.Errorf("original packet %s: %w", p.Key(), err)
	}
	return cmd.Kind()
}

func onAck(deps host.Deps, channel string, kind packet.Kind, a ack.Ack, action string) (*host.Response, error) {
	resp := host.NewResponse().AddAttribute("action", action)
	if !a.IsSuccess() {
		return resp.AddAttribute("error", a.ErrReason()), nil
	}
	switch kind {
	case packet.KindPing:
		var pong packet.PingResponse
		if err := json.Unmarshal(a.Data(), &pong); err != nil {
			return resp.AddAttribute("error", fmt.Sprintf("invalid ping response: %v", err)), nil
		}
		if pong.Result != "pong" {
			return resp.AddAttribute("error", "Not pong, Result is: "+pong.Result), nil
		}
	case packet.KindDispatch:
		resp.AddAttribute("result", string(a.Data()))
	}
	if _, err := registry.Increment(deps.Storage, channel); err != nil {
		return nil, err
	}
	return resp, nil
}

// handleTargetContractReply turns the target's outcome into the ack for the
// packet that triggered it.
func handleTargetContractReply(_ host.Deps, _ host.Env, result host.SubMsgResult) (*host.Response, error) {
	resp := host.NewResponse().AddAttribute("action", "handle_target_contract_reply")
	if !result.IsOk() {
		return resp.SetData(ack.Fail(result.Err)), nil
	}
	if len(result.Ok.Data) == 0 {
		return resp.SetData(ack.Success()), nil
	}
	return resp.SetData(ack.NewResult(result.Ok.Data).Encode()), nil
}

func handleDirectDispatchReply(_ host.Deps, _ host.Env, result host.SubMsgResult) (*host.Response, error) {
	if !result.IsOk() {
		return nil, fmt.Errorf("direct dispatch failed: %s", result.Err)
	}
	return host.NewResponse().
		AddAttribute("action", "handle_direct_dispatch_reply").
		SetData(result.Ok.Data), nil
}
