package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/danmuck/edgerelay/internal/ack"
	"github.com/danmuck/edgerelay/internal/packet"
	"github.com/danmuck/edgerelay/internal/store"
)

const probeVersion = "probe-1"

// probe is a contract whose behavior is driven entirely by its messages.
type probe struct{}

type probeMsg struct {
	Set  *probeKV   `json:"set,omitempty"`
	Fail string     `json:"fail,omitempty"`
	Call *probeCall `json:"call,omitempty"`
	Send *probeSend `json:"send,omitempty"`
}

type probeKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type probeCall struct {
	Target  string          `json:"target"`
	Msg     json.RawMessage `json:"msg"`
	ReplyOn ReplyOn         `json:"reply_on"`
	ID      uint64          `json:"id"`
	Data    string          `json:"data"`
}

type probeSend struct {
	Channel string        `json:"channel"`
	Data    string        `json:"data"`
	Timeout time.Duration `json:"timeout"`
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func (probe) Instantiate(deps Deps, env Env, info MessageInfo, msg []byte) (*Response, error) {
	if err := deps.Storage.Set([]byte("creator"), []byte(info.Sender)); err != nil {
		return nil, err
	}
	return NewResponse().AddAttribute("method", "instantiate"), nil
}

func (probe) Execute(deps Deps, env Env, info MessageInfo, raw []byte) (*Response, error) {
	var msg probeMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	switch {
	case msg.Set != nil:
		if err := deps.Storage.Set([]byte(msg.Set.Key), []byte(msg.Set.Value)); err != nil {
			return nil, err
		}
		return NewResponse().AddAttribute("set", msg.Set.Key).SetData([]byte(msg.Set.Value)), nil
	case msg.Fail != "":
		_ = deps.Storage.Set([]byte("failed"), []byte("1"))
		return nil, errors.New(msg.Fail)
	case msg.Call != nil:
		if err := deps.Storage.Set([]byte("called"), []byte("yes")); err != nil {
			return nil, err
		}
		sub := SubMsg{
			ID:      msg.Call.ID,
			Msg:     WasmExecute{ContractAddr: msg.Call.Target, Msg: msg.Call.Msg},
			ReplyOn: msg.Call.ReplyOn,
		}
		resp := NewResponse().AddSubMessage(sub)
		if msg.Call.Data != "" {
			resp.SetData([]byte(msg.Call.Data))
		}
		return resp, nil
	case msg.Send != nil:
		return NewResponse().AddMessage(SendPacket{
			ChannelID: msg.Send.Channel,
			Data:      []byte(msg.Send.Data),
			Timeout:   env.Block.Time.Add(msg.Send.Timeout),
		}), nil
	}
	return nil, fmt.Errorf("unknown probe message")
}

func (probe) Query(deps Deps, env Env, msg []byte) ([]byte, error) {
	return deps.Storage.Get(msg)
}

func (probe) Reply(deps Deps, env Env, r Reply) (*Response, error) {
	if r.ID == 99 {
		return nil, errors.New("reply rejected")
	}
	value := "err:" + r.Result.Err
	if r.Result.IsOk() {
		value = "ok:" + string(r.Result.Ok.Data)
	}
	key := "reply/" + strconv.FormatUint(r.ID, 10)
	if err := deps.Storage.Set([]byte(key), []byte(value)); err != nil {
		return nil, err
	}
	return NewResponse().SetData([]byte("reply:" + value)), nil
}

func (probe) ChannelOpen(deps Deps, env Env, msg ChannelOpenMsg) (string, error) {
	if msg.Channel.Order != OrderUnordered {
		return "", errors.New("only unordered channels")
	}
	if msg.Channel.Version != probeVersion {
		return "", fmt.Errorf("bad version %q", msg.Channel.Version)
	}
	return "", nil
}

func (probe) ChannelConnect(deps Deps, env Env, msg ChannelConnectMsg) (*Response, error) {
	id := msg.Channel.Endpoint.ChannelID
	if err := deps.Storage.Set([]byte("connected/"+id), []byte("1")); err != nil {
		return nil, err
	}
	return NewResponse().AddAttribute("connected", id), nil
}

func (probe) ChannelClose(deps Deps, env Env, msg ChannelCloseMsg) (*Response, error) {
	id := msg.Channel.Endpoint.ChannelID
	if err := deps.Storage.Delete([]byte("connected/" + id)); err != nil {
		return nil, err
	}
	return NewResponse().AddAttribute("closed", id), nil
}

func (probe) PacketReceive(deps Deps, env Env, msg PacketReceiveMsg) *ReceiveResponse {
	_ = deps.Storage.Set([]byte("recv"), msg.Packet.Data)
	resp := NewReceiveResponse()
	switch string(msg.Packet.Data) {
	case "ok":
		resp.SetAck(ack.Success())
	case "fail":
		resp.SetAck(ack.Fail("nope"))
	case "panic":
		panic("boom")
	case "abort":
		resp.AddMessage(WasmExecute{ContractAddr: env.Contract, Msg: []byte(`{"fail":"downstream failed"}`)})
	case "data":
		resp.Response.SetData([]byte("from-data"))
	}
	return resp
}

func (probe) PacketAck(deps Deps, env Env, msg PacketAckMsg) (*Response, error) {
	key := "acked/" + strconv.FormatUint(msg.OriginalPacket.Sequence, 10)
	if err := deps.Storage.Set([]byte(key), msg.Acknowledgement); err != nil {
		return nil, err
	}
	return NewResponse().AddAttribute("acked", key), nil
}

func (probe) PacketTimeout(deps Deps, env Env, msg PacketTimeoutMsg) (*Response, error) {
	key := "timeout/" + strconv.FormatUint(msg.Packet.Sequence, 10)
	return NewResponse(), deps.Storage.Set([]byte(key), []byte("1"))
}

// plain has no reply or ibc entry points.
type plain struct{}

func (plain) Instantiate(Deps, Env, MessageInfo, []byte) (*Response, error) { return NewResponse(), nil }
func (plain) Execute(deps Deps, env Env, info MessageInfo, msg []byte) (*Response, error) {
	resp := NewResponse().SetData([]byte("plain"))
	if string(msg) == "call-back" {
		set := []byte(`{"set":{"key":"from-plain","value":"1"}}`)
		resp.AddSubMessage(ReplyOnSuccess(WasmExecute{ContractAddr: "alpha", Msg: set}, 1))
	}
	return resp, nil
}
func (plain) Query(Deps, Env, []byte) ([]byte, error) { return nil, nil }

func newTestChain(t *testing.T, id string) *Chain {
	t.Helper()
	c, err := NewChain(DefaultConfig(id), store.NewMemStore())
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	return c
}

func deploy(t *testing.T, c *Chain, addr string, contract Contract) {
	t.Helper()
	if _, err := c.Instantiate(context.Background(), "admin", addr, contract, []byte(`{}`)); err != nil {
		t.Fatalf("instantiate %s: %v", addr, err)
	}
}

func queryKey(t *testing.T, c *Chain, addr, key string) string {
	t.Helper()
	raw, err := c.Query(context.Background(), addr, []byte(key))
	if err != nil {
		t.Fatalf("query %s/%s: %v", addr, key, err)
	}
	return string(raw)
}

// openPair deploys probe "alpha" on two chains and runs the full handshake.
func openPair(t *testing.T) (*Chain, *Chain, packet.Endpoint, packet.Endpoint) {
	t.Helper()
	ctx := context.Background()
	a := newTestChain(t, "chain-a")
	b := newTestChain(t, "chain-b")
	deploy(t, a, "alpha", probe{})
	deploy(t, b, "alpha", probe{})

	initEnd, err := a.ChannelOpenInit(ctx, OpenInitRequest{
		PortID:           a.PortID("alpha"),
		CounterpartyPort: b.PortID("alpha"),
		Version:          probeVersion,
		Order:            OrderUnordered,
	})
	if err != nil {
		t.Fatalf("open init: %v", err)
	}
	tryEnd, err := b.ChannelOpenTry(ctx, OpenTryRequest{
		PortID:              b.PortID("alpha"),
		Counterparty:        initEnd.Endpoint,
		Version:             initEnd.Version,
		CounterpartyVersion: initEnd.Version,
		Order:               OrderUnordered,
	})
	if err != nil {
		t.Fatalf("open try: %v", err)
	}
	if _, err := a.ChannelOpenAck(ctx, OpenAckRequest{
		ChannelID:           initEnd.Endpoint.ChannelID,
		Counterparty:        tryEnd.Endpoint,
		CounterpartyVersion: tryEnd.Version,
	}); err != nil {
		t.Fatalf("open ack: %v", err)
	}
	if _, err := b.ChannelOpenConfirm(ctx, tryEnd.Endpoint.ChannelID); err != nil {
		t.Fatalf("open confirm: %v", err)
	}
	return a, b, initEnd.Endpoint, tryEnd.Endpoint
}

// sendOne makes alpha on a send data over its channel end and returns the packet.
func sendOne(t *testing.T, a *Chain, end packet.Endpoint, data string, timeout time.Duration) packet.Packet {
	t.Helper()
	ctx := context.Background()
	msg := mustJSON(t, probeMsg{Send: &probeSend{Channel: end.ChannelID, Data: data, Timeout: timeout}})
	if _, err := a.Execute(ctx, "user", "alpha", msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	pending, err := a.PendingPackets(ctx, end.ChannelID)
	if err != nil || len(pending) == 0 {
		t.Fatalf("expected pending packet, got %d err=%v", len(pending), err)
	}
	return pending[len(pending)-1]
}
