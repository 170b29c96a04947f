package host

import (
	"fmt"

	"github.com/danmuck/edgerelay/internal/observability"
	"github.com/danmuck/edgerelay/internal/store"
)

// Event types emitted by the host.
const (
	EventInstantiate          = "instantiate"
	EventExecute              = "execute"
	EventReply                = "reply"
	EventChannelConnect       = "channel_connect"
	EventChannelClose         = "channel_close"
	EventPacketReceive        = "packet_receive"
	EventPacketAck            = "packet_ack"
	EventPacketTimeout        = "packet_timeout"
	EventSendPacket           = "send_packet"
	EventWriteAcknowledgement = "write_acknowledgement"
)

const (
	AttrPacketSequence   = "packet_sequence"
	AttrPacketSrcChannel = "packet_src_channel"
	AttrPacketDstChannel = "packet_dst_channel"
	AttrPacketAck        = "packet_ack"
)

// call tracks one top-level invocation tree.
type call struct {
	chain  *Chain
	events []Event
	depth  int
}

func (x *call) emit(typ, addr string, attrs []Attribute) {
	x.events = append(x.events, Event{
		Type:       typ,
		Contract:   addr,
		Attributes: append([]Attribute(nil), attrs...),
	})
}

// finish records resp's attributes and runs its sub-messages in order on st.
// The returned data is resp.Data unless a reply overrode it.
func (x *call) finish(st store.Store, typ, addr string, resp *Response) ([]byte, error) {
	if resp == nil {
		resp = NewResponse()
	}
	x.emit(typ, addr, resp.Attributes)
	data := resp.Data
	for _, sub := range resp.Messages {
		replyData, err := x.runSub(st, addr, sub)
		if err != nil {
			return nil, err
		}
		if replyData != nil {
			data = replyData
		}
	}
	return data, nil
}

// runSub executes one sub-message on a nested cache. A failure without an
// error reply propagates and aborts the caller.
func (x *call) runSub(st store.Store, addr string, sub SubMsg) ([]byte, error) {
	mark := len(x.events)
	nested := store.NewCache(st)
	subData, err := x.dispatch(nested, addr, sub.Msg)

	var result SubMsgResult
	if err != nil {
		nested.Discard()
		x.events = x.events[:mark]
		if !sub.ReplyOn.onError() {
			return nil, err
		}
		result = SubMsgResult{Err: err.Error()}
	} else {
		if err := nested.Commit(); err != nil {
			return nil, err
		}
		if !sub.ReplyOn.onSuccess() {
			return nil, nil
		}
		events := append([]Event(nil), x.events[mark:]...)
		result = SubMsgResult{Ok: &SubMsgResponse{Events: events, Data: subData}}
	}
	return x.reply(st, addr, Reply{ID: sub.ID, Result: result})
}

func (x *call) reply(st store.Store, addr string, r Reply) ([]byte, error) {
	contract, err := x.chain.contract(addr)
	if err != nil {
		return nil, err
	}
	replier, ok := contract.(Replier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoReplyHandler, addr)
	}
	resp, err := replier.Reply(x.chain.deps(st, addr), x.chain.env(addr), r)
	observability.RecordReply(x.chain.cfg.ChainID, addr, err == nil)
	if err != nil {
		return nil, err
	}
	return x.finish(st, EventReply, addr, resp)
}

func (x *call) dispatch(st store.Store, sender string, msg Msg) ([]byte, error) {
	switch m := msg.(type) {
	case WasmExecute:
		return x.execute(st, sender, m.ContractAddr, m.Msg)
	case SendPacket:
		return nil, x.chain.sendPacket(x, st, sender, m)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedMsg, msg)
	}
}

func (x *call) execute(st store.Store, sender, addr string, msg []byte) ([]byte, error) {
	if x.depth >= x.chain.cfg.MaxCallDepth {
		return nil, fmt.Errorf("%w: %d", ErrCallDepth, x.depth)
	}
	contract, err := x.chain.contract(addr)
	if err != nil {
		return nil, err
	}
	x.depth++
	defer func() { x.depth-- }()
	resp, err := contract.Execute(x.chain.deps(st, addr), x.chain.env(addr), MessageInfo{Sender: sender}, msg)
	if err != nil {
		return nil, err
	}
	return x.finish(st, EventExecute, addr, resp)
}
