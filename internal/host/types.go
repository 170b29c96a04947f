package host

import (
	"time"

	"github.com/danmuck/edgerelay/internal/store"
)

// BlockInfo is the logical clock an invocation observes.
type BlockInfo struct {
	ChainID string    `json:"chain_id"`
	Height  uint64    `json:"height"`
	Time    time.Time `json:"time"`
}

// Env is passed to every contract entry point.
type Env struct {
	Block    BlockInfo
	Contract string
}

type MessageInfo struct {
	Sender string
}

// Deps carries the contract-scoped store for one invocation.
type Deps struct {
	Storage store.Store
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event groups the attributes one contract emitted during one entry point.
type Event struct {
	Type       string      `json:"type"`
	Contract   string      `json:"contract"`
	Attributes []Attribute `json:"attributes"`
}

// Attr returns the first value for key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Msg is the closed set of side effects a contract can emit.
type Msg interface {
	msgType() string
}

// SendPacket emits a packet on a channel owned by the sending contract.
type SendPacket struct {
	ChannelID string
	Data      []byte
	Timeout   time.Time
}

// WasmExecute calls another contract on the same chain.
type WasmExecute struct {
	ContractAddr string
	Msg          []byte
}

func (SendPacket) msgType() string  { return "send_packet" }
func (WasmExecute) msgType() string { return "execute" }

type ReplyOn uint8

const (
	ReplyNever ReplyOn = iota
	ReplySuccess
	ReplyError
	ReplyAlways
)

func (r ReplyOn) onSuccess() bool { return r == ReplySuccess || r == ReplyAlways }
func (r ReplyOn) onError() bool   { return r == ReplyError || r == ReplyAlways }

// SubMsg is a Msg plus the continuation id its completion is routed to.
type SubMsg struct {
	ID      uint64
	Msg     Msg
	ReplyOn ReplyOn
}

func NewSubMsg(msg Msg) SubMsg {
	return SubMsg{Msg: msg, ReplyOn: ReplyNever}
}

func ReplyOnSuccess(msg Msg, id uint64) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplySuccess}
}

func ReplyOnError(msg Msg, id uint64) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplyError}
}

func ReplyAlwaysOn(msg Msg, id uint64) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplyAlways}
}

// Response is returned by execute, reply and the basic IBC entry points.
type Response struct {
	Attributes []Attribute
	Messages   []SubMsg
	Data       []byte
}

func NewResponse() *Response {
	return &Response{}
}

func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

func (r *Response) AddMessage(msg Msg) *Response {
	r.Messages = append(r.Messages, NewSubMsg(msg))
	return r
}

func (r *Response) AddSubMessage(sub SubMsg) *Response {
	r.Messages = append(r.Messages, sub)
	return r
}

func (r *Response) SetData(data []byte) *Response {
	r.Data = data
	return r
}

// ReceiveResponse is returned by PacketReceive. A nil Ack means the ack is
// produced by the reply that completes the invocation.
type ReceiveResponse struct {
	Response Response
	Ack      []byte
}

func NewReceiveResponse() *ReceiveResponse {
	return &ReceiveResponse{}
}

func (r *ReceiveResponse) AddAttribute(key, value string) *ReceiveResponse {
	r.Response.AddAttribute(key, value)
	return r
}

func (r *ReceiveResponse) AddMessage(msg Msg) *ReceiveResponse {
	r.Response.AddMessage(msg)
	return r
}

func (r *ReceiveResponse) AddSubMessage(sub SubMsg) *ReceiveResponse {
	r.Response.AddSubMessage(sub)
	return r
}

func (r *ReceiveResponse) SetAck(ack []byte) *ReceiveResponse {
	r.Ack = ack
	return r
}

// SubMsgResponse is the success payload handed to a reply handler.
type SubMsgResponse struct {
	Events []Event `json:"events"`
	Data   []byte  `json:"data,omitempty"`
}

// SubMsgResult is Ok or Err; exactly one is meaningful.
type SubMsgResult struct {
	Ok  *SubMsgResponse `json:"ok,omitempty"`
	Err string          `json:"error,omitempty"`
}

func (r SubMsgResult) IsOk() bool { return r.Ok != nil }

// Reply is the completion event of a sub-call, tagged with its continuation id.
type Reply struct {
	ID     uint64
	Result SubMsgResult
}

// Result is what a top-level invocation reports back to its caller.
type Result struct {
	Events []Event `json:"events"`
	Data   []byte  `json:"data,omitempty"`
}

// Attr returns the first attribute value with key emitted by contract.
func (r Result) Attr(contract, key string) (string, bool) {
	for _, e := range r.Events {
		if e.Contract != contract {
			continue
		}
		if v, ok := e.Attr(key); ok {
			return v, true
		}
	}
	return "", false
}

// Attributes flattens every attribute emitted by contract in order.
func (r Result) Attributes(contract string) []Attribute {
	var out []Attribute
	for _, e := range r.Events {
		if e.Contract == contract {
			out = append(out, e.Attributes...)
		}
	}
	return out
}
