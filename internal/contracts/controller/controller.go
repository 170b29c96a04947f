// Package controller drives the dispatcher from the same chain: it wraps an
// echo command in a dispatch and resumes when the dispatcher returns.
package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/edgerelay/internal/contracts/dispatcher"
	"github.com/danmuck/edgerelay/internal/contracts/echo"
	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/reply"
	"github.com/danmuck/edgerelay/internal/store"
)

// ReplyDispatch is the fixed continuation id of a single dispatch.
const ReplyDispatch uint64 = 0

var ErrInvalidMsg = errors.New("controller: invalid message")

type InstantiateMsg struct{}

type ExecuteMsg struct {
	Dispatch     *DispatchMsg     `json:"dispatch,omitempty"`
	DispatchMany *DispatchManyMsg `json:"dispatch_many,omitempty"`
}

type DispatchMsg struct {
	DispatcherAddress string `json:"dispatcher_address"`
	Channel           string `json:"channel"`
	TargetAddress     string `json:"target_address"`
	Echo              string `json:"echo"`
}

// DispatchManyMsg issues one dispatch per target, each with its own
// allocated continuation id.
type DispatchManyMsg struct {
	DispatcherAddress string   `json:"dispatcher_address"`
	Channel           string   `json:"channel"`
	Targets           []Target `json:"targets"`
}

type Target struct {
	TargetAddress string `json:"target_address"`
	Echo          string `json:"echo"`
}

type QueryMsg struct {
	LastReply   *struct{} `json:"last_reply,omitempty"`
	Outstanding *struct{} `json:"outstanding,omitempty"`
}

// LastReplyResponse reports the most recent completion the controller consumed.
type LastReplyResponse struct {
	ID     uint64 `json:"id"`
	Target string `json:"target_address,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

type OutstandingResponse struct {
	IDs []uint64 `json:"ids"`
}

type pendingContext struct {
	TargetAddress string `json:"target_address"`
}

var lastReply = store.NewItem[LastReplyResponse]("last_reply")

type Contract struct {
	replies *reply.Table
	ids     reply.Allocator
}

var (
	_ host.Contract = (*Contract)(nil)
	_ host.Replier  = (*Contract)(nil)
)

func New() *Contract {
	c := &Contract{ids: reply.NewAllocator("replies", reply.DefaultBase)}
	c.replies = reply.NewTable().
		Register(ReplyDispatch, c.handleTargetContractReply).
		WithFallback(c.handleAllocatedReply)
	return c
}

func decode(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMsg, err)
	}
	return nil
}

func (c *Contract) Instantiate(host.Deps, host.Env, host.MessageInfo, []byte) (*host.Response, error) {
	return host.NewResponse().AddAttribute("action", "instantiate"), nil
}

func (c *Contract) Execute(deps host.Deps, _ host.Env, _ host.MessageInfo, raw []byte) (*host.Response, error) {
	var msg ExecuteMsg
	if err := decode(raw, &msg); err != nil {
		return nil, err
	}
	switch {
	case msg.Dispatch != nil && msg.DispatchMany == nil:
		d := msg.Dispatch
		sub, err := dispatchSubMsg(d.DispatcherAddress, d.Channel, d.TargetAddress, d.Echo, ReplyDispatch)
		if err != nil {
			return nil, err
		}
		return host.NewResponse().
			AddAttribute("action", "execute_controller").
			AddAttribute("ibc-contract", d.DispatcherAddress).
			AddAttribute("target_address", d.TargetAddress).
			AddSubMessage(sub), nil
	case msg.DispatchMany != nil && msg.Dispatch == nil:
		return c.executeDispatchMany(deps, *msg.DispatchMany)
	}
	return nil, fmt.Errorf("%w: expected exactly one of dispatch, dispatch_many", ErrInvalidMsg)
}

func (c *Contract) executeDispatchMany(deps host.Deps, m DispatchManyMsg) (*host.Response, error) {
	if len(m.Targets) == 0 {
		return nil, fmt.Errorf("%w: no targets", ErrInvalidMsg)
	}
	resp := host.NewResponse().
		AddAttribute("action", "execute_controller").
		AddAttribute("ibc-contract", m.DispatcherAddress)
	for _, t := range m.Targets {
		ctx, err := json.Marshal(pendingContext{TargetAddress: t.TargetAddress})
		if err != nil {
			return nil, err
		}
		id, err := c.ids.Reserve(deps.Storage, reply.Pending{Tag: "dispatch", Context: ctx})
		if err != nil {
			return nil, err
		}
		sub, err := dispatchSubMsg(m.DispatcherAddress, m.Channel, t.TargetAddress, t.Echo, id)
		if err != nil {
			return nil, err
		}
		resp.AddAttribute("target_address", t.TargetAddress).
			AddAttribute("reply_id", strconv.FormatUint(id, 10)).
			AddSubMessage(sub)
	}
	return resp, nil
}

// dispatchSubMsg wraps an echo of s for target in a dispatcher execute.
func dispatchSubMsg(dispatcherAddr, channel, target, s string, id uint64) (host.SubMsg, error) {
	payload, err := echo.ExecuteEcho(s)
	if err != nil {
		return host.SubMsg{}, err
	}
	msg, err := json.Marshal(dispatcher.ExecuteMsg{Dispatch: &dispatcher.DispatchMsg{
		Channel:       channel,
		TargetAddress: target,
		Msg:           payload,
	}})
	if err != nil {
		return host.SubMsg{}, err
	}
	return host.ReplyOnSuccess(host.WasmExecute{ContractAddr: dispatcherAddr, Msg: msg}, id), nil
}

func (c *Contract) Query(deps host.Deps, _ host.Env, raw []byte) ([]byte, error) {
	var msg QueryMsg
	if err := decode(raw, &msg); err != nil {
		return nil, err
	}
	switch {
	case msg.LastReply != nil:
		last, _, err := lastReply.Load(deps.Storage)
		if err != nil {
			return nil, err
		}
		return json.Marshal(last)
	case msg.Outstanding != nil:
		ids, err := c.ids.Outstanding(deps.Storage)
		if err != nil {
			return nil, err
		}
		return json.Marshal(OutstandingResponse{IDs: ids})
	}
	return nil, fmt.Errorf("%w: expected last_reply or outstanding", ErrInvalidMsg)
}

func (c *Contract) Reply(deps host.Deps, env host.Env, r host.Reply) (*host.Response, error) {
	return c.replies.Route(deps, env, r)
}

func (c *Contract) handleTargetContractReply(deps host.Deps, _ host.Env, result host.SubMsgResult) (*host.Response, error) {
	if err := record(deps, LastReplyResponse{ID: ReplyDispatch}, result); err != nil {
		return nil, err
	}
	return host.NewResponse().AddAttribute("action", "handle_target_contract_reply"), nil
}

func (c *Contract) handleAllocatedReply(deps host.Deps, _ host.Env, r host.Reply) (*host.Response, error) {
	if !c.ids.Owns(r.ID) {
		return nil, reply.UnknownID(r.ID)
	}
	p, err := c.ids.Consume(deps.Storage, r.ID)
	if err != nil {
		return nil, err
	}
	var pc pendingContext
	if err := json.Unmarshal(p.Context, &pc); err != nil {
		return nil, fmt.Errorf("controller: pending %d: %w", r.ID, err)
	}
	if err := record(deps, LastReplyResponse{ID: r.ID, Target: pc.TargetAddress}, r.Result); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("action", "handle_target_contract_reply").
		AddAttribute("reply_id", strconv.FormatUint(r.ID, 10)).
		AddAttribute("target_address", pc.TargetAddress), nil
}

func record(deps host.Deps, last LastReplyResponse, result host.SubMsgResult) error {
	if result.IsOk() {
		last.Data = result.Ok.Data
	}
	return lastReply.Save(deps.Storage, last)
}
