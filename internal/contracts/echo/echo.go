// Package echo is the terminal target of a dispatch: it stores the last
// string it was sent and returns it as response data.
package echo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/store"
)

var ErrInvalidMsg = errors.New("echo: invalid message")

type InstantiateMsg struct{}

type ExecuteMsg struct {
	Echo *EchoMsg `json:"echo,omitempty"`
}

type EchoMsg struct {
	Echo string `json:"echo"`
}

type QueryMsg struct {
	Echo *EchoQuery `json:"echo,omitempty"`
}

type EchoQuery struct{}

type EchoResponse struct {
	Echo string `json:"echo"`
}

type State struct {
	Echo string `json:"echo"`
}

var state = store.NewItem[State]("state")

type Contract struct{}

var _ host.Contract = Contract{}

func New() Contract { return Contract{} }

// ExecuteEcho builds the execute message for s.
func ExecuteEcho(s string) ([]byte, error) {
	return json.Marshal(ExecuteMsg{Echo: &EchoMsg{Echo: s}})
}

func decode(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMsg, err)
	}
	return nil
}

func (Contract) Instantiate(deps host.Deps, _ host.Env, _ host.MessageInfo, _ []byte) (*host.Response, error) {
	if err := state.Save(deps.Storage, State{}); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("echo", ""), nil
}

func (Contract) Execute(deps host.Deps, _ host.Env, _ host.MessageInfo, raw []byte) (*host.Response, error) {
	var msg ExecuteMsg
	if err := decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Echo == nil {
		return nil, fmt.Errorf("%w: expected echo", ErrInvalidMsg)
	}
	if err := state.Save(deps.Storage, State{Echo: msg.Echo.Echo}); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("action", "execute_echo").
		AddAttribute("echo", msg.Echo.Echo).
		SetData([]byte(msg.Echo.Echo)), nil
}

func (Contract) Query(deps host.Deps, _ host.Env, raw []byte) ([]byte, error) {
	var msg QueryMsg
	if err := decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Echo == nil {
		return nil, fmt.Errorf("%w: expected echo", ErrInvalidMsg)
	}
	st, _, err := state.Load(deps.Storage)
	if err != nil {
		return nil, err
	}
	return json.Marshal(EchoResponse{Echo: st.Echo})
}
