// Package packet owns the command envelope carried across channels and the
// transport record that wraps it.
//
// Ownership boundary:
// - dispatch/ping command union and its JSON wire form
// - packet transport metadata (sequence, endpoints, timeout)
//
// The payload of a dispatch command is opaque here; only the target interprets it.
package packet

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed      = errors.New("packet: malformed envelope")
	ErrUnknownCommand = errors.New("packet: unknown command")
)

type Kind string

const (
	KindDispatch Kind = "dispatch"
	KindPing     Kind = "ping"
)

// Dispatch asks the receiving side to execute Msg against TargetAddress, or to
// forward it along Channel when routing metadata is present.
type Dispatch struct {
	Msg           []byte `json:"msg"`
	TargetAddress string `json:"target_address"`
	Channel       string `json:"channel,omitempty"`
}

type Ping struct{}

// PingResponse is the result payload of a ping ack.
type PingResponse struct {
	Result string `json:"result"`
}

// ForwardResponse is the result payload of a dispatch that was relayed onward.
type ForwardResponse struct {
	Forwarded string `json:"forwarded"`
}

// Command is the closed set of packet commands. Exactly one field is set.
type Command struct {
	Dispatch *Dispatch `json:"dispatch,omitempty"`
	Ping     *Ping     `json:"ping,omitempty"`
}

func (c Command) Kind() (Kind, error) {
	switch {
	case c.Dispatch != nil && c.Ping == nil:
		return KindDispatch, nil
	case c.Ping != nil && c.Dispatch == nil:
		return KindPing, nil
	case c.Dispatch == nil && c.Ping == nil:
		return "", fmt.Errorf("%w: no variant set", ErrUnknownCommand)
	default:
		return "", fmt.Errorf("%w: more than one variant set", ErrUnknownCommand)
	}
}

func EncodeCommand(c Command) ([]byte, error) {
	if _, err := c.Kind(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

func DecodeCommand(data []byte) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for key := range fields {
		if key != string(KindDispatch) && key != string(KindPing) {
			return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, key)
		}
	}
	var out Command
	if err := json.Unmarshal(data, &out); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := out.Kind(); err != nil {
		return Command{}, err
	}
	return out, nil
}

// EncodeDispatch wraps payload for target without inspecting either.
func EncodeDispatch(target string, payload []byte) ([]byte, error) {
	return EncodeCommand(Command{Dispatch: &Dispatch{Msg: payload, TargetAddress: target}})
}

// DecodeDispatch is the inverse of EncodeDispatch.
func DecodeDispatch(data []byte) (string, []byte, error) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		return "", nil, err
	}
	if cmd.Dispatch == nil {
		return "", nil, fmt.Errorf("%w: expected dispatch", ErrUnknownCommand)
	}
	return cmd.Dispatch.TargetAddress, cmd.Dispatch.Msg, nil
}

func EncodePing() []byte {
	out, _ := json.Marshal(Command{Ping: &Ping{}})
	return out
}
