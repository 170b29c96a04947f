package dispatcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidMsg     = errors.New("dispatcher: invalid message")
	ErrInvalidOrder   = errors.New("dispatcher: only unordered channels are supported")
	ErrInvalidVersion = errors.New("dispatcher: invalid channel version")
	ErrNotConnected   = errors.New("dispatcher: channel not connected")
)

type InstantiateMsg struct{}

// ExecuteMsg is the execute union. Exactly one field is set.
type ExecuteMsg struct {
	Dispatch *DispatchMsg `json:"dispatch,omitempty"`
	Ping     *PingMsg     `json:"ping,omitempty"`
}

// DispatchMsg sends Msg to TargetAddress. An empty Channel executes the target
// on this chain; ForwardChannel asks the remote dispatcher to relay once more.
type DispatchMsg struct {
	Channel        string `json:"channel"`
	TargetAddress  string `json:"target_address"`
	Msg            []byte `json:"msg"`
	ForwardChannel string `json:"forward_channel,omitempty"`
}

type PingMsg struct {
	Channel string `json:"channel"`
}

// QueryMsg is the query union. Exactly one field is set.
type QueryMsg struct {
	GetConnections *GetConnectionsQuery `json:"get_connections,omitempty"`
	GetCounter     *GetCounterQuery     `json:"get_counter,omitempty"`
}

type GetConnectionsQuery struct{}

type GetCounterQuery struct {
	Channel string `json:"channel"`
}

type GetConnectionsResponse struct {
	Connections []string `json:"connections"`
}

type GetCounterResponse struct {
	Count uint32 `json:"count"`
}

// decodeStrict rejects unknown fields so a misspelled variant is an error
// rather than an empty message.
func decodeStrict(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMsg, err)
	}
	return nil
}

func parseExecute(raw []byte) (ExecuteMsg, error) {
	var msg ExecuteMsg
	if err := decodeStrict(raw, &msg); err != nil {
		return msg, err
	}
	if (msg.Dispatch == nil) == (msg.Ping == nil) {
		return msg, fmt.Errorf("%w: expected exactly one of dispatch, ping", ErrInvalidMsg)
	}
	return msg, nil
}

func parseQuery(raw []byte) (QueryMsg, error) {
	var msg QueryMsg
	if err := decodeStrict(raw, &msg); err != nil {
		return msg, err
	}
	if (msg.GetConnections == nil) == (msg.GetCounter == nil) {
		return msg, fmt.Errorf("%w: expected exactly one of get_connections, get_counter", ErrInvalidMsg)
	}
	return msg, nil
}
