package packet

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	targets := []string{"", "wasm1echo", "not an address at all", "ü/ñ"}
	for i := 0; i < 200; i++ {
		target := targets[i%len(targets)]
		payload := make([]byte, rng.Intn(64))
		rng.Read(payload)

		raw, err := EncodeDispatch(target, payload)
		require.NoError(t, err)
		gotTarget, gotPayload, err := DecodeDispatch(raw)
		require.NoError(t, err)
		assert.Equal(t, target, gotTarget)
		assert.True(t, bytes.Equal(payload, gotPayload), "payload mismatch at %d", i)
	}

	raw, err := EncodeDispatch("wasm1echo", nil)
	require.NoError(t, err)
	_, gotPayload, err := DecodeDispatch(raw)
	require.NoError(t, err)
	assert.Nil(t, gotPayload)
}

func TestDispatchWireForm(t *testing.T) {
	raw, err := EncodeDispatch("wasm1echo", []byte(`{"echo":{"echo":"hi"}}`))
	require.NoError(t, err)

	var generic map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	body, ok := generic["dispatch"]
	require.True(t, ok, "missing dispatch tag: %s", raw)
	assert.Equal(t, "wasm1echo", body["target_address"])
	assert.Equal(t, "eyJlY2hvIjp7ImVjaG8iOiJoaSJ9fQ==", body["msg"])
	_, hasChannel := body["channel"]
	assert.False(t, hasChannel)
}

func TestDecodeCommandVariants(t *testing.T) {
	cmd, err := DecodeCommand(EncodePing())
	require.NoError(t, err)
	kind, err := cmd.Kind()
	require.NoError(t, err)
	assert.Equal(t, KindPing, kind)

	cmd, err = DecodeCommand([]byte(`{"dispatch":{"msg":"aGk=","target_address":"t","channel":"channel-2"}}`))
	require.NoError(t, err)
	assert.Equal(t, "channel-2", cmd.Dispatch.Channel)
	assert.Equal(t, []byte("hi"), cmd.Dispatch.Msg)
}

func TestDecodeCommandErrors(t *testing.T) {
	cases := map[string]error{
		`{"transfer":{}}`:                 ErrUnknownCommand,
		`{}`:                              ErrUnknownCommand,
		`{"ping":{},"dispatch":{"msg":""}}`: ErrUnknownCommand,
		`{"dispatch":null}`:               ErrUnknownCommand,
		`garbage`:                         ErrMalformed,
		`{"dispatch":{"msg":5}}`:          ErrMalformed,
	}
	for raw, want := range cases {
		_, err := DecodeCommand([]byte(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, want), "input=%s err=%v", raw, err)
	}

	_, _, err := DecodeDispatch(EncodePing())
	assert.True(t, errors.Is(err, ErrUnknownCommand))

	_, err = EncodeCommand(Command{})
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestPacketTimeout(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Packet{Sequence: 1, Timeout: TimeoutFrom(now)}
	assert.Equal(t, now.Add(300*time.Second), p.Timeout)
	assert.False(t, p.TimedOut(now))
	assert.False(t, p.TimedOut(now.Add(299*time.Second)))
	assert.True(t, p.TimedOut(now.Add(300*time.Second)))
	assert.False(t, Packet{}.TimedOut(now.Add(1000*time.Hour)))
}

func TestPacketKey(t *testing.T) {
	p := Packet{Sequence: 3, Source: Endpoint{PortID: "wasm.dispatcher", ChannelID: "channel-0"}}
	assert.Equal(t, "wasm.dispatcher/channel-0/3", p.Key())
	assert.Equal(t, "wasm.dispatcher/channel-0", p.Source.String())
}
