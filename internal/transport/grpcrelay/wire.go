package grpcrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/packet"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ErrRemote wraps a peer failure that maps to no known host error.
var ErrRemote = errors.New("grpcrelay: remote error")

type channelRequest struct {
	ChannelID string `json:"channel_id"`
}

type pendingResponse struct {
	Packets []packet.Packet `json:"packets"`
}

type receiveRequest struct {
	Packet  packet.Packet `json:"packet"`
	Relayer string        `json:"relayer"`
}

type acknowledgeRequest struct {
	Packet  packet.Packet `json:"packet"`
	Ack     []byte        `json:"ack"`
	Relayer string        `json:"relayer"`
}

type timeoutRequest struct {
	Packet   packet.Packet `json:"packet"`
	DestTime int64         `json:"dest_time_unix_nano"`
	Relayer  string        `json:"relayer"`
}

func encode(v any) (*wrapperspb.BytesValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func decodeRequest(in *wrapperspb.BytesValue, out any) error {
	if err := json.Unmarshal(in.GetValue(), out); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// known lists host errors that survive the wire by message prefix.
var known = []struct {
	err  error
	code codes.Code
}{
	{host.ErrContractNotFound, codes.NotFound},
	{host.ErrChannelNotFound, codes.NotFound},
	{host.ErrPacketNotFound, codes.NotFound},
	{host.ErrNotIBCContract, codes.FailedPrecondition},
	{host.ErrChannelState, codes.FailedPrecondition},
	{host.ErrChannelOwner, codes.PermissionDenied},
	{host.ErrCounterpartyMismatch, codes.FailedPrecondition},
	{host.ErrPacketMismatch, codes.FailedPrecondition},
	{host.ErrPacketTimedOut, codes.DeadlineExceeded},
	{host.ErrPacketNotTimedOut, codes.FailedPrecondition},
}

// mapErr turns a host error into a status error carrying the same message.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	for _, k := range known {
		if errors.Is(err, k.err) {
			return status.Error(k.code, err.Error())
		}
	}
	return status.Error(codes.Aborted, err.Error())
}

// mapRPC restores the host sentinel behind a status error when its message
// identifies one.
func mapRPC(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	msg := st.Message()
	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, msg)
	}
	for _, k := range known {
		if rest, ok := strings.CutPrefix(msg, k.err.Error()); ok {
			return fmt.Errorf("%w%s", k.err, rest)
		}
	}
	return fmt.Errorf("%w: %s: %s", ErrRemote, st.Code(), msg)
}

// resultOrEmpty keeps a nil result encodable.
func resultOrEmpty(r *host.Result) *host.Result {
	if r == nil {
		return &host.Result{}
	}
	return r
}
