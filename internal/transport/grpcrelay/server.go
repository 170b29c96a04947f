package grpcrelay

import (
	"context"
	"time"

	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/relayer"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server exposes a relayer.Peer over the Relay gRPC service.
type Server struct {
	UnimplementedRelayServer
	Peer relayer.Peer
}

func (s *Server) peer() (relayer.Peer, error) {
	if s == nil || s.Peer == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing peer")
	}
	return s.Peer, nil
}

func (s *Server) Status(ctx context.Context, _ *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	st, err := p.Status(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(st)
}

func (s *Server) ChannelOpenInit(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	var req host.OpenInitRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	ch, err := p.ChannelOpenInit(ctx, req)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(ch)
}

func (s *Server) ChannelOpenTry(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	var req host.OpenTryRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	ch, err := p.ChannelOpenTry(ctx, req)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(ch)
}

func (s *Server) ChannelOpenAck(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	var req host.OpenAckRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	res, err := p.ChannelOpenAck(ctx, req)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(resultOrEmpty(res))
}

func (s *Server) ChannelOpenConfirm(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	var req channelRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	res, err := p.ChannelOpenConfirm(ctx, req.ChannelID)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(resultOrEmpty(res))
}

func (s *Server) CloseChannel(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	var req channelRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	res, err := p.CloseChannel(ctx, req.ChannelID)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(resultOrEmpty(res))
}

func (s *Server) Pending(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	var req channelRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	pending, err := p.PendingPackets(ctx, req.ChannelID)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(pendingResponse{Packets: pending})
}

func (s *Server) Receive(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	var req receiveRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	receipt, err := p.ReceivePacket(ctx, req.Packet, req.Relayer)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(receipt)
}

func (s *Server) Acknowledge(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	var req acknowledgeRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	res, err := p.AcknowledgePacket(ctx, req.Packet, req.Ack, req.Relayer)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(resultOrEmpty(res))
}

func (s *Server) Timeout(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	p, err := s.peer()
	if err != nil {
		return nil, err
	}
	var req timeoutRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	res, err := p.TimeoutPacket(ctx, req.Packet, time.Unix(0, req.DestTime).UTC(), req.Relayer)
	if err != nil {
		return nil, mapErr(err)
	}
	return encode(resultOrEmpty(res))
}

// UnaryLogger logs every relay call with its outcome.
func UnaryLogger(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("grpc_request")
		return resp, err
	}
}

// NewGRPCServer builds a gRPC server serving peer with request logging.
func NewGRPCServer(peer relayer.Peer, logger zerolog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(UnaryLogger(logger)))
	srv := grpc.NewServer(opts...)
	RegisterRelayServer(srv, &Server{Peer: peer})
	return srv
}
