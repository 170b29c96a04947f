package grpcrelay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/packet"
	"github.com/danmuck/edgerelay/internal/relayer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client implements relayer.Peer over a Relay gRPC service.
type Client struct {
	cc grpc.ClientConnInterface

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
	closer  func() error
}

var _ relayer.Peer = (*Client)(nil)

type DialOptions struct {
	// Timeout applies per RPC when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

// Dial connects lazily; the first RPC establishes the connection.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, Timeout: opts.Timeout, closer: cc.Close}, nil
}

// NewClient wraps an existing connection. Close leaves cc open.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// call invokes method with req JSON-encoded and decodes the reply into out.
func (c *Client) call(ctx context.Context, method string, req, out any) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	in := wrapperspb.Bytes(nil)
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return err
		}
		in = wrapperspb.Bytes(b)
	}
	reply := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, reply); err != nil {
		return mapRPC(err)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(reply.GetValue(), out)
}

func (c *Client) Status(ctx context.Context) (host.Status, error) {
	var out host.Status
	err := c.call(ctx, MethodStatus, nil, &out)
	return out, err
}

func (c *Client) ChannelOpenInit(ctx context.Context, req host.OpenInitRequest) (host.Channel, error) {
	var out host.Channel
	err := c.call(ctx, MethodChannelOpenInit, req, &out)
	return out, err
}

func (c *Client) ChannelOpenTry(ctx context.Context, req host.OpenTryRequest) (host.Channel, error) {
	var out host.Channel
	err := c.call(ctx, MethodChannelOpenTry, req, &out)
	return out, err
}

func (c *Client) ChannelOpenAck(ctx context.Context, req host.OpenAckRequest) (*host.Result, error) {
	out := new(host.Result)
	if err := c.call(ctx, MethodChannelOpenAck, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ChannelOpenConfirm(ctx context.Context, channelID string) (*host.Result, error) {
	out := new(host.Result)
	if err := c.call(ctx, MethodChannelOpenConfirm, channelRequest{ChannelID: channelID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CloseChannel(ctx context.Context, channelID string) (*host.Result, error) {
	out := new(host.Result)
	if err := c.call(ctx, MethodCloseChannel, channelRequest{ChannelID: channelID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PendingPackets(ctx context.Context, channelID string) ([]packet.Packet, error) {
	var out pendingResponse
	if err := c.call(ctx, MethodPending, channelRequest{ChannelID: channelID}, &out); err != nil {
		return nil, err
	}
	return out.Packets, nil
}

func (c *Client) ReceivePacket(ctx context.Context, p packet.Packet, relayer string) (host.Receipt, error) {
	var out host.Receipt
	err := c.call(ctx, MethodReceive, receiveRequest{Packet: p, Relayer: relayer}, &out)
	return out, err
}

func (c *Client) AcknowledgePacket(ctx context.Context, p packet.Packet, ack []byte, relayer string) (*host.Result, error) {
	out := new(host.Result)
	if err := c.call(ctx, MethodAcknowledge, acknowledgeRequest{Packet: p, Ack: ack, Relayer: relayer}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TimeoutPacket(ctx context.Context, p packet.Packet, destTime time.Time, relayer string) (*host.Result, error) {
	out := new(host.Result)
	req := timeoutRequest{Packet: p, DestTime: destTime.UnixNano(), Relayer: relayer}
	if err := c.call(ctx, MethodTimeout, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
