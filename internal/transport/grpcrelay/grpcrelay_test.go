package grpcrelay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/danmuck/edgerelay/internal/contracts/dispatcher"
	"github.com/danmuck/edgerelay/internal/contracts/echo"
	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/packet"
	"github.com/danmuck/edgerelay/internal/relayer"
	"github.com/danmuck/edgerelay/internal/store"
	"github.com/danmuck/edgerelay/internal/testutil/testlog"
)

func newChain(t *testing.T, id string) *host.Chain {
	t.Helper()
	c, err := host.NewChain(host.DefaultConfig(id), store.NewMemStore())
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	ctx := context.Background()
	if _, err := c.Instantiate(ctx, "admin", "dispatcher", dispatcher.New(dispatcher.DefaultConfig()), []byte(`{}`)); err != nil {
		t.Fatalf("instantiate dispatcher: %v", err)
	}
	if _, err := c.Instantiate(ctx, "admin", "echo", echo.New(), []byte(`{}`)); err != nil {
		t.Fatalf("instantiate echo: %v", err)
	}
	return c
}

// serve exposes srv over an in-memory listener and returns a client for it.
func serve(t *testing.T, register func(*grpc.Server)) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLogger(zerolog.Nop())))
	register(srv)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	client := NewClient(cc)
	client.Timeout = 2 * time.Second
	return client
}

func servePeer(t *testing.T, peer relayer.Peer) *Client {
	return serve(t, func(s *grpc.Server) { RegisterRelayServer(s, &Server{Peer: peer}) })
}

func TestRelayOverGRPC(t *testing.T) {
	testlog.Start(t)
	a := newChain(t, "chain-a")
	b := newChain(t, "chain-b")
	peerA := servePeer(t, a)
	peerB := servePeer(t, b)
	ctx := context.Background()

	st, err := peerB.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.ChainID != "chain-b" || !relayer.PeerTime(st).Equal(b.Now()) {
		t.Fatalf("unexpected status: %+v", st)
	}

	link, err := relayer.Connect(ctx, peerA, a.PortID("dispatcher"), peerB, b.PortID("dispatcher"),
		relayer.ConnectOptions{Version: dispatcher.Version})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	ch, err := b.Channel(ctx, link.B.Channel)
	if err != nil || ch.State != host.ChannelOpen {
		t.Fatalf("unexpected channel on b: %+v err=%v", ch, err)
	}

	payload, _ := echo.ExecuteEcho("over the wire")
	msg, _ := json.Marshal(dispatcher.ExecuteMsg{Dispatch: &dispatcher.DispatchMsg{
		Channel:       link.A.Channel,
		TargetAddress: "echo",
		Msg:           payload,
	}})
	if _, err := a.Execute(ctx, "user", "dispatcher", msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := a.Execute(ctx, "user", "dispatcher", []byte(`{"ping":{"channel":"`+link.A.Channel+`"}}`)); err != nil {
		t.Fatalf("ping: %v", err)
	}

	info, err := link.RelayAll(ctx)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(info.Acks) != 2 || info.Pending != 0 {
		t.Fatalf("unexpected relay info: %+v", info)
	}
	if got, _ := info.Acks[0].Result.Attr("dispatcher", "result"); got != "over the wire" {
		t.Fatalf("unexpected result attribute=%q", got)
	}

	raw, err := a.Query(ctx, "dispatcher", []byte(`{"get_counter":{"channel":"`+link.A.Channel+`"}}`))
	if err != nil || string(raw) != `{"count":2}` {
		t.Fatalf("unexpected counter=%s err=%v", raw, err)
	}

	if _, err := peerA.CloseChannel(ctx, link.A.Channel); err != nil {
		t.Fatalf("close: %v", err)
	}
	ch, _ = a.Channel(ctx, link.A.Channel)
	if ch.State != host.ChannelClosed {
		t.Fatalf("unexpected state after close: %s", ch.State)
	}
}

func TestTimeoutOverGRPC(t *testing.T) {
	testlog.Start(t)
	a := newChain(t, "chain-a")
	b := newChain(t, "chain-b")
	peerA := servePeer(t, a)
	peerB := servePeer(t, b)
	ctx := context.Background()

	link, err := relayer.Connect(ctx, peerA, a.PortID("dispatcher"), peerB, b.PortID("dispatcher"),
		relayer.ConnectOptions{Version: dispatcher.Version})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := a.Execute(ctx, "user", "dispatcher", []byte(`{"ping":{"channel":"`+link.A.Channel+`"}}`)); err != nil {
		t.Fatalf("ping: %v", err)
	}
	pending, err := peerA.PendingPackets(ctx, link.A.Channel)
	if err != nil || len(pending) != 1 {
		t.Fatalf("unexpected pending=%v err=%v", pending, err)
	}
	if !pending[0].Timeout.Equal(a.Now().Add(packet.DefaultTimeout)) {
		t.Fatalf("timeout lost on the wire: %v", pending[0].Timeout)
	}

	if _, err := peerA.TimeoutPacket(ctx, pending[0], b.Now(), "r"); !errors.Is(err, host.ErrPacketNotTimedOut) {
		t.Fatalf("expected ErrPacketNotTimedOut, got %v", err)
	}
	if err := b.AdvanceTime(packet.DefaultTimeout); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := peerB.ReceivePacket(ctx, pending[0], "r"); !errors.Is(err, host.ErrPacketTimedOut) {
		t.Fatalf("expected ErrPacketTimedOut, got %v", err)
	}

	info, err := link.RelayAll(ctx)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(info.Timeouts) != 1 {
		t.Fatalf("unexpected relay info: %+v", info)
	}
	if got, _ := info.Timeouts[0].Result.Attr("dispatcher", "action"); got != "timeout_ping" {
		t.Fatalf("unexpected action=%q", got)
	}
}

func TestErrorsSurviveTheWire(t *testing.T) {
	testlog.Start(t)
	a := newChain(t, "chain-a")
	peer := servePeer(t, a)
	ctx := context.Background()

	p := packet.Packet{Sequence: 9, Source: packet.Endpoint{PortID: a.PortID("dispatcher"), ChannelID: "channel-7"}}
	if _, err := peer.AcknowledgePacket(ctx, p, []byte(`{"result":"MQ=="}`), "r"); !errors.Is(err, host.ErrPacketNotFound) {
		t.Fatalf("expected ErrPacketNotFound, got %v", err)
	}
	if _, err := peer.ChannelOpenConfirm(ctx, "channel-7"); !errors.Is(err, host.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
	_, err := peer.ChannelOpenInit(ctx, host.OpenInitRequest{
		PortID:  a.PortID("dispatcher"),
		Version: "wrong_version",
		Order:   host.OrderUnordered,
	})
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote for a contract rejection, got %v", err)
	}
}

func TestUnimplementedServer(t *testing.T) {
	testlog.Start(t)
	client := serve(t, func(s *grpc.Server) { RegisterRelayServer(s, UnimplementedRelayServer{}) })
	if _, err := client.Status(context.Background()); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

func TestMissingPeer(t *testing.T) {
	testlog.Start(t)
	client := serve(t, func(s *grpc.Server) { RegisterRelayServer(s, &Server{}) })
	if _, err := client.PendingPackets(context.Background(), ""); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}
