package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/danmuck/edgerelay/internal/ack"
	"github.com/danmuck/edgerelay/internal/config"
	"github.com/danmuck/edgerelay/internal/contracts/controller"
	"github.com/danmuck/edgerelay/internal/contracts/dispatcher"
	"github.com/danmuck/edgerelay/internal/contracts/echo"
	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/node"
	"github.com/danmuck/edgerelay/internal/packet"
	"github.com/danmuck/edgerelay/internal/relayer"
	"github.com/danmuck/edgerelay/internal/store"
	"github.com/spf13/cobra"
)

const demoEcho = "hello across"

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a ping and a controller dispatch between two in-process chains",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := runDemo(cmd.Context(), cmd.OutOrStdout())
		return err
	},
}

type demoReport struct {
	ChannelA string
	ChannelB string
	Pong     string
	Result   string
	Echo     string
	Counter  uint32
}

func demoChain(ctx context.Context, id string) (*host.Chain, error) {
	cfg := config.DefaultNodeConfig()
	cfg.ChainID = id
	chain, err := host.NewChain(cfg.ChainConfig(), store.NewMemStore())
	if err != nil {
		return nil, err
	}
	if _, err := node.Deploy(ctx, chain, cfg); err != nil {
		return nil, err
	}
	return chain, nil
}

func runDemo(ctx context.Context, out io.Writer) (demoReport, error) {
	var report demoReport
	a, err := demoChain(ctx, "chain-a")
	if err != nil {
		return report, err
	}
	b, err := demoChain(ctx, "chain-b")
	if err != nil {
		return report, err
	}
	link, err := relayer.Connect(ctx, a, a.PortID("dispatcher"), b, b.PortID("dispatcher"), relayer.ConnectOptions{
		Version: dispatcher.Version,
		Name:    "demo",
	})
	if err != nil {
		return report, err
	}
	report.ChannelA, report.ChannelB = link.A.Channel, link.B.Channel
	fmt.Fprintf(out, "connected %s\n", link)

	ping, err := json.Marshal(dispatcher.ExecuteMsg{Ping: &dispatcher.PingMsg{Channel: link.A.Channel}})
	if err != nil {
		return report, err
	}
	if _, err := a.Execute(ctx, "demo", "dispatcher", ping); err != nil {
		return report, fmt.Errorf("ping: %w", err)
	}
	info, err := link.RelayAll(ctx)
	if err != nil {
		return report, err
	}
	if len(info.Acks) != 1 {
		return report, fmt.Errorf("ping: expected one ack, relayed %+v", info)
	}
	pong, err := ack.Into[packet.PingResponse](info.Acks[0].Ack)
	if err != nil {
		return report, fmt.Errorf("ping ack: %w", err)
	}
	report.Pong = pong.Result
	fmt.Fprintf(out, "ping acked with %q\n", report.Pong)

	dispatch, err := json.Marshal(controller.ExecuteMsg{Dispatch: &controller.DispatchMsg{
		DispatcherAddress: "dispatcher",
		Channel:           link.A.Channel,
		TargetAddress:     "echo",
		Echo:              demoEcho,
	}})
	if err != nil {
		return report, err
	}
	if _, err := a.Execute(ctx, "demo", "controller", dispatch); err != nil {
		return report, fmt.Errorf("dispatch: %w", err)
	}
	info, err = link.RelayAll(ctx)
	if err != nil {
		return report, err
	}
	if len(info.Acks) != 1 {
		return report, fmt.Errorf("dispatch: expected one ack, relayed %+v", info)
	}
	if errReason, failed := info.Acks[0].Result.Attr("dispatcher", "error"); failed {
		return report, fmt.Errorf("dispatch: %s", errReason)
	}
	report.Result, _ = info.Acks[0].Result.Attr("dispatcher", "result")
	fmt.Fprintf(out, "dispatch acked with %q\n", report.Result)

	raw, err := b.Query(ctx, "echo", []byte(`{"echo":{}}`))
	if err != nil {
		return report, err
	}
	var state echo.EchoResponse
	if err := json.Unmarshal(raw, &state); err != nil {
		return report, err
	}
	report.Echo = state.Echo

	raw, err = a.Query(ctx, "dispatcher", []byte(`{"get_counter":{"channel":"`+link.A.Channel+`"}}`))
	if err != nil {
		return report, err
	}
	var count dispatcher.GetCounterResponse
	if err := json.Unmarshal(raw, &count); err != nil {
		return report, err
	}
	report.Counter = count.Count
	fmt.Fprintf(out, "%s echo=%q, %s counter=%d\n", b.ID(), report.Echo, a.ID(), report.Counter)
	return report, nil
}
