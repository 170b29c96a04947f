package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/edgerelay/internal/contracts/dispatcher"
	"github.com/danmuck/edgerelay/internal/relayer"
	"github.com/danmuck/edgerelay/internal/transport/grpcrelay"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type relayOptions struct {
	AddrA, AddrB       string
	PortA, PortB       string
	ChannelA, ChannelB string
	Version            string
	Name               string
	Interval           time.Duration
	RPCTimeout         time.Duration
	Once               bool
}

var relayOpts relayOptions

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay packets between two nodes",
	Long: `relay connects to two nodes over gRPC. Without --channel-a/--channel-b it
opens a new channel pair first. It then relays until interrupted, or once with
--once.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return relay(ctx, cmd, relayOpts)
	},
}

func init() {
	f := relayCmd.Flags()
	f.StringVar(&relayOpts.AddrA, "a", "127.0.0.1:9090", "grpc address of side A")
	f.StringVar(&relayOpts.AddrB, "b", "127.0.0.1:9091", "grpc address of side B")
	f.StringVar(&relayOpts.PortA, "port-a", "wasm.dispatcher", "port on side A")
	f.StringVar(&relayOpts.PortB, "port-b", "wasm.dispatcher", "port on side B")
	f.StringVar(&relayOpts.ChannelA, "channel-a", "", "existing channel on side A")
	f.StringVar(&relayOpts.ChannelB, "channel-b", "", "existing channel on side B")
	f.StringVar(&relayOpts.Version, "version", dispatcher.Version, "channel version proposed in the handshake")
	f.StringVar(&relayOpts.Name, "name", relayer.DefaultName, "relayer identity passed to the chains")
	f.DurationVar(&relayOpts.Interval, "interval", 2*time.Second, "delay between relay rounds")
	f.DurationVar(&relayOpts.RPCTimeout, "rpc-timeout", 10*time.Second, "per-call gRPC timeout")
	f.BoolVar(&relayOpts.Once, "once", false, "relay a single round and exit")
}

func relay(ctx context.Context, cmd *cobra.Command, opts relayOptions) error {
	if (opts.ChannelA == "") != (opts.ChannelB == "") {
		return fmt.Errorf("%w: --channel-a and --channel-b go together", relayer.ErrInvalidLink)
	}
	a, err := grpcrelay.Dial(opts.AddrA, grpcrelay.DialOptions{Timeout: opts.RPCTimeout})
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.AddrA, err)
	}
	defer a.Close()
	b, err := grpcrelay.Dial(opts.AddrB, grpcrelay.DialOptions{Timeout: opts.RPCTimeout})
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.AddrB, err)
	}
	defer b.Close()

	var link *relayer.Link
	if opts.ChannelA == "" {
		link, err = relayer.Connect(ctx, a, opts.PortA, b, opts.PortB, relayer.ConnectOptions{
			Version: opts.Version,
			Name:    opts.Name,
		})
	} else {
		link, err = relayer.NewLink(
			relayer.End{Peer: a, Port: opts.PortA, Channel: opts.ChannelA},
			relayer.End{Peer: b, Port: opts.PortB, Channel: opts.ChannelB},
			opts.Name,
		)
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "link %s (%s)\n", link, link.ID)

	if opts.Once {
		info, err := link.RelayAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "received=%d acks=%d timeouts=%d pending=%d failed=%d\n",
			info.Received, len(info.Acks), len(info.Timeouts), info.Pending, info.Failed)
		return nil
	}

	err = link.Run(ctx, opts.Interval, relayer.DefaultBackoff())
	if ctx.Err() != nil {
		log.Info().Str("link", link.ID).Msg("relayer stopped")
		return nil
	}
	return err
}
