package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/edgerelay/internal/config"
	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/node"
	"github.com/danmuck/edgerelay/internal/transport/grpcrelay"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host a chain and expose it over HTTP and gRPC",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadNodeConfig(serveConfigPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "node config file (defaults apply when empty)")
}

// serve runs the node until ctx ends or a listener fails.
func serve(ctx context.Context, cfg config.NodeConfig) error {
	st, closeStore, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	chain, err := host.NewChain(cfg.ChainConfig(), st)
	if err != nil {
		return err
	}
	deployed, err := node.Deploy(ctx, chain, cfg)
	if err != nil {
		return err
	}
	log.Info().Str("node", cfg.Name).Str("chain", chain.ID()).Int("contracts", len(deployed)).
		Str("store", cfg.Store.Backend).Msg("chain ready")

	var lis net.Listener
	if cfg.GRPCAddr != "" {
		if lis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTPAddr != "" {
		n := node.Appear(cfg.Name, chain, cfg.CorsOrigins)
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           n.HTTPRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if lis != nil {
		gs := grpcrelay.NewGRPCServer(chain, log.Logger)
		g.Go(func() error {
			log.Info().Str("addr", lis.Addr().String()).Msg("grpc listening")
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	err = g.Wait()
	log.Info().Str("node", cfg.Name).Msg("node stopped")
	return err
}
