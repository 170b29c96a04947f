package node

import (
	"context"
	"fmt"

	"github.com/danmuck/edgerelay/internal/config"
	"github.com/danmuck/edgerelay/internal/contracts/controller"
	"github.com/danmuck/edgerelay/internal/contracts/dispatcher"
	"github.com/danmuck/edgerelay/internal/contracts/echo"
	"github.com/danmuck/edgerelay/internal/host"
	"github.com/rs/zerolog/log"
)

// Creator is the sender recorded for contracts deployed at startup.
const Creator = "genesis"

// Deployment reports what Deploy did for one address.
type Deployment struct {
	Address  string
	Attached bool
}

// Deploy instantiates the configured contracts, or binds them again when the
// store already holds them from an earlier run.
func Deploy(ctx context.Context, chain *host.Chain, cfg config.NodeConfig) ([]Deployment, error) {
	type entry struct {
		addr     string
		contract host.Contract
	}
	var entries []entry
	if addr := cfg.Contracts.Dispatcher; addr != "" {
		entries = append(entries, entry{addr, dispatcher.New(dispatcher.Config{
			Version:       dispatcher.Version,
			PacketTimeout: cfg.PacketTimeout,
		})})
	}
	if addr := cfg.Contracts.Echo; addr != "" {
		entries = append(entries, entry{addr, echo.New()})
	}
	if addr := cfg.Contracts.Controller; addr != "" {
		entries = append(entries, entry{addr, controller.New()})
	}

	out := make([]Deployment, 0, len(entries))
	for _, e := range entries {
		existing, err := chain.Instantiated(e.addr)
		if err != nil {
			return nil, err
		}
		if existing {
			if err := chain.Attach(e.addr, e.contract); err != nil {
				return nil, fmt.Errorf("attach %s: %w", e.addr, err)
			}
		} else if _, err := chain.Instantiate(ctx, Creator, e.addr, e.contract, []byte(`{}`)); err != nil {
			return nil, fmt.Errorf("instantiate %s: %w", e.addr, err)
		}
		log.Debug().Str("chain", chain.ID()).Str("contract", e.addr).Bool("attached", existing).Msg("contract ready")
		out = append(out, Deployment{Address: e.addr, Attached: existing})
	}
	return out, nil
}
