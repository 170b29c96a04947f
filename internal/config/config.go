// Package config holds the node configuration shared by the relayctl
// commands and the helpers that turn it into a running chain.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/store"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type StoreConfig struct {
	Backend string
	Path    string
}

// ContractsConfig names the address of each bundled contract. An empty
// address leaves that contract undeployed.
type ContractsConfig struct {
	Dispatcher string
	Echo       string
	Controller string
}

type NodeConfig struct {
	Name          string
	ChainID       string
	HTTPAddr      string
	GRPCAddr      string
	CorsOrigins   []string
	BlockTime     time.Duration
	PacketTimeout time.Duration
	Store         StoreConfig
	Contracts     ContractsConfig
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Name:          "relay-node",
		ChainID:       "chain-a",
		HTTPAddr:      ":9000",
		GRPCAddr:      ":9090",
		CorsOrigins:   []string{"http://localhost:3000"},
		BlockTime:     5 * time.Second,
		PacketTimeout: 300 * time.Second,
		Store:         StoreConfig{Backend: BackendMemory},
		Contracts: ContractsConfig{
			Dispatcher: "dispatcher",
			Echo:       "echo",
			Controller: "controller",
		},
	}
}

func Validate(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidConfig)
	}
	if !host.ValidAddress(cfg.ChainID) {
		return fmt.Errorf("%w: chain_id %q", ErrInvalidConfig, cfg.ChainID)
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" && strings.TrimSpace(cfg.GRPCAddr) == "" {
		return fmt.Errorf("%w: one of http_addr, grpc_addr is required", ErrInvalidConfig)
	}
	if cfg.BlockTime <= 0 {
		return fmt.Errorf("%w: block_time must be positive", ErrInvalidConfig)
	}
	if cfg.PacketTimeout <= 0 {
		return fmt.Errorf("%w: packet_timeout must be positive", ErrInvalidConfig)
	}
	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(cfg.Store.Path) == "" {
			return fmt.Errorf("%w: sqlite store requires a path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, cfg.Store.Backend)
	}
	seen := make(map[string]string)
	for role, addr := range map[string]string{
		"dispatcher": cfg.Contracts.Dispatcher,
		"echo":       cfg.Contracts.Echo,
		"controller": cfg.Contracts.Controller,
	} {
		if addr == "" {
			continue
		}
		if !host.ValidAddress(addr) {
			return fmt.Errorf("%w: %s address %q", ErrInvalidConfig, role, addr)
		}
		if other, ok := seen[addr]; ok {
			return fmt.Errorf("%w: %s and %s share address %q", ErrInvalidConfig, role, other, addr)
		}
		seen[addr] = role
	}
	if cfg.Contracts.Controller != "" && cfg.Contracts.Dispatcher == "" {
		return fmt.Errorf("%w: controller requires a dispatcher", ErrInvalidConfig)
	}
	return nil
}

// ChainConfig derives the host configuration.
func (c NodeConfig) ChainConfig() host.Config {
	cfg := host.DefaultConfig(c.ChainID)
	cfg.BlockTime = c.BlockTime
	return cfg
}

// OpenStore opens the configured backend. The returned close func is never nil.
func (c NodeConfig) OpenStore() (store.Store, func() error, error) {
	switch c.Store.Backend {
	case BackendSQLite:
		s, err := store.OpenSQLite(c.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case BackendMemory, "":
		return store.NewMemStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
}
