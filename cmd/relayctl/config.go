package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgerelay/internal/config"
	"github.com/spf13/cobra"
)

type fileConfig struct {
	Name          string   `toml:"name"`
	ChainID       string   `toml:"chain_id"`
	HTTPAddr      string   `toml:"http_addr"`
	GRPCAddr      string   `toml:"grpc_addr"`
	CorsOrigins   []string `toml:"cors_origins"`
	BlockTime     string   `toml:"block_time"`
	PacketTimeout string   `toml:"packet_timeout"`
	Store         struct {
		Backend string `toml:"backend"`
		Path    string `toml:"path"`
	} `toml:"store"`
	Contracts struct {
		Dispatcher string `toml:"dispatcher"`
		Echo       string `toml:"echo"`
		Controller string `toml:"controller"`
	} `toml:"contracts"`
}

// loadNodeConfig overlays the keys present in path onto the defaults. An
// empty path returns the defaults.
func loadNodeConfig(path string) (config.NodeConfig, error) {
	cfg := config.DefaultNodeConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, config.Validate(cfg)
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.NodeConfig{}, fmt.Errorf("load node config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config.NodeConfig{}, fmt.Errorf("%w: unknown key %q", config.ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("chain_id") {
		cfg.ChainID = strings.TrimSpace(raw.ChainID)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("grpc_addr") {
		cfg.GRPCAddr = strings.TrimSpace(raw.GRPCAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("block_time") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BlockTime))
		if err != nil {
			return config.NodeConfig{}, fmt.Errorf("parse block_time: %w", err)
		}
		cfg.BlockTime = d
	}
	if meta.IsDefined("packet_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PacketTimeout))
		if err != nil {
			return config.NodeConfig{}, fmt.Errorf("parse packet_timeout: %w", err)
		}
		cfg.PacketTimeout = d
	}
	if meta.IsDefined("store", "backend") {
		cfg.Store.Backend = strings.TrimSpace(raw.Store.Backend)
	}
	if meta.IsDefined("store", "path") {
		cfg.Store.Path = strings.TrimSpace(raw.Store.Path)
	}
	if meta.IsDefined("contracts", "dispatcher") {
		cfg.Contracts.Dispatcher = strings.TrimSpace(raw.Contracts.Dispatcher)
	}
	if meta.IsDefined("contracts", "echo") {
		cfg.Contracts.Echo = strings.TrimSpace(raw.Contracts.Echo)
	}
	if meta.IsDefined("contracts", "controller") {
		cfg.Contracts.Controller = strings.TrimSpace(raw.Contracts.Controller)
	}

	if err := config.Validate(cfg); err != nil {
		return config.NodeConfig{}, err
	}
	return cfg, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write or check node config files",
}

var (
	configKind  string
	configForce bool
)

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a config template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteTemplate(args[0], configKind, configForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", configKind, args[0])
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Load a config file and report problems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadNodeConfig(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "validated %s (chain %s, store %s)\n", args[0], cfg.ChainID, cfg.Store.Backend)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configKind, "kind", "node", "template kind: node|sqlite")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configValidateCmd)
}
