package host

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/edgerelay/internal/observability"
	"github.com/danmuck/edgerelay/internal/store"
	"github.com/rs/zerolog/log"
)

// Config controls a single chain instance.
type Config struct {
	ChainID      string
	Genesis      time.Time
	BlockTime    time.Duration
	PortPrefix   string
	MaxCallDepth int
}

func DefaultConfig(chainID string) Config {
	return Config{
		ChainID:      chainID,
		Genesis:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		BlockTime:    5 * time.Second,
		PortPrefix:   "wasm.",
		MaxCallDepth: 16,
	}
}

var (
	clock     = store.NewItem[BlockInfo]("host/clock")
	instances = store.NewMap[ContractInfo]("host/contracts")
)

// Chain hosts contracts over one root store. All entry points serialize on
// the chain mutex; invocations never interleave.
type Chain struct {
	mu        sync.Mutex
	cfg       Config
	root      store.Store
	block     BlockInfo
	contracts map[string]Contract
}

// NewChain resumes the clock persisted in root, or starts at genesis.
func NewChain(cfg Config, root store.Store) (*Chain, error) {
	def := DefaultConfig(cfg.ChainID)
	if strings.TrimSpace(cfg.ChainID) == "" {
		return nil, fmt.Errorf("host: chain id is required")
	}
	if cfg.Genesis.IsZero() {
		cfg.Genesis = def.Genesis
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = def.BlockTime
	}
	if cfg.PortPrefix == "" {
		cfg.PortPrefix = def.PortPrefix
	}
	if cfg.MaxCallDepth <= 0 {
		cfg.MaxCallDepth = def.MaxCallDepth
	}

	b, ok, err := clock.Load(root)
	if err != nil {
		return nil, err
	}
	if !ok {
		b = BlockInfo{ChainID: cfg.ChainID, Height: 1, Time: cfg.Genesis.UTC()}
	}
	if b.ChainID != cfg.ChainID {
		return nil, fmt.Errorf("host: store belongs to chain %q, not %q", b.ChainID, cfg.ChainID)
	}
	return &Chain{
		cfg:       cfg,
		root:      root,
		block:     b,
		contracts: make(map[string]Contract),
	}, nil
}

func (c *Chain) ID() string { return c.cfg.ChainID }

// PortID is the ibc port owned by the contract at addr.
func (c *Chain) PortID(addr string) string { return c.cfg.PortPrefix + addr }

func (c *Chain) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{ChainID: c.block.ChainID, Height: c.block.Height, Time: c.block.Time.UnixNano()}, nil
}

func (c *Chain) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block.Time
}

// AdvanceBlocks moves the clock n blocks forward at the configured block time.
func (c *Chain) AdvanceBlocks(n int) error {
	return c.advance(uint64(n), time.Duration(n)*c.cfg.BlockTime)
}

// AdvanceTime moves the clock forward by d as a single block.
func (c *Chain) AdvanceTime(d time.Duration) error {
	return c.advance(1, d)
}

func (c *Chain) advance(blocks uint64, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("host: clock cannot move backwards")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.block
	next.Height += blocks
	next.Time = next.Time.Add(d)
	if err := clock.Save(c.root, next); err != nil {
		return err
	}
	c.block = next
	return nil
}

// Attach binds code to an address that was instantiated in an earlier run
// over the same store.
func (c *Chain) Attach(addr string, contract Contract) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok, err := instances.Has(c.root, addr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrContractNotFound, addr)
	}
	c.contracts[addr] = contract
	return nil
}

// Instantiated reports whether addr has persisted contract state.
func (c *Chain) Instantiated(addr string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return instances.Has(c.root, addr)
}

// Instantiate registers contract at addr and runs its instantiate entry point.
func (c *Chain) Instantiate(ctx context.Context, sender, addr string, contract Contract, msg []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidAddress(addr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if contract == nil {
		return nil, fmt.Errorf("host: nil contract for %s", addr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contracts[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrContractExists, addr)
	}
	if ok, err := instances.Has(c.root, addr); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrContractExists, addr)
	}

	c.contracts[addr] = contract
	res, err := c.run(func(x *call, st store.Store) ([]byte, error) {
		info := ContractInfo{Address: addr, Creator: sender, Height: c.block.Height}
		if _, ok := contract.(IBCContract); ok {
			info.IBCPort = c.PortID(addr)
		}
		if err := instances.Save(st, addr, info); err != nil {
			return nil, err
		}
		resp, err := contract.Instantiate(c.deps(st, addr), c.env(addr), MessageInfo{Sender: sender}, msg)
		if err != nil {
			return nil, err
		}
		return x.finish(st, EventInstantiate, addr, resp)
	})
	if err != nil {
		delete(c.contracts, addr)
		return nil, err
	}
	log.Info().Str("chain", c.cfg.ChainID).Str("contract", addr).Msg("contract instantiated")
	return res, nil
}

// Contracts lists instantiated contracts in address order.
func (c *Chain) Contracts() ([]ContractInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, err := instances.Keys(c.root, store.Ascending)
	if err != nil {
		return nil, err
	}
	out := make([]ContractInfo, 0, len(keys))
	for _, k := range keys {
		info, _, err := instances.Load(c.root, k)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// Execute runs one top-level execute message. Nothing it wrote survives an error.
func (c *Chain) Execute(ctx context.Context, sender, addr string, msg []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run(func(x *call, st store.Store) ([]byte, error) {
		return x.execute(st, sender, addr, msg)
	})
}

// Query runs a read-only query. Writes made by the contract are dropped.
func (c *Chain) Query(ctx context.Context, addr string, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	contract, err := c.contract(addr)
	if err != nil {
		return nil, err
	}
	scratch := store.NewCache(c.root)
	defer scratch.Discard()
	return contract.Query(c.deps(scratch, addr), c.env(addr), msg)
}

// run executes fn on a fresh write cache over root and commits only on success.
// Callers hold c.mu.
func (c *Chain) run(fn func(x *call, st store.Store) ([]byte, error)) (*Result, error) {
	cache := store.NewCache(c.root)
	x := &call{chain: c}
	data, err := fn(x, cache)
	if err != nil {
		cache.Discard()
		return nil, err
	}
	if err := cache.Commit(); err != nil {
		return nil, fmt.Errorf("host: commit: %w", err)
	}
	c.observe(x.events)
	return &Result{Events: x.events, Data: data}, nil
}

func (c *Chain) observe(events []Event) {
	for _, e := range events {
		if e.Type != EventSendPacket {
			continue
		}
		channel, _ := e.Attr(AttrPacketSrcChannel)
		observability.RecordPacketSent(c.cfg.ChainID, channel)
	}
}

func (c *Chain) contract(addr string) (Contract, error) {
	contract, ok := c.contracts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, addr)
	}
	return contract, nil
}

// ibcContract resolves the contract that owns port.
func (c *Chain) ibcContract(port string) (string, IBCContract, error) {
	addr, ok := strings.CutPrefix(port, c.cfg.PortPrefix)
	if !ok {
		return "", nil, fmt.Errorf("%w: port %q", ErrContractNotFound, port)
	}
	contract, err := c.contract(addr)
	if err != nil {
		return "", nil, err
	}
	ibc, ok := contract.(IBCContract)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrNotIBCContract, addr)
	}
	return addr, ibc, nil
}

func (c *Chain) deps(st store.Store, addr string) Deps {
	return Deps{Storage: store.NewPrefixed(st, []byte("contract/"+addr+"/"))}
}

func (c *Chain) env(addr string) Env {
	return Env{Block: c.block, Contract: addr}
}
