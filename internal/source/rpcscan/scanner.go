// Package rpcscan implements the fallback source strategy for networks
// without an indexed API: it walks a bounded window of recent blocks over
// raw RPC and filters transactions touching the queried address.
//
// The window (at most MaxScanBlocks) is a recency heuristic, not
// exhaustive history; consumers needing completeness must use a network
// with an indexed API. The scanner only surfaces native-asset transfers;
// it does not decode token-transfer event logs.
package rpcscan

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chainhist/chainhist/internal/model"
	"github.com/chainhist/chainhist/internal/ratelimit"
	"github.com/chainhist/chainhist/internal/source"
)

// MaxScanBlocks caps the backward walk to bound per-query RPC cost.
const MaxScanBlocks = 100

const defaultTimeout = 10 * time.Second

// BlockClient captures the subset of ethclient used by the scanner.
type BlockClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

// RPCClient is a thin wrapper over ethclient.Client that satisfies BlockClient.
type RPCClient struct {
	*ethclient.Client
}

// NewRPCClient builds an RPC client to an EVM node.
func NewRPCClient(rpcURL string) (*RPCClient, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return &RPCClient{Client: c}, nil
}

// Scanner walks recent blocks backward looking for transactions where
// the queried address is sender or recipient.
type Scanner struct {
	client    BlockClient
	network   string
	signer    types.Signer
	limiter   *ratelimit.Limiter
	maxBlocks int
	timeout   time.Duration
	log       *slog.Logger
}

// Config holds the scan parameters for one network.
type Config struct {
	Network   string
	ChainID   uint64
	MaxBlocks int // 0 or >MaxScanBlocks clamps to MaxScanBlocks
	Timeout   time.Duration
}

// NewScanner builds a scanner for a network. The whole walk is treated as
// one logical call for rate limiting: every block fetch targets the same
// endpoint, so one slot is acquired up front rather than per block.
func NewScanner(client BlockClient, cfg Config, limiter *ratelimit.Limiter, log *slog.Logger) (*Scanner, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.Network == "" {
		return nil, fmt.Errorf("network is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	maxBlocks := cfg.MaxBlocks
	if maxBlocks <= 0 || maxBlocks > MaxScanBlocks {
		maxBlocks = MaxScanBlocks
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{
		client:    client,
		network:   cfg.Network,
		signer:    types.LatestSignerForChainID(new(big.Int).SetUint64(cfg.ChainID)),
		limiter:   limiter,
		maxBlocks: maxBlocks,
		timeout:   timeout,
		log:       log,
	}, nil
}

// Network returns the network key this scanner serves.
func (s *Scanner) Network() string { return s.network }

// FetchNative walks the most recent blocks and returns native transfers
// touching address. Individual block failures are logged and skipped;
// the scan degrades to partial results rather than failing outright.
func (s *Scanner) FetchNative(ctx context.Context, address string, opts source.FetchOptions) ([]model.RawRecord, error) {
	if err := s.limiter.Acquire(ctx, s.network); err != nil {
		return nil, err
	}

	latest, err := s.blockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: latest block: %v", source.ErrUnavailable, err)
	}

	wallet := strings.ToLower(address)
	records := []model.RawRecord{}

	for i := 0; i < s.maxBlocks; i++ {
		n := latest - uint64(i)
		block, err := s.blockByNumber(ctx, n)
		if err != nil {
			s.log.Warn("skipping block", "network", s.network, "block", n, "error", err)
			continue
		}
		for _, tx := range block.Transactions() {
			rec, ok := s.match(tx, block, wallet)
			if ok {
				records = append(records, rec)
			}
		}
		if n == 0 {
			break
		}
	}

	return records, nil
}

// FetchTokenTransfers always returns an empty list: the scanner does not
// decode token-transfer event logs.
func (s *Scanner) FetchTokenTransfers(ctx context.Context, address string, opts source.FetchOptions) ([]model.RawRecord, error) {
	return []model.RawRecord{}, nil
}

// Ping checks RPC connectivity.
func (s *Scanner) Ping(ctx context.Context) error {
	_, err := s.blockNumber(ctx)
	return err
}

func (s *Scanner) blockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.BlockNumber(ctx)
}

func (s *Scanner) blockByNumber(ctx context.Context, n uint64) (*types.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
}

// match filters one transaction against wallet and converts it to a raw
// record. GasUsed is left empty: the scanner does not fetch receipts, so
// the fee stays absent rather than guessed.
func (s *Scanner) match(tx *types.Transaction, block *types.Block, wallet string) (model.RawRecord, bool) {
	var from string
	if sender, err := types.Sender(s.signer, tx); err == nil {
		from = strings.ToLower(sender.Hex())
	}

	var to string
	if tx.To() != nil {
		to = strings.ToLower(tx.To().Hex())
	}

	if from != wallet && to != wallet {
		return model.RawRecord{}, false
	}

	return model.RawRecord{
		Hash:        tx.Hash().Hex(),
		From:        from,
		To:          to,
		Value:       tx.Value().String(),
		BlockNumber: block.NumberU64(),
		TimeStamp:   int64(block.Time()),
		GasPrice:    tx.GasPrice().String(),
	}, true
}
