// Package aggregate is the unit-of-work boundary for building a wallet's
// transaction history: it fans out to the network's source, merges and
// normalizes the raw records, sorts them, and persists the result
// best-effort.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chainhist/chainhist/internal/metrics"
	"github.com/chainhist/chainhist/internal/model"
	"github.com/chainhist/chainhist/internal/normalize"
	"github.com/chainhist/chainhist/internal/source"
	"github.com/chainhist/chainhist/internal/storage"
)

// ErrUnsupportedNetwork is returned when no source adapter is configured
// for the requested network.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// ErrAllSourcesFailed is returned when every issued fetch failed, so not
// even a partial result could be produced.
var ErrAllSourcesFailed = errors.New("all source fetches failed")

// Store is the durable-store surface the aggregator writes to.
type Store interface {
	UpsertTransactions(ctx context.Context, wallet string, txs []model.Transaction) (int, error)
}

// Options shape one aggregation run.
type Options struct {
	IncludeTokenTransfers bool
	Ascending             bool
	StartBlock            uint64
	EndBlock              uint64
	Page                  int
	PageSize              int
}

// Aggregator orchestrates per-network sources. Construct one per process
// and share it; all state is read-only after construction.
type Aggregator struct {
	sources  map[string]source.Source
	networks map[string]normalize.Network
	store    Store
	log      *slog.Logger
	mtr      *metrics.Metrics
}

// New builds an aggregator over the given sources. networks must carry an
// entry for every source key. store may be nil to disable persistence.
func New(sources map[string]source.Source, networks map[string]normalize.Network, store Store, log *slog.Logger, mtr *metrics.Metrics) (*Aggregator, error) {
	if log == nil {
		log = slog.Default()
	}
	for key := range sources {
		if _, ok := networks[key]; !ok {
			return nil, fmt.Errorf("network %s has a source but no chain facts", key)
		}
	}
	return &Aggregator{
		sources:  sources,
		networks: networks,
		store:    store,
		log:      log,
		mtr:      mtr,
	}, nil
}

// Aggregate fetches, normalizes, merges, and sorts the full activity set
// for address on network. The native and token fetches run concurrently;
// a failure in one degrades to an empty list for that source, and only
// when every issued fetch fails does the call error. On success the
// result is upserted into the store best-effort before returning.
func (a *Aggregator) Aggregate(ctx context.Context, address, network string, opts Options) ([]model.Transaction, error) {
	src, ok := a.sources[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}
	net := a.networks[network]
	a.mtr.Aggregations()

	fopts := source.FetchOptions{
		StartBlock: opts.StartBlock,
		EndBlock:   opts.EndBlock,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		Ascending:  opts.Ascending,
	}

	var native, tokens []model.RawRecord
	issued := 0

	var mu sync.Mutex
	failed := 0
	var firstErr error

	// errgroup is used as a join point only; fetch errors are recovered
	// locally so the slower fetch always completes.
	g, gctx := errgroup.WithContext(ctx)
	noteFailure := func(kind string, err error) {
		a.log.Warn("source fetch failed", "kind", kind, "network", network, "error", err)
		a.mtr.SourceError()
		mu.Lock()
		failed++
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	issued++
	g.Go(func() error {
		recs, err := src.FetchNative(gctx, address, fopts)
		if err != nil {
			noteFailure("native", err)
			return nil
		}
		native = recs
		return nil
	})
	if opts.IncludeTokenTransfers {
		issued++
		g.Go(func() error {
			recs, err := src.FetchTokenTransfers(gctx, address, fopts)
			if err != nil {
				noteFailure("token", err)
				return nil
			}
			tokens = recs
			return nil
		})
	}
	_ = g.Wait()

	if failed == issued {
		return nil, fmt.Errorf("%w: %s: %v", ErrAllSourcesFailed, network, firstErr)
	}

	merged := make([]model.Transaction, 0, len(native)+len(tokens))
	for _, raw := range native {
		merged = append(merged, normalize.Record(raw, address, net))
	}
	for _, raw := range tokens {
		merged = append(merged, normalize.Record(raw, address, net))
	}

	sortTransactions(merged, opts.Ascending)

	a.persist(ctx, address, merged)
	return merged, nil
}

// persist upserts the result in bounded chunks. Failures are logged and
// swallowed: the read path never depends on write success.
func (a *Aggregator) persist(ctx context.Context, address string, txs []model.Transaction) {
	if a.store == nil || len(txs) == 0 {
		return
	}
	for start := 0; start < len(txs); start += storage.MaxUpsertBatch {
		end := start + storage.MaxUpsertBatch
		if end > len(txs) {
			end = len(txs)
		}
		if _, err := a.store.UpsertTransactions(ctx, address, txs[start:end]); err != nil {
			a.log.Warn("persist transactions failed", "address", address, "count", end-start, "error", err)
			a.mtr.PersistFailure()
		}
	}
}

// sortTransactions orders by timestamp (descending by default), breaking
// timestamp ties with block number.
func sortTransactions(txs []model.Transaction, ascending bool) {
	sort.SliceStable(txs, func(i, j int) bool {
		ti, tj := txs[i], txs[j]
		if !ti.Timestamp.Equal(tj.Timestamp) {
			if ascending {
				return ti.Timestamp.Before(tj.Timestamp)
			}
			return ti.Timestamp.After(tj.Timestamp)
		}
		if ascending {
			return ti.BlockNumber < tj.BlockNumber
		}
		return ti.BlockNumber > tj.BlockNumber
	})
}
