// Package history is the public query surface over the aggregation
// engine: cache-first reads, durable-store fallback, pagination, search,
// and filtering. Every failure below this boundary degrades completeness
// before availability: history is advisory UI data, so this path never
// returns a hard error for a read.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainhist/chainhist/internal/aggregate"
	"github.com/chainhist/chainhist/internal/cache"
	"github.com/chainhist/chainhist/internal/metrics"
	"github.com/chainhist/chainhist/internal/model"
)

// ErrInvalidAddress is returned before any network I/O when the address
// does not match the network-native format.
var ErrInvalidAddress = errors.New("invalid address")

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Aggregator is the unit-of-work surface the facade drives.
type Aggregator interface {
	Aggregate(ctx context.Context, address, network string, opts aggregate.Options) ([]model.Transaction, error)
}

// Store is the fallback read surface.
type Store interface {
	GetTransactionsByAddress(ctx context.Context, wallet string) ([]model.Transaction, error)
	PendingByAddress(ctx context.Context, wallet string) ([]model.Transaction, error)
}

// Options shape one history query.
type Options struct {
	Page                  int
	PageSize              int
	IncludeTokenTransfers bool
	Ascending             bool
}

// Page is one paginated slice of a result set. Pages are 1-based.
type Page struct {
	Items      []model.Transaction `json:"items"`
	TotalCount int                 `json:"totalCount"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"pageSize"`
	HasMore    bool                `json:"hasMore"`
}

// Service ties the cache, aggregator, and durable store together.
type Service struct {
	agg   Aggregator
	store Store
	cache *cache.Cache
	log   *slog.Logger
	mtr   *metrics.Metrics
}

// NewService builds the facade. store may be nil, disabling the fallback
// path; cache may not be nil.
func NewService(agg Aggregator, store Store, c *cache.Cache, log *slog.Logger, mtr *metrics.Metrics) (*Service, error) {
	if agg == nil {
		return nil, errors.New("aggregator is required")
	}
	if c == nil {
		return nil, errors.New("cache is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{agg: agg, store: store, cache: c, log: log, mtr: mtr}, nil
}

// GetTransactionHistory returns one page of address's activity on
// network. Reads are cache-first; on a miss the aggregator runs and its
// full result set is cached. If aggregation fails the durable store is
// consulted, and if that also fails an empty page is returned rather
// than an error. The single exception is a malformed address, which is
// rejected before any I/O.
func (s *Service) GetTransactionHistory(ctx context.Context, address, network string, opts Options) (Page, error) {
	if !common.IsHexAddress(address) {
		return Page{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	address = strings.ToLower(address)
	opts = withDefaults(opts)

	key := cache.Key{
		Address:               address,
		Network:               network,
		Page:                  opts.Page,
		PageSize:              opts.PageSize,
		IncludeTokenTransfers: opts.IncludeTokenTransfers,
	}

	if data, ok := s.cache.Get(key); ok {
		s.mtr.CacheHit()
		return paginate(data, opts.Page, opts.PageSize), nil
	}
	s.mtr.CacheMiss()

	txs, err := s.agg.Aggregate(ctx, address, network, aggregate.Options{
		IncludeTokenTransfers: opts.IncludeTokenTransfers,
		Ascending:             opts.Ascending,
	})
	if err == nil {
		s.cache.Put(key, txs)
		return paginate(txs, opts.Page, opts.PageSize), nil
	}

	s.log.Warn("aggregation failed, falling back to store",
		"address", address, "network", network, "error", err)
	s.mtr.StoreFallback()

	if s.store == nil {
		return emptyPage(opts), nil
	}
	stored, serr := s.store.GetTransactionsByAddress(ctx, address)
	if serr != nil {
		s.log.Error("store fallback failed", "address", address, "error", serr)
		return emptyPage(opts), nil
	}
	return paginate(stored, opts.Page, opts.PageSize), nil
}

// Pending returns stored transactions still marked pending for address.
// Live sources cannot distinguish pending from absent, so this reads the
// durable store only.
func (s *Service) Pending(ctx context.Context, address string) ([]model.Transaction, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if s.store == nil {
		return []model.Transaction{}, nil
	}
	return s.store.PendingByAddress(ctx, strings.ToLower(address))
}

func withDefaults(opts Options) Options {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = defaultPageSize
	}
	if opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	return opts
}

func paginate(txs []model.Transaction, page, pageSize int) Page {
	total := len(txs)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	items := make([]model.Transaction, end-start)
	copy(items, txs[start:end])
	return Page{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		HasMore:    end < total,
	}
}

func emptyPage(opts Options) Page {
	return Page{Items: []model.Transaction{}, Page: opts.Page, PageSize: opts.PageSize}
}
