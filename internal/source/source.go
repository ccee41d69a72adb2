// Package source defines the strategy interface for obtaining raw
// on-chain activity for an address. Two implementations exist: an
// indexed explorer-API client and an RPC block scanner used when no
// indexed API is configured for a network.
package source

import (
	"context"
	"errors"

	"github.com/chainhist/chainhist/internal/model"
)

// ErrUnavailable wraps transport-level failures from either adapter.
var ErrUnavailable = errors.New("source unavailable")

// FetchOptions bound one logical fetch.
type FetchOptions struct {
	StartBlock uint64
	EndBlock   uint64 // 0 means latest
	Page       int
	PageSize   int
	Ascending  bool
}

// Source fetches raw activity for one address on one network. Adapters
// return records in near-source shape; all derivation is the
// normalizer's job.
type Source interface {
	// Network returns the network key this source serves.
	Network() string
	// FetchNative lists native-asset transfers touching address.
	FetchNative(ctx context.Context, address string, opts FetchOptions) ([]model.RawRecord, error)
	// FetchTokenTransfers lists token transfers touching address.
	// Adapters that cannot decode token movements return an empty list.
	FetchTokenTransfers(ctx context.Context, address string, opts FetchOptions) ([]model.RawRecord, error)
}
