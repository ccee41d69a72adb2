package health

import (
	"context"
	"fmt"
)

// Pinger is a source adapter that can verify upstream connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SourceChecker combines the health checks of every configured source.
type SourceChecker struct {
	sources map[string]Pinger
}

// NewSourceChecker creates a checker over network-keyed sources.
func NewSourceChecker(sources map[string]Pinger) *SourceChecker {
	return &SourceChecker{sources: sources}
}

// Ping checks all configured upstream endpoints.
func (c *SourceChecker) Ping(ctx context.Context) error {
	var lastErr error
	for id, src := range c.sources {
		if err := src.Ping(ctx); err != nil {
			lastErr = fmt.Errorf("source %s: %w", id, err)
			continue
		}
	}
	return lastErr
}
