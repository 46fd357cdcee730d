package cache

import (
	"context"
	"time"

	"propos/internal/domain"
)

// SummaryCache holds rendered dashboard summaries. Low-stock results are
// never cached; they must always reflect the live ledger.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.DashboardSummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.DashboardSummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
