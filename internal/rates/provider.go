package rates

import (
	"context"
	"strings"
	"time"

	"supplierstock/internal/caching"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const cacheKey = "exchange_rates:latest"

type Fetcher interface {
	Latest(ctx context.Context) (Table, error)
}

// Provider converts between currencies using a base-relative table that is
// cached for ttl. A currency missing from the table counts as the base.
type Provider struct {
	fetcher Fetcher
	cache   caching.CacheService
	ttl     time.Duration
	logger  *zap.Logger
}

func NewProvider(fetcher Fetcher, cache caching.CacheService, ttl time.Duration, logger *zap.Logger) *Provider {
	return &Provider{fetcher: fetcher, cache: cache, ttl: ttl, logger: logger}
}

func (p *Provider) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	one := decimal.NewFromInt(1)
	if from == to || from == "" || to == "" {
		return one, nil
	}

	table := p.table(ctx)
	fromRate, ok := table[from]
	if !ok || fromRate.IsZero() {
		fromRate = one
	}
	toRate, ok := table[to]
	if !ok {
		toRate = one
	}
	return toRate.Div(fromRate), nil
}

// table never fails: without a cached or fetched table every rate is 1.
func (p *Provider) table(ctx context.Context) Table {
	var cached Table
	hit, err := p.cache.GetJSON(ctx, cacheKey, &cached)
	if err != nil {
		p.logger.Warn("exchange rate cache read failed", zap.Error(err))
	}
	if hit {
		return cached
	}

	table, err := p.fetcher.Latest(ctx)
	if err != nil {
		p.logger.Warn("failed to fetch exchange rates, using 1:1", zap.Error(err))
		return Table{}
	}
	if err := p.cache.SetJSON(ctx, cacheKey, table, p.ttl); err != nil {
		p.logger.Warn("exchange rate cache write failed", zap.Error(err))
	}
	p.logger.Info("fetched exchange rates", zap.Int("currencies", len(table)))
	return table
}
