// Package search fans a query out to the configured indexer providers,
// deduplicates and ranks the merged results, and caches responses.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"peerstream/internal/domain"
	"peerstream/internal/domain/ports"
	"peerstream/internal/metrics"
)

// maxConcurrentProviders bounds simultaneous provider queries so a long
// provider list cannot open an unbounded number of upstream connections.
const maxConcurrentProviders = 10

const (
	defaultTimeout = 10 * time.Second
	defaultLimit   = 25
	maxLimit       = 100
)

var ErrEmptyQuery = errors.New("query is required")

type Service struct {
	providers []ports.SearchProvider
	timeout   time.Duration
	cache     Cache
	logger    *slog.Logger
}

type Option func(*Service)

func WithCache(cache Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func NewService(providers []ports.SearchProvider, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	filtered := make([]ports.SearchProvider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	svc := &Service{
		providers: filtered,
		timeout:   defaultTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Search queries every provider concurrently and returns the merged,
// deduplicated results ordered by seeder count. Partial provider failures
// degrade to whatever succeeded; only when every provider fails does the
// call report an upstream error.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if len(s.providers) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", domain.ErrUpstream)
	}

	cacheKey := buildCacheKey(query, limit)
	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, cacheKey); err != nil {
			s.logger.Warn("search cache read failed", slog.String("error", err.Error()))
		} else if ok {
			metrics.SearchRequestsTotal.WithLabelValues("cache_hit").Inc()
			return cached, nil
		}
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	byKey := make(map[string]domain.SearchResult)
	var (
		mu     sync.Mutex
		failed int
	)

	sem := semaphore.NewWeighted(maxConcurrentProviders)
	var wg sync.WaitGroup
	for _, provider := range s.providers {
		wg.Add(1)
		go func(p ports.SearchProvider) {
			defer wg.Done()

			if err := sem.Acquire(runCtx, 1); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			items, err := p.Search(runCtx, query, limit)
			if err != nil {
				s.logger.Warn("search provider failed",
					slog.String("provider", p.Name()),
					slog.String("query", query),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			for _, item := range items {
				key := dedupeKey(item)
				existing, exists := byKey[key]
				if !exists || item.Seeders > existing.Seeders {
					byKey[key] = item
				}
			}
			mu.Unlock()
		}(provider)
	}
	wg.Wait()

	if failed == len(s.providers) {
		metrics.SearchRequestsTotal.WithLabelValues("upstream_error").Inc()
		return nil, fmt.Errorf("%w: all %d providers failed", domain.ErrUpstream, failed)
	}

	results := make([]domain.SearchResult, 0, len(byKey))
	for _, item := range byKey {
		results = append(results, item)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Seeders != results[j].Seeders {
			return results[i].Seeders > results[j].Seeders
		}
		if results[i].Leechers != results[j].Leechers {
			return results[i].Leechers > results[j].Leechers
		}
		return strings.ToLower(results[i].Title) < strings.ToLower(results[j].Title)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.Info("search completed",
		slog.String("query", query),
		slog.Int("results", len(results)),
		slog.Int("providersFailed", failed),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)
	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, results); err != nil {
			s.logger.Warn("search cache write failed", slog.String("error", err.Error()))
		}
	}
	return results, nil
}

// dedupeKey identifies a result by its infohash when one can be extracted
// from the magnet link, falling back to the normalized title.
func dedupeKey(item domain.SearchResult) string {
	if hash := infoHashFromMagnet(item.Magnet); hash != "" {
		return "hash:" + hash
	}
	return "title:" + normalizeQuery(item.Title)
}

func buildCacheKey(query string, limit int) string {
	return fmt.Sprintf("%s|%d", normalizeQuery(query), limit)
}
