// Package feed pulls candidate articles from the feed source page by page.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

// Options bound a walk over the feed.
type Options struct {
	PageSize         int
	MaxFetch         int
	PageDelay        time.Duration
	RateLimitBackoff time.Duration
	MaxAttempts      int
}

// DefaultOptions mirror the provider's page limit and a polite request rate.
func DefaultOptions() Options {
	return Options{
		PageSize:         20,
		MaxFetch:         40,
		PageDelay:        time.Second,
		RateLimitBackoff: 30 * time.Second,
		MaxAttempts:      3,
	}
}

// StopReason tells why a walk ended.
type StopReason string

const (
	StopExhausted StopReason = "exhausted"
	StopBudget    StopReason = "fetch_budget"
	StopConsumer  StopReason = "consumer"
	StopEmptyPage StopReason = "empty_page"
	StopStalled   StopReason = "cursor_stalled"
)

// WalkStats summarizes a walk.
type WalkStats struct {
	Pages   int
	Fetched int
	Retries int
	Reason  StopReason
}

// Paginator drives FeedSource pagination.
type Paginator struct {
	source ports.FeedSource
	opts   Options
	sleep  ports.Sleeper
	logger *slog.Logger
}

// NewPaginator wires a feed source. A nil sleeper uses ports.Sleep.
func NewPaginator(source ports.FeedSource, opts Options, sleep ports.Sleeper, logger *slog.Logger) *Paginator {
	def := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if sleep == nil {
		sleep = ports.Sleep
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Paginator{source: source, opts: opts, sleep: sleep, logger: logger}
}

// Walk fetches candidates newest first and hands each to visit until visit returns
// false, the feed is exhausted or the fetch budget is spent.
func (p *Paginator) Walk(ctx context.Context, visit func(domain.Candidate) bool) (WalkStats, error) {
	var stats WalkStats
	if p.opts.MaxFetch <= 0 {
		stats.Reason = StopBudget
		return stats, nil
	}

	subs, err := p.source.Subscriptions(ctx)
	if err != nil {
		return stats, fmt.Errorf("get subscriptions: %w", err)
	}
	names := make(map[string]string, len(subs))
	for _, pub := range subs {
		names[pub.ID] = pub.Name
	}

	var cursor time.Time
	for {
		limit := min(p.opts.PageSize, p.opts.MaxFetch-stats.Fetched)

		if stats.Pages > 0 {
			if err := p.sleep(ctx, p.opts.PageDelay); err != nil {
				return stats, err
			}
		}

		p.logger.Debug("fetch page", "after", cursor, "limit", limit)
		page, retries, err := p.fetchWithRetry(ctx, limit, cursor)
		stats.Retries += retries
		if err != nil {
			return stats, err
		}
		stats.Pages++

		posts := page.Posts
		if len(posts) > limit {
			posts = posts[:limit]
		}
		if len(posts) == 0 {
			stats.Reason = StopEmptyPage
			if !page.More {
				stats.Reason = StopExhausted
			}
			return stats, nil
		}

		for _, post := range posts {
			stats.Fetched++
			if !visit(toCandidate(post, names)) {
				stats.Reason = StopConsumer
				return stats, nil
			}
		}

		next := posts[len(posts)-1].PostDate
		switch {
		case !page.More:
			p.logger.Debug("no more posts to return")
			stats.Reason = StopExhausted
			return stats, nil
		case stats.Fetched >= p.opts.MaxFetch:
			stats.Reason = StopBudget
			return stats, nil
		case !cursor.IsZero() && !next.Before(cursor):
			p.logger.Warn("feed cursor did not advance, stopping", "cursor", cursor, "next", next)
			stats.Reason = StopStalled
			return stats, nil
		}
		cursor = next
	}
}

func (p *Paginator) fetchWithRetry(ctx context.Context, limit int, after time.Time) (domain.PostPage, int, error) {
	retries := 0
	for attempt := 1; ; attempt++ {
		page, err := p.source.Posts(ctx, limit, after)
		if err == nil {
			return page, retries, nil
		}
		if !errors.Is(err, domain.ErrRateLimited) {
			return domain.PostPage{}, retries, fmt.Errorf("get posts: %w", err)
		}
		if attempt >= p.opts.MaxAttempts {
			return domain.PostPage{}, retries, fmt.Errorf("get posts after %d attempts: %w", attempt, err)
		}

		backoff := p.opts.RateLimitBackoff * time.Duration(attempt)
		p.logger.Warn("feed rate limited, backing off", "attempt", attempt, "backoff", backoff)
		if err := p.sleep(ctx, backoff); err != nil {
			return domain.PostPage{}, retries, err
		}
		retries++
	}
}

func toCandidate(post domain.Post, names map[string]string) domain.Candidate {
	pub := names[post.PublicationID]
	return domain.Candidate{
		ID:              post.ID,
		PublicationID:   post.PublicationID,
		PublicationName: pub,
		Title:           post.Title,
		SourceURL:       post.CanonicalURL,
		PublishedAt:     post.PostDate,
		RenderedName:    domain.DisplayName(pub, post.Title, post.ID),
	}
}
