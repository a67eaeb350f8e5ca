package news

import (
	"context"
	"sort"
	"strings"
)

// Aggregator produces a Digest from a set of ticker symbols.
//
// Two modes:
//
//   - Targeted (symbols non-empty): round-robin across the deduplicated,
//     order-preserving symbol list for min(6, symbolCount) rounds. Each
//     round accepts at most the first eligible candidate from its symbol's
//     feed, which bounds total output to the round count and keeps the
//     sampling fair across symbols instead of exhausting one symbol's feed.
//
//   - General (symbols empty): one general-market fetch, filtered to
//     complete articles, truncated to 6, then sorted by recency. The
//     truncate-then-sort order matters: it decides which 6 of a larger feed
//     survive when upstream timestamps are unordered.
//
// An article is eligible when headline, summary and URL are all non-empty
// and it does not match any already-accepted article by URL or headline.
type Aggregator struct {
	feed Feed
}

// NewAggregator creates an Aggregator over the given feed.
func NewAggregator(feed Feed) *Aggregator {
	return &Aggregator{feed: feed}
}

// AggregationError reports a failed news aggregation. Symbol names the first
// symbol whose fetch failed; it is empty for general-feed failures.
type AggregationError struct {
	Symbol string
	Err    error
}

func (e *AggregationError) Error() string {
	if e.Symbol != "" {
		return "news aggregation failed for " + e.Symbol + ": " + e.Err.Error()
	}
	return "news aggregation failed: " + e.Err.Error()
}

func (e *AggregationError) Unwrap() error { return e.Err }

// Aggregate builds a digest for the given symbols within the window.
//
// A failing symbol fetch skips that round and the aggregation degrades
// gracefully; it fails only when every round errored and nothing was
// collected, returning an AggregationError wrapping the first cause.
func (a *Aggregator) Aggregate(ctx context.Context, symbols []string, window Window) (Digest, error) {
	return a.aggregate(ctx, symbols, window, false)
}

// AggregateStrict behaves like Aggregate but propagates the first
// per-symbol fetch failure immediately, aborting the whole digest.
func (a *Aggregator) AggregateStrict(ctx context.Context, symbols []string, window Window) (Digest, error) {
	return a.aggregate(ctx, symbols, window, true)
}

func (a *Aggregator) aggregate(ctx context.Context, symbols []string, window Window, strict bool) (Digest, error) {
	clean := cleanSymbols(symbols)
	if len(clean) == 0 {
		return a.general(ctx)
	}

	rounds := len(clean)
	if rounds > MaxDigestArticles {
		rounds = MaxDigestArticles
	}

	accepted := make(Digest, 0, rounds)
	var firstErr *AggregationError
	failedRounds := 0

	for round := 0; round < rounds; round++ {
		symbol := clean[round%len(clean)]

		candidates, err := a.feed.CompanyNews(ctx, symbol, window.From, window.To)
		if err != nil {
			if strict {
				return nil, &AggregationError{Symbol: symbol, Err: err}
			}
			if firstErr == nil {
				firstErr = &AggregationError{Symbol: symbol, Err: err}
			}
			failedRounds++
			continue
		}

		for _, candidate := range candidates {
			if !candidate.complete() || accepted.contains(candidate) {
				continue
			}
			candidate.Symbol = symbol
			accepted = append(accepted, candidate)
			break
		}
	}

	if len(accepted) == 0 && failedRounds == rounds {
		return nil, firstErr
	}

	sortByRecency(accepted)
	return truncate(accepted), nil
}

func (a *Aggregator) general(ctx context.Context) (Digest, error) {
	articles, err := a.feed.GeneralNews(ctx)
	if err != nil {
		return nil, &AggregationError{Err: err}
	}

	filtered := make(Digest, 0, MaxDigestArticles)
	for _, article := range articles {
		if article.complete() {
			filtered = append(filtered, article)
		}
	}

	// Truncate before sorting: parity with the targeted mode is NOT wanted
	// here, the earliest 6 complete feed entries are kept regardless of
	// their timestamps.
	filtered = truncate(filtered)
	sortByRecency(filtered)
	return filtered, nil
}

func (d Digest) contains(candidate Article) bool {
	for _, a := range d {
		if a.matches(candidate) {
			return true
		}
	}
	return false
}

// cleanSymbols trims, uppercases, drops empties and deduplicates while
// preserving first-occurrence order.
func cleanSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func sortByRecency(d Digest) {
	sort.SliceStable(d, func(i, j int) bool {
		return d[i].PublishedAt.After(d[j].PublishedAt)
	})
}

func truncate(d Digest) Digest {
	if len(d) > MaxDigestArticles {
		return d[:MaxDigestArticles]
	}
	return d
}
