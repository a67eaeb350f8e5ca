package news

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// stubFeed serves canned articles per symbol and records fetch order.
type stubFeed struct {
	company map[string][]Article
	general []Article

	companyErr map[string]error
	generalErr error

	fetched []string
}

func (f *stubFeed) CompanyNews(_ context.Context, symbol string, _, _ time.Time) ([]Article, error) {
	f.fetched = append(f.fetched, symbol)
	if err := f.companyErr[symbol]; err != nil {
		return nil, err
	}
	return f.company[symbol], nil
}

func (f *stubFeed) GeneralNews(_ context.Context) ([]Article, error) {
	f.fetched = append(f.fetched, "general")
	if f.generalErr != nil {
		return nil, f.generalErr
	}
	return f.general, nil
}

func art(n int, published time.Time) Article {
	return Article{
		URL:         fmt.Sprintf("https://example.com/%d", n),
		Headline:    fmt.Sprintf("headline %d", n),
		Summary:     fmt.Sprintf("summary %d", n),
		PublishedAt: published,
	}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func window() Window { return Window{From: t0.AddDate(0, 0, -5), To: t0} }

func TestAggregator_Targeted(t *testing.T) {
	ctx := context.Background()

	t.Run("one article per symbol per round", func(t *testing.T) {
		feed := &stubFeed{company: map[string][]Article{
			"AAPL": {art(1, t0), art(2, t0)},
			"TSLA": {art(3, t0.Add(time.Hour))},
		}}
		d, err := NewAggregator(feed).Aggregate(ctx, []string{"AAPL", "TSLA"}, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(d) != 2 {
			t.Fatalf("digest size = %d, want 2 (one per symbol)", len(d))
		}
		// Sorted by recency: TSLA's newer article first.
		if d[0].Symbol != "TSLA" || d[1].Symbol != "AAPL" {
			t.Errorf("symbols = %s, %s; want TSLA, AAPL", d[0].Symbol, d[1].Symbol)
		}
		if d[1].Headline != "headline 1" {
			t.Errorf("AAPL round took %q, want the first eligible candidate", d[1].Headline)
		}
	})

	t.Run("symbols are cleaned and deduplicated preserving order", func(t *testing.T) {
		feed := &stubFeed{company: map[string][]Article{
			"AAPL": {art(1, t0)},
			"TSLA": {art(2, t0)},
		}}
		_, err := NewAggregator(feed).Aggregate(ctx, []string{" aapl ", "", "TSLA", "AAPL", "tsla"}, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		want := []string{"AAPL", "TSLA"}
		if len(feed.fetched) != len(want) {
			t.Fatalf("fetched %v, want %v", feed.fetched, want)
		}
		for i := range want {
			if feed.fetched[i] != want[i] {
				t.Errorf("fetch %d = %s, want %s", i, feed.fetched[i], want[i])
			}
		}
	})

	t.Run("rounds are capped at six", func(t *testing.T) {
		feed := &stubFeed{company: map[string][]Article{}}
		symbols := make([]string, 10)
		for i := range symbols {
			sym := fmt.Sprintf("SYM%d", i)
			symbols[i] = sym
			feed.company[sym] = []Article{art(i, t0.Add(time.Duration(i)*time.Minute))}
		}
		d, err := NewAggregator(feed).Aggregate(ctx, symbols, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(feed.fetched) != MaxDigestArticles {
			t.Errorf("made %d fetches, want %d", len(feed.fetched), MaxDigestArticles)
		}
		if len(d) != MaxDigestArticles {
			t.Errorf("digest size = %d, want %d", len(d), MaxDigestArticles)
		}
	})

	t.Run("duplicates by url or headline are rejected", func(t *testing.T) {
		shared := art(1, t0)
		sameURL := Article{URL: shared.URL, Headline: "different headline", Summary: "s", PublishedAt: t0}
		sameHeadline := Article{URL: "https://example.com/other", Headline: shared.Headline, Summary: "s", PublishedAt: t0}

		feed := &stubFeed{company: map[string][]Article{
			"AAPL": {shared},
			"TSLA": {sameURL, sameHeadline, art(2, t0)},
		}}
		d, err := NewAggregator(feed).Aggregate(ctx, []string{"AAPL", "TSLA"}, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(d) != 2 {
			t.Fatalf("digest size = %d, want 2", len(d))
		}
		for _, a := range d {
			if a.Symbol == "TSLA" && a.Headline != "headline 2" {
				t.Errorf("TSLA round took %q, want the first non-duplicate", a.Headline)
			}
		}
	})

	t.Run("incomplete candidates are skipped", func(t *testing.T) {
		feed := &stubFeed{company: map[string][]Article{
			"AAPL": {
				{URL: "https://example.com/1", Headline: "no summary", PublishedAt: t0},
				{Headline: "no url", Summary: "s", PublishedAt: t0},
				art(3, t0),
			},
		}}
		d, err := NewAggregator(feed).Aggregate(ctx, []string{"AAPL"}, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(d) != 1 || d[0].Headline != "headline 3" {
			t.Errorf("digest = %+v, want only the complete article", d)
		}
	})

	t.Run("digest is sorted newest first", func(t *testing.T) {
		feed := &stubFeed{company: map[string][]Article{
			"A": {art(1, t0.Add(1*time.Hour))},
			"B": {art(2, t0.Add(3*time.Hour))},
			"C": {art(3, t0.Add(2*time.Hour))},
		}}
		d, err := NewAggregator(feed).Aggregate(ctx, []string{"A", "B", "C"}, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		for i := 1; i < len(d); i++ {
			if d[i].PublishedAt.After(d[i-1].PublishedAt) {
				t.Errorf("digest not sorted at %d: %v after %v", i, d[i].PublishedAt, d[i-1].PublishedAt)
			}
		}
	})

	t.Run("one failing symbol degrades gracefully", func(t *testing.T) {
		feed := &stubFeed{
			company:    map[string][]Article{"AAPL": {art(1, t0)}},
			companyErr: map[string]error{"TSLA": errors.New("rate limited")},
		}
		d, err := NewAggregator(feed).Aggregate(ctx, []string{"AAPL", "TSLA"}, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(d) != 1 || d[0].Symbol != "AAPL" {
			t.Errorf("digest = %+v, want AAPL's article only", d)
		}
	})

	t.Run("all symbols failing fails the aggregation", func(t *testing.T) {
		cause := errors.New("rate limited")
		feed := &stubFeed{companyErr: map[string]error{"AAPL": cause, "TSLA": cause}}
		_, err := NewAggregator(feed).Aggregate(ctx, []string{"AAPL", "TSLA"}, window())

		var aggErr *AggregationError
		if !errors.As(err, &aggErr) {
			t.Fatalf("got %v, want AggregationError", err)
		}
		if aggErr.Symbol != "AAPL" {
			t.Errorf("error names %s, want first failing symbol AAPL", aggErr.Symbol)
		}
		if !errors.Is(err, cause) {
			t.Error("cause not wrapped")
		}
	})

	t.Run("strict mode aborts on the first failure", func(t *testing.T) {
		feed := &stubFeed{
			company:    map[string][]Article{"AAPL": {art(1, t0)}},
			companyErr: map[string]error{"TSLA": errors.New("rate limited")},
		}
		_, err := NewAggregator(feed).AggregateStrict(ctx, []string{"AAPL", "TSLA"}, window())
		var aggErr *AggregationError
		if !errors.As(err, &aggErr) {
			t.Fatalf("got %v, want AggregationError", err)
		}
		if aggErr.Symbol != "TSLA" {
			t.Errorf("error names %s, want TSLA", aggErr.Symbol)
		}
	})

	t.Run("empty feeds yield an empty digest without error", func(t *testing.T) {
		feed := &stubFeed{company: map[string][]Article{}}
		d, err := NewAggregator(feed).Aggregate(ctx, []string{"AAPL"}, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(d) != 0 {
			t.Errorf("digest = %+v, want empty", d)
		}
	})
}

func TestAggregator_General(t *testing.T) {
	ctx := context.Background()

	t.Run("empty symbols fall back to the general feed", func(t *testing.T) {
		feed := &stubFeed{general: []Article{art(1, t0)}}
		d, err := NewAggregator(feed).Aggregate(ctx, nil, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(feed.fetched) != 1 || feed.fetched[0] != "general" {
			t.Errorf("fetched %v, want one general fetch", feed.fetched)
		}
		if len(d) != 1 || d[0].Symbol != "" {
			t.Errorf("digest = %+v", d)
		}
	})

	t.Run("whitespace-only symbols count as empty", func(t *testing.T) {
		feed := &stubFeed{general: []Article{art(1, t0)}}
		_, err := NewAggregator(feed).Aggregate(ctx, []string{"  ", ""}, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(feed.fetched) != 1 || feed.fetched[0] != "general" {
			t.Errorf("fetched %v, want general only", feed.fetched)
		}
	})

	t.Run("truncates to the first six complete articles then sorts", func(t *testing.T) {
		// Eight complete articles with ascending timestamps: the first six
		// feed entries survive, so the two newest items (7, 8) are cut
		// even though a sort-first order would keep them.
		var articles []Article
		for i := 1; i <= 8; i++ {
			articles = append(articles, art(i, t0.Add(time.Duration(i)*time.Hour)))
		}
		feed := &stubFeed{general: articles}

		d, err := NewAggregator(feed).Aggregate(ctx, nil, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(d) != MaxDigestArticles {
			t.Fatalf("digest size = %d, want %d", len(d), MaxDigestArticles)
		}
		if d[0].Headline != "headline 6" {
			t.Errorf("newest kept = %q, want headline 6", d[0].Headline)
		}
		for _, a := range d {
			if a.Headline == "headline 7" || a.Headline == "headline 8" {
				t.Errorf("article %q survived truncation, want it cut", a.Headline)
			}
		}
	})

	t.Run("incomplete articles are filtered before truncation", func(t *testing.T) {
		feed := &stubFeed{general: []Article{
			{Headline: "no url", Summary: "s", PublishedAt: t0},
			art(1, t0),
		}}
		d, err := NewAggregator(feed).Aggregate(ctx, nil, window())
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if len(d) != 1 || d[0].Headline != "headline 1" {
			t.Errorf("digest = %+v", d)
		}
	})

	t.Run("general feed failure fails the aggregation", func(t *testing.T) {
		cause := errors.New("upstream down")
		feed := &stubFeed{generalErr: cause}
		_, err := NewAggregator(feed).Aggregate(ctx, nil, window())

		var aggErr *AggregationError
		if !errors.As(err, &aggErr) {
			t.Fatalf("got %v, want AggregationError", err)
		}
		if aggErr.Symbol != "" {
			t.Errorf("general failure names symbol %q, want none", aggErr.Symbol)
		}
		if !errors.Is(err, cause) {
			t.Error("cause not wrapped")
		}
	})
}
