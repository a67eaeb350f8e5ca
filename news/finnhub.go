package news

import (
	"context"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"github.com/signalist/notifier/pipeline"
)

// FinnhubFeed is a Feed backed by the Finnhub market-data API.
//
// Upstream failures are classified transient: the API surfaces rate limits
// and timeouts as request errors, and both clear on retry.
type FinnhubFeed struct {
	client *finnhub.DefaultApiService
}

// NewFinnhubFeed creates a Finnhub-backed feed using the given API key.
func NewFinnhubFeed(apiKey string) *FinnhubFeed {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	return &FinnhubFeed{client: finnhub.NewAPIClient(cfg).DefaultApi}
}

// CompanyNews fetches one ticker's articles within the window.
func (f *FinnhubFeed) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]Article, error) {
	res, _, err := f.client.CompanyNews(ctx).
		Symbol(symbol).
		From(from.Format("2006-01-02")).
		To(to.Format("2006-01-02")).
		Execute()
	if err != nil {
		return nil, pipeline.Transient("fetch company news for "+symbol, err)
	}

	articles := make([]Article, 0, len(res))
	for _, item := range res {
		articles = append(articles, Article{
			URL:         deref(item.Url),
			Headline:    deref(item.Headline),
			Summary:     deref(item.Summary),
			Publisher:   deref(item.Source),
			PublishedAt: unixTime(item.Datetime),
		})
	}
	return articles, nil
}

// GeneralNews fetches the general-market feed.
func (f *FinnhubFeed) GeneralNews(ctx context.Context) ([]Article, error) {
	res, _, err := f.client.MarketNews(ctx).Category("general").Execute()
	if err != nil {
		return nil, pipeline.Transient("fetch general market news", err)
	}

	articles := make([]Article, 0, len(res))
	for _, item := range res {
		articles = append(articles, Article{
			URL:         deref(item.Url),
			Headline:    deref(item.Headline),
			Summary:     deref(item.Summary),
			Publisher:   deref(item.Source),
			PublishedAt: unixTime(item.Datetime),
		})
	}
	return articles, nil
}

// The generated Finnhub models expose every field as a pointer.

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func unixTime(ts *int64) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return time.Unix(*ts, 0).UTC()
}
