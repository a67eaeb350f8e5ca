package news

import (
	"context"
	"time"
)

// Feed is the upstream news collaborator the aggregator samples from.
type Feed interface {
	// CompanyNews returns candidate articles for one ticker within the
	// given time range, in the upstream's own order.
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]Article, error)

	// GeneralNews returns the general-market feed.
	GeneralNews(ctx context.Context) ([]Article, error)
}

// Window is the time range articles are sampled from.
type Window struct {
	From time.Time
	To   time.Time
}

// LastDays returns a window covering the past n days, ending now.
func LastDays(n int) Window {
	to := time.Now().UTC()
	return Window{From: to.AddDate(0, 0, -n), To: to}
}
