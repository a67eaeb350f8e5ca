// Package users exposes the account directory the notification flows read
// from: who to email, the profile fields that personalize copy, and each
// account's watchlist.
package users

import "context"

// User is a single account as the directory reports it.
type User struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Country           string `json:"country,omitempty"`
	InvestmentGoals   string `json:"investmentGoals,omitempty"`
	RiskTolerance     string `json:"riskTolerance,omitempty"`
	PreferredIndustry string `json:"preferredIndustry,omitempty"`
}

// Directory provides read access to accounts and their watchlists.
//
// Implementations:
//   - PostgresDirectory: production directory backed by the accounts database
//   - MockDirectory: in-memory directory for tests
type Directory interface {
	// ListAll returns every account eligible for email notifications.
	// Accounts without an email address are not returned.
	ListAll(ctx context.Context) ([]User, error)

	// WatchlistSymbols returns the ticker symbols on the account's
	// watchlist. Unknown emails and empty watchlists both yield an empty
	// slice, not an error: a digest for such a user falls back to general
	// market news.
	WatchlistSymbols(ctx context.Context, email string) ([]string, error)
}
