package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresDirectory reads accounts and watchlists from the application
// database.
type PostgresDirectory struct {
	db *sql.DB
}

// OpenPostgres connects to the accounts database and verifies the
// connection. The caller owns the directory and should Close it when done.
func OpenPostgres(connStr string) (*PostgresDirectory, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresDirectory{db: db}, nil
}

// NewPostgresDirectory wraps an existing connection pool.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// ListAll implements Directory.
func (d *PostgresDirectory) ListAll(ctx context.Context) ([]User, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, email, name,
		       COALESCE(country, ''),
		       COALESCE(investment_goals, ''),
		       COALESCE(risk_tolerance, ''),
		       COALESCE(preferred_industry, '')
		FROM users
		WHERE email IS NOT NULL AND email <> ''
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Country, &u.InvestmentGoals, &u.RiskTolerance, &u.PreferredIndustry)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// WatchlistSymbols implements Directory.
func (d *PostgresDirectory) WatchlistSymbols(ctx context.Context, email string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT w.symbol
		FROM watchlist w
		JOIN users u ON u.id = w.user_id
		WHERE u.email = $1
		ORDER BY w.added_at ASC
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan watchlist: %w", err)
		}
		symbols = append(symbols, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	return symbols, nil
}

// Close releases the underlying connection pool.
func (d *PostgresDirectory) Close() error {
	return d.db.Close()
}
