package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config collects every runtime setting from the environment.
type Config struct {
	Port string

	// StoreBackend selects the workflow checkpoint store:
	// "memory", "sqlite" or "mysql".
	StoreBackend string
	SQLitePath   string
	MySQLDSN     string

	// DatabaseURL is the postgres accounts database (users + watchlists).
	DatabaseURL string

	FinnhubAPIKey string
	RedisURL      string
	NewsCacheTTL  time.Duration

	// Provider selects the inference backend: "google", "anthropic" or
	// "openai". The matching API key must be set.
	Provider        string
	GoogleAPIKey    string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	Model           string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	MaxParallel int
	EmitJSON    bool
}

func loadConfig() (Config, error) {
	cfg := Config{
		Port:            getenv("PORT", "8080"),
		StoreBackend:    getenv("STORE_BACKEND", "sqlite"),
		SQLitePath:      getenv("SQLITE_PATH", "notifier.db"),
		MySQLDSN:        os.Getenv("MYSQL_DSN"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		FinnhubAPIKey:   os.Getenv("FINNHUB_API_KEY"),
		RedisURL:        os.Getenv("REDIS_URL"),
		Provider:        getenv("INFERENCE_PROVIDER", "google"),
		GoogleAPIKey:    os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		Model:           os.Getenv("INFERENCE_MODEL"),
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPUsername:    os.Getenv("SMTP_USERNAME"),
		SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
		MailFrom:        getenv("MAIL_FROM", `"Signalist" <signalist@gmail.com>`),
		EmitJSON:        os.Getenv("EMIT_FORMAT") != "text",
	}

	var err error
	if cfg.SMTPPort, err = getenvInt("SMTP_PORT", 587); err != nil {
		return Config{}, err
	}
	if cfg.MaxParallel, err = getenvInt("MAX_PARALLEL", 4); err != nil {
		return Config{}, err
	}
	ttlSecs, err := getenvInt("NEWS_CACHE_TTL_SECONDS", 900)
	if err != nil {
		return Config{}, err
	}
	cfg.NewsCacheTTL = time.Duration(ttlSecs) * time.Second

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case "memory", "sqlite":
	case "mysql":
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required when STORE_BACKEND=mysql")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want memory, sqlite or mysql)", c.StoreBackend)
	}

	if c.FinnhubAPIKey == "" {
		return fmt.Errorf("FINNHUB_API_KEY is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required")
	}

	switch c.Provider {
	case "google":
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when INFERENCE_PROVIDER=google")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when INFERENCE_PROVIDER=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when INFERENCE_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown INFERENCE_PROVIDER %q (want google, anthropic or openai)", c.Provider)
	}

	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
