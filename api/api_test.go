package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalist/notifier/inference"
	"github.com/signalist/notifier/mail"
	"github.com/signalist/notifier/news"
	"github.com/signalist/notifier/notify"
	"github.com/signalist/notifier/pipeline"
	"github.com/signalist/notifier/pipeline/store"
	"github.com/signalist/notifier/users"
)

type staticFeed struct{ articles []news.Article }

func (f *staticFeed) CompanyNews(_ context.Context, _ string, _, _ time.Time) ([]news.Article, error) {
	return f.articles, nil
}

func (f *staticFeed) GeneralNews(_ context.Context) ([]news.Article, error) {
	return f.articles, nil
}

func newTestServer(t *testing.T) (*Server, *store.MemStore, *mail.MockSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemStore()
	sender := &mail.MockSender{}
	feed := &staticFeed{articles: []news.Article{{
		URL:         "https://example.com/a",
		Headline:    "Markets rally",
		Summary:     "Broad gains.",
		PublishedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}}
	directory := &users.MockDirectory{
		Users:      []users.User{{ID: "1", Email: "ada@example.com", Name: "Ada"}},
		Watchlists: map[string][]string{},
	}

	runner := pipeline.New(st, nil, pipeline.Options{})
	svc, err := notify.NewService(runner, news.NewAggregator(feed), &inference.MockClient{Responses: []string{"<p>copy</p>"}}, sender, directory, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewServer(svc, st, prometheus.NewRegistry(), nil), st, sender
}

func do(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestServer_TriggerWelcome(t *testing.T) {
	t.Run("valid event sends the email and reports the outcome", func(t *testing.T) {
		srv, _, sender := newTestServer(t)
		router := srv.Router()

		body := `{"entityId":"u-1","email":"ada@example.com","name":"Ada","country":"UK"}`
		w := do(t, router, http.MethodPost, "/triggers/welcome", body)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}

		var resp OutcomeResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.RunID != "welcome-u-1" {
			t.Errorf("run_id = %s", resp.RunID)
		}
		if resp.Status != string(store.RunSucceeded) {
			t.Errorf("status = %s", resp.Status)
		}
		if len(sender.Sent()) != 1 {
			t.Errorf("sent %d emails, want 1", len(sender.Sent()))
		}
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		w := do(t, srv.Router(), http.MethodPost, "/triggers/welcome", "{not json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("event without email is a 500 with error payload", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		w := do(t, srv.Router(), http.MethodPost, "/triggers/welcome", `{"entityId":"u-1"}`)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestServer_TriggerDailyNews(t *testing.T) {
	srv, _, sender := newTestServer(t)
	w := do(t, srv.Router(), http.MethodPost, "/triggers/daily-news", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp OutcomeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Entities) != 1 || resp.Entities[0].EntityID != "ada@example.com" {
		t.Errorf("entities = %+v", resp.Entities)
	}
	if len(sender.Sent()) != 1 {
		t.Errorf("sent %d emails, want 1", len(sender.Sent()))
	}
}

func TestServer_GetRun(t *testing.T) {
	t.Run("existing run reports status and steps", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		router := srv.Router()

		do(t, router, http.MethodPost, "/triggers/welcome", `{"entityId":"u-1","email":"ada@example.com","name":"Ada"}`)

		w := do(t, router, http.MethodGet, "/runs/welcome-u-1", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}

		var resp RunResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.ID != "welcome-u-1" {
			t.Errorf("id = %s", resp.ID)
		}
		if resp.Status != string(store.RunSucceeded) {
			t.Errorf("status = %s", resp.Status)
		}
		if len(resp.Steps) != 2 {
			t.Errorf("got %d steps, want 2 (intro + send)", len(resp.Steps))
		}
	})

	t.Run("unknown run is a 404", func(t *testing.T) {
		srv, _, _ := newTestServer(t)
		w := do(t, srv.Router(), http.MethodGet, "/runs/ghost", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(t, srv.Router(), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(t, srv.Router(), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
