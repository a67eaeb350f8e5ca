// Package api exposes the HTTP surface: trigger endpoints for the two
// notification flows, run inspection, health and metrics.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalist/notifier/notify"
	"github.com/signalist/notifier/pipeline"
	"github.com/signalist/notifier/pipeline/store"
)

// Server handles the notifier's HTTP API.
type Server struct {
	svc   *notify.Service
	store store.Store
	reg   *prometheus.Registry
	log   *slog.Logger
}

// NewServer creates a Server. The registry may be nil to disable /metrics.
func NewServer(svc *notify.Service, st store.Store, reg *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, store: st, reg: reg, log: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	allowedOrigins := []string{"http://localhost:3000"}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))

	r.POST("/triggers/welcome", s.triggerWelcome)
	r.POST("/triggers/daily-news", s.triggerDailyNews)
	r.GET("/runs/:id", s.getRun)
	r.GET("/health", s.getHealth)
	if s.reg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))
	}

	return r
}

// EntityResponse is one entity's outcome within a run.
type EntityResponse struct {
	EntityID string `json:"entity_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// OutcomeResponse reports a finished run.
type OutcomeResponse struct {
	RunID    string           `json:"run_id"`
	Status   string           `json:"status"`
	Entities []EntityResponse `json:"entities"`
}

// StepResponse is one checkpointed step of a run.
type StepResponse struct {
	StepName  string `json:"step_name"`
	Status    string `json:"status"`
	Attempt   int    `json:"attempt"`
	LastError string `json:"last_error,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// RunResponse reports a stored run and its steps.
type RunResponse struct {
	ID        string         `json:"id"`
	Trigger   string         `json:"trigger"`
	Status    string         `json:"status"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Steps     []StepResponse `json:"steps"`
}

func (s *Server) triggerWelcome(c *gin.Context) {
	var ev notify.SignUpEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sign-up event: " + err.Error()})
		return
	}

	outcome, err := s.svc.TriggerWelcome(c.Request.Context(), ev)
	if err != nil {
		s.log.Error("welcome trigger failed", "email", ev.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toOutcomeResponse(outcome))
}

func (s *Server) triggerDailyNews(c *gin.Context) {
	outcome, err := s.svc.TriggerDailyDigest(c.Request.Context())
	if err != nil {
		s.log.Error("daily news trigger failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if outcome.RunID == "" {
		c.JSON(http.StatusOK, gin.H{"message": "no users for news email"})
		return
	}
	c.JSON(http.StatusOK, toOutcomeResponse(outcome))
}

func (s *Server) getRun(c *gin.Context) {
	id := c.Param("id")

	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		s.log.Error("run lookup failed", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "run lookup failed"})
		return
	}

	steps, err := s.store.ListSteps(c.Request.Context(), id)
	if err != nil {
		s.log.Error("step listing failed", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "step listing failed"})
		return
	}

	resp := RunResponse{
		ID:        run.ID,
		Trigger:   string(run.TriggerKind),
		Status:    string(run.Status),
		CreatedAt: run.CreatedAt.Format(time.RFC3339),
		UpdatedAt: run.UpdatedAt.Format(time.RFC3339),
		Steps:     make([]StepResponse, 0, len(steps)),
	}
	for _, st := range steps {
		resp.Steps = append(resp.Steps, StepResponse{
			StepName:  st.StepName,
			Status:    string(st.Status),
			Attempt:   st.Attempt,
			LastError: st.LastError,
			UpdatedAt: st.UpdatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toOutcomeResponse(outcome pipeline.RunOutcome) OutcomeResponse {
	resp := OutcomeResponse{
		RunID:    outcome.RunID,
		Status:   string(outcome.Status),
		Entities: make([]EntityResponse, 0, len(outcome.Entities)),
	}
	for _, e := range outcome.Entities {
		resp.Entities = append(resp.Entities, EntityResponse{
			EntityID: e.EntityID,
			Status:   string(e.Status),
			Error:    e.Error,
		})
	}
	return resp
}
