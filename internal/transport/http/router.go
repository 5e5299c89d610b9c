// Package httptransport exposes the orchestrator operations and the agent
// inbound endpoint over HTTP. Handlers stay thin: decode, delegate, encode.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trustplane/internal/agentcomm"
	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
)

// AssessmentService is the orchestrator surface the transport needs.
type AssessmentService interface {
	RequestAssessment(ctx context.Context, req *models.AssessmentRequest) (*models.AssessmentResponse, error)
	GetAssessmentStatus(ctx context.Context, requestID id.RequestID) (*models.AssessmentResponse, error)
	CancelAssessment(ctx context.Context, requestID id.RequestID) error
	BatchRequestAssessment(ctx context.Context, reqs []*models.AssessmentRequest) ([]*models.AssessmentResponse, error)
	GetCreditProviders() []string
	Agents() []models.AgentInfo
}

// MessageSink receives authenticated inbound agent messages.
type MessageSink interface {
	Deliver(msg *agentcomm.AgentMessage) error
}

// TokenValidator validates agent bearer tokens.
type TokenValidator interface {
	Validate(token string) (id.AgentID, error)
}

// Handler is the HTTP transport layer.
type Handler struct {
	service AssessmentService
	inbound MessageSink
	auth    TokenValidator
	logger  *slog.Logger
}

// New creates the transport handler. inbound and auth may be nil when the
// direct channel is disabled; the inbound endpoint then answers 503.
func New(service AssessmentService, inbound MessageSink, auth TokenValidator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, inbound: inbound, auth: auth, logger: logger}
}

// Router builds the chi router with all routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/assessments", h.handleRequestAssessment)
		r.Post("/assessments/batch", h.handleBatchAssessment)
		r.Get("/assessments/{id}", h.handleGetAssessment)
		r.Delete("/assessments/{id}", h.handleCancelAssessment)
		r.Get("/providers/credit", h.handleCreditProviders)
		r.Get("/agents", h.handleListAgents)
		r.Post("/agents/inbound", h.handleAgentInbound)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
