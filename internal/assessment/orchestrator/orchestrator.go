// Package orchestrator coordinates risk assessments: it validates requests,
// fans work out to the domain evaluators, consolidates the results, and
// manages caching, history, and completion events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trustplane/internal/assessment/consolidator"
	"trustplane/internal/assessment/events"
	"trustplane/internal/assessment/metrics"
	"trustplane/internal/assessment/models"
	"trustplane/internal/assessment/ports"
	"trustplane/internal/assessment/store/cache"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxConcurrent = 100
	defaultCacheTTL      = 30 * time.Minute
)

// CreditChecker is the consolidated multi-provider credit surface.
type CreditChecker interface {
	Check(ctx context.Context, rc models.RequestContext, data *models.CreditData) (*models.CreditResult, error)
	ProviderNames() []string
}

// Config tunes orchestrator behavior.
type Config struct {
	DefaultTimeout time.Duration
	// Parallel false degrades domain dispatch to sequential execution.
	Parallel      bool
	MaxConcurrent int
	EnableCaching bool
	CacheTTL      time.Duration
	// EnabledRegions restricts which request regions are accepted. Empty
	// means no restriction.
	EnabledRegions []id.Region
}

// Deps are the collaborators the orchestrator drives. Identity, Credit,
// Fraud, Compliance, Risk, and Consolidator are required; the rest are
// optional features.
type Deps struct {
	Identity     ports.IdentityEvaluator
	Credit       CreditChecker
	Fraud        ports.FraudEngine
	Compliance   ports.ComplianceChecker
	Risk         ports.RiskEngine
	Consolidator *consolidator.Consolidator

	Cache   ports.ResponseCache
	Events  ports.EventPublisher
	History ports.HistoryStore
	Agents  ports.AgentDirectory
}

// activeAssessment tracks one in-flight request so status polls and
// cancellation can reach it.
type activeAssessment struct {
	resp   *models.AssessmentResponse
	cancel context.CancelFunc
}

// Orchestrator is the assessment façade.
type Orchestrator struct {
	cfg  Config
	deps Deps

	activeMu sync.Mutex
	active   map[id.RequestID]*activeAssessment

	sem chan struct{}

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a logger for the orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates the orchestrator.
func New(cfg Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Identity == nil:
		return nil, dErrors.New(dErrors.CodeValidation, "identity evaluator is required")
	case deps.Credit == nil:
		return nil, dErrors.New(dErrors.CodeValidation, "credit checker is required")
	case deps.Fraud == nil:
		return nil, dErrors.New(dErrors.CodeValidation, "fraud engine is required")
	case deps.Compliance == nil:
		return nil, dErrors.New(dErrors.CodeValidation, "compliance checker is required")
	case deps.Risk == nil:
		return nil, dErrors.New(dErrors.CodeValidation, "risk engine is required")
	case deps.Consolidator == nil:
		return nil, dErrors.New(dErrors.CodeValidation, "consolidator is required")
	}

	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.EnableCaching && deps.Cache == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "caching enabled but no cache configured")
	}

	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		active: make(map[id.RequestID]*activeAssessment),
		sem:    make(chan struct{}, cfg.MaxConcurrent),
		logger: slog.Default(),
		tracer: otel.Tracer("trustplane/assessment"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RequestAssessment runs one assessment end to end and returns the terminal
// response. The returned response is terminal even when domains failed;
// transport-level errors are reserved for invalid requests and capacity or
// cache-path failures.
func (o *Orchestrator) RequestAssessment(ctx context.Context, req *models.AssessmentRequest) (*models.AssessmentResponse, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}
	normalizeRequest(req)

	ctx, span := o.tracer.Start(ctx, "assessment.request",
		trace.WithAttributes(
			attribute.String("request.id", req.RequestID.String()),
			attribute.String("tenant.id", req.TenantID.String()),
		))
	defer span.End()

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUnavailable, "orchestrator at capacity")
	}

	if o.cfg.EnableCaching && !req.Options.ForceRefresh {
		key := cache.ScopedKey(req.UserID, req.TenantID, req.RequestID)
		cached, found, err := o.deps.Cache.Get(ctx, key)
		switch {
		case err != nil:
			o.metrics.IncrementCacheLookup("error")
			o.logger.WarnContext(ctx, "cache lookup failed, proceeding without",
				"request_id", req.RequestID, "error", err)
		case found:
			o.metrics.IncrementCacheLookup("hit")
			return cached, nil
		default:
			o.metrics.IncrementCacheLookup("miss")
		}
	} else if o.cfg.EnableCaching {
		o.metrics.IncrementCacheLookup("bypass")
	}

	timeout := o.cfg.DefaultTimeout
	if req.Options.TimeoutSeconds > 0 {
		timeout = time.Duration(req.Options.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp := models.NewResponse(req)

	o.activeMu.Lock()
	if _, exists := o.active[req.RequestID]; exists {
		o.activeMu.Unlock()
		return nil, dErrors.Newf(dErrors.CodeConflict, "request %s is already being processed", req.RequestID)
	}
	o.active[req.RequestID] = &activeAssessment{resp: resp, cancel: cancel}
	o.activeMu.Unlock()
	defer func() {
		o.activeMu.Lock()
		delete(o.active, req.RequestID)
		o.activeMu.Unlock()
	}()

	done := o.metrics.TrackActive()
	defer done()
	start := time.Now()

	failed := o.dispatch(runCtx, req, resp)
	o.finalize(runCtx, req, resp, failed, start)

	o.metrics.ObserveRequestLatency(time.Since(start))
	o.metrics.IncrementOutcome(string(resp.Status), string(resp.Decision))
	ports.LogAudit(ctx, o.logger, "assessment finished",
		"request_id", resp.RequestID,
		"user_id", resp.UserID,
		"tenant_id", resp.TenantID,
		"status", resp.Status,
		"decision", resp.Decision,
		"trust_score", resp.TrustScore,
		"risk_level", resp.RiskLevel,
	)

	o.persist(ctx, resp)
	return resp, nil
}

// GetAssessmentStatus returns the in-flight or cached response for a request.
func (o *Orchestrator) GetAssessmentStatus(ctx context.Context, requestID id.RequestID) (*models.AssessmentResponse, error) {
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "request id is required")
	}

	o.activeMu.Lock()
	entry, inFlight := o.active[requestID]
	o.activeMu.Unlock()
	if inFlight {
		return entry.resp.Clone(), nil
	}

	if o.cfg.EnableCaching {
		cached, found, err := o.deps.Cache.Get(ctx, cache.RequestKey(requestID))
		if err != nil {
			return nil, err
		}
		if found {
			return cached, nil
		}
	}
	return nil, dErrors.Newf(dErrors.CodeNotFound, "assessment %s not found", requestID)
}

// CancelAssessment cancels an in-flight assessment. The cancelled response is
// cached as terminal so later status polls see it.
func (o *Orchestrator) CancelAssessment(ctx context.Context, requestID id.RequestID) error {
	if requestID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "request id is required")
	}

	o.activeMu.Lock()
	entry, inFlight := o.active[requestID]
	o.activeMu.Unlock()

	if !inFlight {
		if o.cfg.EnableCaching {
			if _, found, err := o.deps.Cache.Get(ctx, cache.RequestKey(requestID)); err == nil && found {
				return dErrors.Newf(dErrors.CodeConflict, "assessment %s already finished", requestID)
			}
		}
		return dErrors.Newf(dErrors.CodeNotFound, "assessment %s not found", requestID)
	}

	entry.resp.Update(func(r *models.AssessmentResponse) {
		if !r.Status.IsTerminal() {
			r.Status = id.StatusCancelled
			r.CompletedAt = time.Now()
		}
	})
	entry.cancel()

	ports.LogAudit(ctx, o.logger, "assessment cancelled", "request_id", requestID)
	return nil
}

// BatchRequestAssessment processes requests concurrently and returns responses
// in request order. A failed element leaves a nil slot and contributes to the
// aggregate error; other elements are unaffected.
func (o *Orchestrator) BatchRequestAssessment(ctx context.Context, reqs []*models.AssessmentRequest) ([]*models.AssessmentResponse, error) {
	if len(reqs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch is empty")
	}

	responses := make([]*models.AssessmentResponse, len(reqs))
	errs := make([]error, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := o.RequestAssessment(ctx, req)
			responses[i] = resp
			if err != nil {
				errs[i] = dErrors.Wrap(err, dErrors.CodeOf(err), fmt.Sprintf("batch element %d", i))
			}
		}()
	}
	wg.Wait()

	return responses, joinErrors(errs)
}

// GetCreditProviders lists the configured credit providers.
func (o *Orchestrator) GetCreditProviders() []string {
	return o.deps.Credit.ProviderNames()
}

// Agents lists the registered evaluation agents, when a directory is wired.
func (o *Orchestrator) Agents() []models.AgentInfo {
	if o.deps.Agents == nil {
		return nil
	}
	return o.deps.Agents.List()
}

// ActiveCount reports how many assessments are currently in flight.
func (o *Orchestrator) ActiveCount() int {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	return len(o.active)
}

// persist caches the terminal response, records history, and publishes the
// completion event. All three are best-effort.
func (o *Orchestrator) persist(ctx context.Context, resp *models.AssessmentResponse) {
	if o.cfg.EnableCaching {
		for _, key := range cache.Keys(resp) {
			if err := o.deps.Cache.Set(ctx, key, resp, o.cfg.CacheTTL); err != nil {
				o.logger.WarnContext(ctx, "failed to cache response",
					"request_id", resp.RequestID, "key", key, "error", err)
			}
		}
	}
	if o.deps.History != nil {
		if err := o.deps.History.Record(ctx, resp); err != nil {
			o.logger.WarnContext(ctx, "failed to record assessment history",
				"request_id", resp.RequestID, "error", err)
		}
	}
	if o.deps.Events != nil {
		event := events.FromResponse(resp)
		go func() {
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := o.deps.Events.PublishCompleted(pubCtx, event); err != nil {
				o.logger.Warn("failed to publish completion event",
					"request_id", event.RequestID, "error", err)
			}
		}()
	}
}

func (o *Orchestrator) validateRequest(req *models.AssessmentRequest) error {
	if req == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if req.UserID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if req.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	if len(req.Types) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one assessment type is required")
	}
	for _, t := range req.Types {
		if !t.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "unsupported assessment type: %s", t)
		}
	}
	if !req.Region.IsNil() && len(o.cfg.EnabledRegions) > 0 && !regionEnabled(o.cfg.EnabledRegions, req.Region) {
		return dErrors.Newf(dErrors.CodeValidation, "region %s is not enabled for this deployment", req.Region)
	}
	return nil
}

func regionEnabled(enabled []id.Region, region id.Region) bool {
	for _, r := range enabled {
		if r == region {
			return true
		}
	}
	return false
}

func normalizeRequest(req *models.AssessmentRequest) {
	if req.RequestID.IsNil() {
		req.RequestID = id.NewRequestID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
}

func joinErrors(errs []error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	return errors.Join(nonNil...)
}
