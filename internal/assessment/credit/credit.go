// Package credit consolidates answers from multiple credit providers into a
// single credit domain result.
package credit

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"trustplane/internal/assessment/models"
	"trustplane/internal/assessment/ports"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// Rating breakpoints over the averaged 0-1000 provider score.
const (
	ratingExcelente = 900
	ratingMuitoBom  = 800
	ratingBom       = 700
	ratingRegular   = 600
	ratingBaixo     = 500
)

// Service queries every configured provider concurrently and merges their
// answers. A provider failure skips its contribution; the assessment fails
// only when every provider failed.
type Service struct {
	providers []ports.CreditProvider
	logger    *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a credit consolidation service.
func New(providers []ports.CreditProvider, opts ...Option) (*Service, error) {
	if len(providers) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one credit provider is required")
	}
	s := &Service{providers: providers}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProviderNames lists the configured providers in registration order.
func (s *Service) ProviderNames() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Check fans out to every provider and consolidates. Scores are averaged
// across succeeding providers; negative flags are OR-ed (any provider raising
// a flag sets it on the consolidated result).
func (s *Service) Check(ctx context.Context, rc models.RequestContext, data *models.CreditData) (*models.CreditResult, error) {
	type outcome struct {
		result *models.CreditProviderResult
		err    error
		name   string
	}

	outcomes := make([]outcome, len(s.providers))
	var wg sync.WaitGroup
	for i, provider := range s.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := provider.CheckCredit(ctx, rc, data)
			outcomes[i] = outcome{result: result, err: err, name: provider.Name()}
		}()
	}
	wg.Wait()

	consolidated := &models.CreditResult{}
	var sum float64
	var failed []string
	for _, o := range outcomes {
		if o.err != nil {
			failed = append(failed, o.name)
			if s.logger != nil {
				s.logger.WarnContext(ctx, "credit provider failed",
					"provider", o.name,
					"user_id", rc.UserID,
					"error", o.err,
				)
			}
			continue
		}
		sum += o.result.Score
		consolidated.ProvidersConsulted = append(consolidated.ProvidersConsulted, o.name)
		consolidated.Blacklisted = consolidated.Blacklisted || o.result.Blacklisted
		consolidated.HasLegalIssues = consolidated.HasLegalIssues || o.result.HasLegalIssues
		consolidated.HasPendingDebts = consolidated.HasPendingDebts || o.result.HasPendingDebts
	}

	if len(consolidated.ProvidersConsulted) == 0 {
		return nil, dErrors.Newf(dErrors.CodeUnavailable,
			"all credit providers failed: %s", strings.Join(failed, ", "))
	}

	sort.Strings(consolidated.ProvidersConsulted)
	consolidated.Score = math.Round(sum / float64(len(consolidated.ProvidersConsulted)))
	consolidated.Rating = ratingFor(consolidated.Score)
	return consolidated, nil
}

func ratingFor(score float64) id.CreditRating {
	switch {
	case score >= ratingExcelente:
		return id.CreditRatingExcelente
	case score >= ratingMuitoBom:
		return id.CreditRatingMuitoBom
	case score >= ratingBom:
		return id.CreditRatingBom
	case score >= ratingRegular:
		return id.CreditRatingRegular
	case score >= ratingBaixo:
		return id.CreditRatingBaixo
	default:
		return id.CreditRatingMuitoBaixo
	}
}
