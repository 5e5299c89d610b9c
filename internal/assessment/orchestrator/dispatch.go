package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// Error codes surfaced in ErrorDetails.
const (
	errCodeAllDomainsFailed = "ALL_DOMAINS_FAILED"
	errCodePartialFailure   = "PARTIAL_FAILURE"
	errCodeMissingRequired  = "REQUIRED_RESULTS_MISSING"
)

// planFor expands the requested types into the independent domains plus
// whether the risk engine runs. Risk always runs last: it consumes the other
// domains' results as context.
func planFor(types []id.AssessmentType) (domains []id.AssessmentType, withRisk bool) {
	seen := map[id.AssessmentType]bool{}
	for _, t := range types {
		if t == id.AssessmentTypeComprehensive {
			return []id.AssessmentType{
				id.AssessmentTypeIdentity,
				id.AssessmentTypeCredit,
				id.AssessmentTypeFraud,
				id.AssessmentTypeCompliance,
			}, true
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		if t == id.AssessmentTypeRisk {
			withRisk = true
			continue
		}
		domains = append(domains, t)
	}
	return domains, withRisk
}

// dispatch runs the assessment plan against the response accumulator and
// returns the names of failed domains.
func (o *Orchestrator) dispatch(ctx context.Context, req *models.AssessmentRequest, resp *models.AssessmentResponse) []string {
	domains, withRisk := planFor(req.Types)

	var mu sync.Mutex
	var failed []string
	recordFailure := func(domain id.AssessmentType, err error) {
		mu.Lock()
		failed = append(failed, string(domain))
		mu.Unlock()
		o.logger.WarnContext(ctx, "domain evaluation failed",
			"request_id", req.RequestID,
			"domain", domain,
			"error", err,
		)
	}

	if o.cfg.Parallel {
		group, groupCtx := errgroup.WithContext(ctx)
		for _, domain := range domains {
			group.Go(func() error {
				if err := o.runDomain(groupCtx, domain, req, resp); err != nil {
					recordFailure(domain, err)
					if req.Options.FailFast {
						return err
					}
				}
				return nil
			})
		}
		// Error only propagates under FailFast; siblings are cancelled then.
		_ = group.Wait()
	} else {
		for _, domain := range domains {
			if ctx.Err() != nil {
				recordFailure(domain, ctx.Err())
				continue
			}
			if err := o.runDomain(ctx, domain, req, resp); err != nil {
				recordFailure(domain, err)
				if req.Options.FailFast {
					break
				}
			}
		}
	}

	if withRisk && !(req.Options.FailFast && len(failed) > 0) {
		if err := o.runDomain(ctx, id.AssessmentTypeRisk, req, resp); err != nil {
			recordFailure(id.AssessmentTypeRisk, err)
		}
	}

	sort.Strings(failed)
	return failed
}

// runDomain evaluates one domain and stores the result on the response.
func (o *Orchestrator) runDomain(ctx context.Context, domain id.AssessmentType, req *models.AssessmentRequest, resp *models.AssessmentResponse) error {
	ctx, span := o.tracer.Start(ctx, "assessment.domain",
		trace.WithAttributes(attribute.String("domain", string(domain))))
	defer span.End()

	start := time.Now()
	defer func() {
		o.metrics.ObserveDomainLatency(string(domain), time.Since(start))
	}()

	rc := req.Context()

	switch domain {
	case id.AssessmentTypeIdentity:
		result, err := o.deps.Identity.EvaluateIdentity(ctx, rc, req.Evidence.Identity)
		if err != nil {
			return err
		}
		resp.Update(func(r *models.AssessmentResponse) {
			r.Identity = result
			r.DataSources = append(r.DataSources, string(domain))
		})

	case id.AssessmentTypeCredit:
		result, err := o.deps.Credit.Check(ctx, rc, req.Evidence.Credit)
		if err != nil {
			return err
		}
		resp.Update(func(r *models.AssessmentResponse) {
			r.Credit = result
			r.DataSources = append(r.DataSources, string(domain))
		})

	case id.AssessmentTypeFraud:
		result, err := o.deps.Fraud.AnalyzeFraud(ctx, rc, &req.Evidence)
		if err != nil {
			return err
		}
		resp.Update(func(r *models.AssessmentResponse) {
			r.Fraud = result
			r.DataSources = append(r.DataSources, string(domain))
		})

	case id.AssessmentTypeCompliance:
		result, err := o.deps.Compliance.CheckCompliance(ctx, rc, req.Evidence.Identity)
		if err != nil {
			return err
		}
		resp.Update(func(r *models.AssessmentResponse) {
			r.Compliance = result
			r.DataSources = append(r.DataSources, string(domain))
		})

	case id.AssessmentTypeRisk:
		var snapshot models.DomainResults
		resp.Update(func(r *models.AssessmentResponse) {
			snapshot = r.Results()
		})
		result, err := o.deps.Risk.AssessRisk(ctx, rc, &req.Evidence, snapshot)
		if err != nil {
			return err
		}
		resp.Update(func(r *models.AssessmentResponse) {
			r.Risk = result
			r.DataSources = append(r.DataSources, string(domain))
		})

	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "unsupported domain: %s", domain)
	}
	return nil
}

// finalize rolls up status and error details, always runs the consolidator,
// and stamps timing. A cancellation observed mid-flight wins over the rollup.
func (o *Orchestrator) finalize(_ context.Context, req *models.AssessmentRequest, resp *models.AssessmentResponse, failed []string, start time.Time) {
	domains, withRisk := planFor(req.Types)
	total := len(domains)
	if withRisk {
		total++
	}

	resp.Update(func(r *models.AssessmentResponse) {
		o.deps.Consolidator.Consolidate(r)

		switch {
		case r.Status == id.StatusCancelled:
			// keep
		case len(failed) == total:
			// Nothing succeeded, so there is no basis for a decision.
			r.Status = id.StatusFailed
			r.Decision = ""
			r.RequiredActions = nil
			r.SuggestedActions = nil
			r.Error = &models.ErrorDetails{
				Code:           errCodeAllDomainsFailed,
				Message:        "every requested domain failed",
				FailedServices: failed,
				Retryable:      true,
			}
		case len(failed) > 0 && req.Options.RequireAllResults:
			r.Status = id.StatusFailed
			r.Error = &models.ErrorDetails{
				Code:           errCodeMissingRequired,
				Message:        "request required all results and some domains failed",
				FailedServices: failed,
				Retryable:      true,
			}
		case len(failed) > 0:
			r.Status = id.StatusCompleted
			r.Error = &models.ErrorDetails{
				Code:           errCodePartialFailure,
				Message:        "some domains failed, results are partial",
				FailedServices: failed,
				PartialResults: true,
				Retryable:      true,
			}
		default:
			r.Status = id.StatusCompleted
		}

		r.ProcessingTimeMillis = time.Since(start).Milliseconds()
		if r.CompletedAt.IsZero() {
			r.CompletedAt = time.Now()
		}
	})
}
