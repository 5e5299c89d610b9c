// Package history persists terminal assessment responses for audit queries.
package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS assessment_history (
    id             UUID PRIMARY KEY,
    request_id     UUID NOT NULL,
    user_id        UUID NOT NULL,
    tenant_id      UUID NOT NULL,
    status         TEXT NOT NULL,
    decision       TEXT NOT NULL DEFAULT '',
    risk_level     TEXT NOT NULL,
    trust_score    DOUBLE PRECISION NOT NULL,
    response       JSONB NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_assessment_history_user
    ON assessment_history (user_id, created_at DESC);
`

// Postgres stores terminal responses in an assessment_history table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates the store over an existing pool.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "postgres pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the history table and index if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ensure history schema")
	}
	return nil
}

// Record inserts one terminal response. The full response is kept as JSONB
// next to the queryable columns.
func (p *Postgres) Record(ctx context.Context, resp *models.AssessmentResponse) error {
	if resp == nil {
		return dErrors.New(dErrors.CodeValidation, "response is required")
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode response")
	}

	createdAt := resp.CompletedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO assessment_history
			(id, request_id, user_id, tenant_id, status, decision, risk_level, trust_score, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		resp.ID.String(),
		resp.RequestID.String(),
		resp.UserID.String(),
		resp.TenantID.String(),
		string(resp.Status),
		string(resp.Decision),
		string(resp.RiskLevel),
		resp.TrustScore,
		payload,
		createdAt,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "insert assessment history")
	}
	return nil
}

// RecentByUser returns the user's most recent terminal responses, newest
// first.
func (p *Postgres) RecentByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.AssessmentResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
		SELECT response
		FROM assessment_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID.String(), limit,
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "query assessment history")
	}
	defer rows.Close()

	var results []*models.AssessmentResponse
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan assessment history")
		}
		var resp models.AssessmentResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode assessment history")
		}
		results = append(results, &resp)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "iterate assessment history")
	}
	return results, nil
}
