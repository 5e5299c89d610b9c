//go:build integration

package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustplane/internal/assessment/models"
	"trustplane/internal/assessment/store/history"
	id "trustplane/pkg/domain"
	"trustplane/pkg/testutil/containers"
)

type PostgresHistorySuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *history.Postgres
}

func TestPostgresHistorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresHistorySuite))
}

func (s *PostgresHistorySuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	store, err := history.NewPostgres(s.pg.Pool)
	s.Require().NoError(err)
	s.Require().NoError(store.EnsureSchema(context.Background()))
	s.store = store
}

func (s *PostgresHistorySuite) SetupTest() {
	_, err := s.pg.Pool.Exec(context.Background(), "TRUNCATE assessment_history")
	s.Require().NoError(err)
}

func terminalResponse(userID id.UserID, completedAt time.Time) *models.AssessmentResponse {
	return &models.AssessmentResponse{
		ID:          id.NewRequestID(),
		RequestID:   id.NewRequestID(),
		UserID:      userID,
		TenantID:    id.NewTenantID(),
		Status:      id.StatusCompleted,
		RiskLevel:   id.RiskLevelMedium,
		TrustScore:  61,
		Decision:    id.DecisionReview,
		CompletedAt: completedAt,
	}
}

func (s *PostgresHistorySuite) TestRecordAndRecentByUser() {
	ctx := context.Background()
	userID := id.NewUserID()
	base := time.Now().Add(-time.Hour)

	var newest *models.AssessmentResponse
	for i := 0; i < 3; i++ {
		resp := terminalResponse(userID, base.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(s.store.Record(ctx, resp))
		newest = resp
	}
	s.Require().NoError(s.store.Record(ctx, terminalResponse(id.NewUserID(), base)))

	got, err := s.store.RecentByUser(ctx, userID, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 3, "other users' history excluded")
	s.Equal(newest.RequestID, got[0].RequestID, "newest first")
	s.Equal(id.DecisionReview, got[0].Decision)
}

func (s *PostgresHistorySuite) TestRecordIdempotentByID() {
	ctx := context.Background()
	resp := terminalResponse(id.NewUserID(), time.Now())

	s.Require().NoError(s.store.Record(ctx, resp))
	s.Require().NoError(s.store.Record(ctx, resp))

	got, err := s.store.RecentByUser(ctx, resp.UserID, 10)
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *PostgresHistorySuite) TestRecentByUserLimit() {
	ctx := context.Background()
	userID := id.NewUserID()
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Record(ctx, terminalResponse(userID, time.Now())))
	}

	got, err := s.store.RecentByUser(ctx, userID, 2)
	s.Require().NoError(err)
	s.Len(got, 2)
}
