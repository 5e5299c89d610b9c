package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustplane/internal/agentcomm"
	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

type fakeService struct {
	requestFn func(ctx context.Context, req *models.AssessmentRequest) (*models.AssessmentResponse, error)
	statusFn  func(ctx context.Context, requestID id.RequestID) (*models.AssessmentResponse, error)
	cancelFn  func(ctx context.Context, requestID id.RequestID) error
	batchFn   func(ctx context.Context, reqs []*models.AssessmentRequest) ([]*models.AssessmentResponse, error)
}

func (f *fakeService) RequestAssessment(ctx context.Context, req *models.AssessmentRequest) (*models.AssessmentResponse, error) {
	return f.requestFn(ctx, req)
}

func (f *fakeService) GetAssessmentStatus(ctx context.Context, requestID id.RequestID) (*models.AssessmentResponse, error) {
	return f.statusFn(ctx, requestID)
}

func (f *fakeService) CancelAssessment(ctx context.Context, requestID id.RequestID) error {
	return f.cancelFn(ctx, requestID)
}

func (f *fakeService) BatchRequestAssessment(ctx context.Context, reqs []*models.AssessmentRequest) ([]*models.AssessmentResponse, error) {
	return f.batchFn(ctx, reqs)
}

func (f *fakeService) GetCreditProviders() []string { return []string{"serasa", "spc"} }

func (f *fakeService) Agents() []models.AgentInfo { return nil }

type fakeSink struct {
	delivered []*agentcomm.AgentMessage
	err       error
}

func (f *fakeSink) Deliver(msg *agentcomm.AgentMessage) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, msg)
	return nil
}

func newTestHandler(svc *fakeService, sink MessageSink, auth TokenValidator) http.Handler {
	h := New(svc, sink, auth, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h.Router()
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestAssessment_OK(t *testing.T) {
	resp := &models.AssessmentResponse{
		RequestID:  id.NewRequestID(),
		Status:     id.StatusCompleted,
		Decision:   id.DecisionApprove,
		TrustScore: 82,
	}
	svc := &fakeService{
		requestFn: func(_ context.Context, req *models.AssessmentRequest) (*models.AssessmentResponse, error) {
			assert.False(t, req.UserID.IsNil())
			return resp, nil
		},
	}
	router := newTestHandler(svc, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/assessments", map[string]any{
		"userId":   id.NewUserID().String(),
		"tenantId": id.NewTenantID().String(),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.AssessmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, resp.RequestID, got.RequestID)
	assert.Equal(t, id.DecisionApprove, got.Decision)
}

func TestRequestAssessment_ValidationMapsTo400(t *testing.T) {
	svc := &fakeService{
		requestFn: func(context.Context, *models.AssessmentRequest) (*models.AssessmentResponse, error) {
			return nil, dErrors.New(dErrors.CodeValidation, "tenant id is required")
		},
	}
	router := newTestHandler(svc, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/assessments", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation", body.Error)
}

func TestRequestAssessment_MalformedBody(t *testing.T) {
	router := newTestHandler(&fakeService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/assessments", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAssessment(t *testing.T) {
	requestID := id.NewRequestID()
	svc := &fakeService{
		statusFn: func(_ context.Context, got id.RequestID) (*models.AssessmentResponse, error) {
			assert.Equal(t, requestID, got)
			return &models.AssessmentResponse{RequestID: got, Status: id.StatusProcessing}, nil
		},
	}
	router := newTestHandler(svc, nil, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/assessments/"+requestID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	recBad := doJSON(t, router, http.MethodGet, "/v1/assessments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, recBad.Code)
}

func TestGetAssessment_NotFound(t *testing.T) {
	svc := &fakeService{
		statusFn: func(_ context.Context, requestID id.RequestID) (*models.AssessmentResponse, error) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "assessment %s not found", requestID)
		},
	}
	router := newTestHandler(svc, nil, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/assessments/"+id.NewRequestID().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelAssessment(t *testing.T) {
	svc := &fakeService{
		cancelFn: func(context.Context, id.RequestID) error { return nil },
	}
	router := newTestHandler(svc, nil, nil)

	rec := doJSON(t, router, http.MethodDelete, "/v1/assessments/"+id.NewRequestID().String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCancelAssessment_ConflictMapsTo409(t *testing.T) {
	svc := &fakeService{
		cancelFn: func(context.Context, id.RequestID) error {
			return dErrors.New(dErrors.CodeConflict, "already finished")
		},
	}
	router := newTestHandler(svc, nil, nil)

	rec := doJSON(t, router, http.MethodDelete, "/v1/assessments/"+id.NewRequestID().String(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBatchAssessment_PartialErrors(t *testing.T) {
	svc := &fakeService{
		batchFn: func(_ context.Context, reqs []*models.AssessmentRequest) ([]*models.AssessmentResponse, error) {
			require.Len(t, reqs, 2)
			return []*models.AssessmentResponse{
				{RequestID: reqs[0].RequestID, Status: id.StatusCompleted},
				nil,
			}, dErrors.New(dErrors.CodeValidation, "batch element 1: tenant id is required")
		},
	}
	router := newTestHandler(svc, nil, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/assessments/batch", map[string]any{
		"requests": []map[string]any{
			{"userId": id.NewUserID().String(), "tenantId": id.NewTenantID().String()},
			{"userId": id.NewUserID().String()},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var body batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.Nil(t, body.Results[1])
	require.NotEmpty(t, body.Errors)
	assert.Contains(t, body.Errors[0], "batch element 1")
}

func TestBatchAssessment_Empty(t *testing.T) {
	router := newTestHandler(&fakeService{}, nil, nil)
	rec := doJSON(t, router, http.MethodPost, "/v1/assessments/batch", map[string]any{"requests": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreditProviders(t *testing.T) {
	router := newTestHandler(&fakeService{}, nil, nil)
	rec := doJSON(t, router, http.MethodGet, "/v1/providers/credit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"serasa", "spc"}, body["providers"])
}

func TestAgentInbound(t *testing.T) {
	authority := agentcomm.NewTokenAuthority("test-signing-key")
	sink := &fakeSink{}
	router := newTestHandler(&fakeService{}, sink, authority)

	token, err := authority.Issue("fraud-1")
	require.NoError(t, err)

	msg := agentcomm.NewMessage(id.MessageTypeAlert, "fraud-1", map[string]any{"severity": "high"})
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/agents/inbound", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.delivered, 1)
	assert.Equal(t, msg.ID, sink.delivered[0].ID)
}

func TestAgentInbound_AuthFailures(t *testing.T) {
	authority := agentcomm.NewTokenAuthority("test-signing-key")
	sink := &fakeSink{}
	router := newTestHandler(&fakeService{}, sink, authority)

	msg := agentcomm.NewMessage(id.MessageTypeAlert, "fraud-1", nil)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/agents/inbound", bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/agents/inbound", bytes.NewReader(raw))
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("sender mismatch", func(t *testing.T) {
		token, err := authority.Issue("other-agent")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/agents/inbound", bytes.NewReader(raw))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	assert.Empty(t, sink.delivered)
}

func TestAgentInbound_DisabledChannel(t *testing.T) {
	router := newTestHandler(&fakeService{}, nil, nil)
	rec := doJSON(t, router, http.MethodPost, "/v1/agents/inbound", map[string]any{})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	router := newTestHandler(&fakeService{}, nil, nil)
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
