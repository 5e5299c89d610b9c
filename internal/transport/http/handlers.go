package httptransport

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"trustplane/internal/agentcomm"
	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

func (h *Handler) handleRequestAssessment(w http.ResponseWriter, r *http.Request) {
	var req models.AssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	resp, err := h.service.RequestAssessment(r.Context(), &req)
	if err != nil {
		h.logger.WarnContext(r.Context(), "assessment request rejected",
			"request_id", req.RequestID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Requests []*models.AssessmentRequest `json:"requests"`
}

type batchResponse struct {
	Results []*models.AssessmentResponse `json:"results"`
	Errors  []string                     `json:"errors,omitempty"`
}

func (h *Handler) handleBatchAssessment(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, dErrors.New(dErrors.CodeValidation, "batch is empty"))
		return
	}

	results, err := h.service.BatchRequestAssessment(r.Context(), req.Requests)
	body := batchResponse{Results: results}
	if err != nil {
		// Element failures are reported alongside the successful results.
		body.Errors = strings.Split(err.Error(), "\n")
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.GetAssessmentStatus(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCancelAssessment(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.CancelAssessment(r.Context(), requestID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreditProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.service.GetCreditProviders()})
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.service.Agents()
	if agents == nil {
		agents = []models.AgentInfo{}
	}
	writeJSON(w, http.StatusOK, map[string][]models.AgentInfo{"agents": agents})
}

// handleAgentInbound authenticates the calling agent and feeds its message
// into the communicator's inbound path.
func (h *Handler) handleAgentInbound(w http.ResponseWriter, r *http.Request) {
	if h.inbound == nil || h.auth == nil {
		writeError(w, dErrors.New(dErrors.CodeUnavailable, "direct channel is not enabled"))
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	agentID, err := h.auth.Validate(token)
	if err != nil {
		writeError(w, err)
		return
	}

	var msg agentcomm.AgentMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid message body"))
		return
	}
	if err := msg.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if msg.Sender != agentID {
		writeError(w, dErrors.Newf(dErrors.CodeForbidden,
			"token subject %q does not match message sender %q", agentID, msg.Sender))
		return
	}

	if err := h.inbound.Deliver(&msg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
