package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/realty-ai-agent/internal/agent"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

const maxBodyBytes = 1 << 20

type handler struct {
	conversations ConversationService
	publisher     JobPublisher
	logger        *logging.Logger
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readiness(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]string, len(checks))
		status := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": results})
	}
}

func (h *handler) getConversation(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	state, ok := h.conversations.ConversationState(r.Context(), leadID)
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handler) resetConversation(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	h.conversations.ResetConversation(r.Context(), leadID)
	h.logger.Info("conversation reset", "lead_id", leadID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) processMessage(w http.ResponseWriter, r *http.Request) {
	var req agent.MessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateMessage(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := h.conversations.ProcessMessage(r.Context(), req)
	writeJSON(w, http.StatusOK, resp.ToMap())
}

func (h *handler) enqueueMessage(w http.ResponseWriter, r *http.Request) {
	var req agent.MessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateMessage(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.publisher.PublishMessage(r.Context(), req)
	h.accepted(w, id, req.Lead.ID, err)
}

func (h *handler) enqueueNewLead(w http.ResponseWriter, r *http.Request) {
	var req agent.NewLeadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Lead.ID) == "" {
		writeError(w, http.StatusBadRequest, "lead.id is required")
		return
	}
	id, err := h.publisher.PublishNewLead(r.Context(), req)
	h.accepted(w, id, req.Lead.ID, err)
}

func (h *handler) accepted(w http.ResponseWriter, jobID, leadID string, err error) {
	if err != nil {
		h.logger.Error("failed to enqueue job", "error", err, "lead_id", leadID)
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func validateMessage(req agent.MessageRequest) error {
	if strings.TrimSpace(req.Lead.ID) == "" {
		return errors.New("lead.id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message is required")
	}
	return nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
