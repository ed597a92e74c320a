package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bloomline-ai/promoflow/convengine/workflow"
)

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req workflow.TurnRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	resp, err := s.proc.ProcessTurn(r.Context(), &req)
	if err != nil {
		s.log.Warn("turn failed",
			"session_id", req.SessionID,
			"error", err,
		)
		status, msg := mapTurnError(err)
		respondError(w, status, msg)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// mapTurnError translates engine errors to HTTP codes. Validation
// problems are the caller's fault; configuration gaps are ours.
func mapTurnError(err error) (int, string) {
	switch {
	case errors.Is(err, workflow.ErrEmptyMessage):
		return http.StatusBadRequest, "message must not be empty"
	case errors.Is(err, workflow.ErrUnknownHandler):
		return http.StatusUnprocessableEntity, "unknown handler"
	case errors.Is(err, workflow.ErrUnknownStage):
		return http.StatusInternalServerError, "conversation is in an unconfigured stage"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
