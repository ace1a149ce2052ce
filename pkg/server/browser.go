package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/metrics"
	"github.com/entrhq/browserpilot/pkg/types"
)

// CreateBrowserResponse is the body of a successful create-browser call.
type CreateBrowserResponse struct {
	Success bool `json:"success"`
	browser.Session
	Reused bool `json:"reused,omitempty"`
}

// DeleteBrowserRequest is the body of delete-browser.
type DeleteBrowserRequest struct {
	SessionID string `json:"sessionId"`
}

// DeleteBrowserResponse is the body of a successful delete-browser call.
type DeleteBrowserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleCreateBrowser(w http.ResponseWriter, r *http.Request) {
	result, err := s.cfg.Provisioner.CreateSession(r.Context())
	if err != nil {
		var configErr *types.ConfigurationError
		switch {
		case errors.Is(err, browser.ErrCreateInFlight):
			WriteJSON(w, http.StatusTooManyRequests, Failure(err.Error()))
		case errors.As(err, &configErr):
			WriteJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "MISSING_API_KEY",
				Message: configErr.Error(),
				Code:    types.CodeOf(err),
				Missing: configErr.Missing,
			})
		default:
			s.logger.Errorf("Error creating browser: %v", err)
			WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:   "Failed to create browser",
				Details: err.Error(),
				Code:    types.CodeOf(err),
			})
		}
		return
	}

	metrics.RecordSessionCreated(result.Reused, time.Duration(result.Session.SpinUpTime)*time.Millisecond)
	OkJSON(w, CreateBrowserResponse{Success: true, Session: result.Session, Reused: result.Reused})
}

func (s *Server) handleDeleteBrowser(w http.ResponseWriter, r *http.Request) {
	var req DeleteBrowserRequest
	if err := Parse(r, &req); err != nil {
		Error(w, err)
		return
	}

	alreadyGone, err := s.cfg.Provisioner.DeleteSession(r.Context(), req.SessionID)
	if err != nil {
		var validationErr *types.ValidationError
		if errors.As(err, &validationErr) {
			Error(w, err)
			return
		}
		s.logger.Errorf("Browser deletion error: %v", err)
		resp := Failure(err.Error())
		resp.Code = types.CodeOf(err)
		WriteJSON(w, http.StatusInternalServerError, resp)
		return
	}

	msg := "Browser session closed successfully"
	if alreadyGone {
		msg = "Browser session already closed or not found"
	}
	OkJSON(w, DeleteBrowserResponse{Success: true, Message: msg})
}
