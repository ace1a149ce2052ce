package server

import (
	"net/http"
	"sync"

	"github.com/entrhq/browserpilot/pkg/orchestrator"
	"github.com/entrhq/browserpilot/pkg/stream"
	"github.com/entrhq/browserpilot/pkg/types"
)

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.RunRequest
	if err := Parse(r, &req); err != nil {
		Error(w, err)
		return
	}

	if wantsStream(r, req.Stream) {
		s.streamAgent(w, r, req)
		return
	}

	result, err := s.cfg.Orchestrator.Run(r.Context(), req)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, result)
}

// streamAgent answers with an event stream. Until the first frame is
// written a rejected request still gets a plain JSON error.
func (s *Server) streamAgent(w http.ResponseWriter, r *http.Request, req orchestrator.RunRequest) {
	writer, err := stream.NewWriter(w)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writer.Heartbeat(done, s.cfg.Heartbeat)
	}()

	err = s.cfg.Orchestrator.Stream(r.Context(), req, writer)
	close(done)
	wg.Wait()

	switch {
	case err == nil:
	case !writer.Started():
		s.writeRunError(w, err)
	default:
		s.logger.Infof("agent stream for session %s ended early: %v", req.SessionID, err)
	}
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	if types.HTTPStatus(err) >= http.StatusInternalServerError {
		s.logger.Errorf("Agent execution error: %v", err)
	}
	Error(w, err)
}
