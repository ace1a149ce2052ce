package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/entrhq/browserpilot/pkg/types"
)

// EnhancePromptRequest is the body of enhance-prompt.
type EnhancePromptRequest struct {
	Prompt       string `json:"prompt"`
	ServerTarget string `json:"serverTarget,omitempty"`
}

// VPSDeployRequest is the body of vps-deploy.
type VPSDeployRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleEnhancePrompt(w http.ResponseWriter, r *http.Request) {
	var req EnhancePromptRequest
	if err := Parse(r, &req); err != nil {
		Error(w, err)
		return
	}
	if s.cfg.Enhancer == nil {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to optimize prompt"})
		return
	}

	optimized, err := s.cfg.Enhancer.Enhance(r.Context(), req.Prompt, req.ServerTarget)
	if err != nil {
		if types.HTTPStatus(err) == http.StatusBadRequest {
			Error(w, err)
			return
		}
		s.logger.Errorf("Prompt optimization failed: %v", err)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to optimize prompt",
			Details: err.Error(),
			Code:    types.CodeOf(err),
		})
		return
	}
	OkJSON(w, map[string]string{"optimizedPrompt": optimized})
}

func (s *Server) handleVPSDeploy(w http.ResponseWriter, r *http.Request) {
	token := s.cfg.Env.DeployToken()
	provided := r.Header.Get(DeployTokenHeader)
	if token == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		Unauthorized(w)
		return
	}

	runner, err := s.cfg.NewRemote(s.cfg.Env.SSH())
	if err != nil {
		resp := Failure(err.Error())
		resp.Code = types.CodeOf(err)
		var configErr *types.ConfigurationError
		if errors.As(err, &configErr) {
			resp.Missing = configErr.Missing
		}
		WriteJSON(w, types.HTTPStatus(err), resp)
		return
	}

	var req VPSDeployRequest
	if err := Parse(r, &req); err != nil {
		Error(w, err)
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		Error(w, types.NewValidationError("No command provided", "command"))
		return
	}

	output, err := runner.Run(r.Context(), req.Command)
	if err != nil {
		s.logger.Errorf("VPS Error: %v", err)
		resp := Failure(err.Error())
		resp.Code = types.CodeOf(err)
		WriteJSON(w, types.HTTPStatus(err), resp)
		return
	}
	OkJSON(w, map[string]interface{}{"success": true, "term_output": output})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Skills == nil {
		resp := Failure("Failed to list OpenClaw skills")
		resp.Details = types.NewErrorInfo(errors.New("skills listing is not configured"))
		WriteJSON(w, http.StatusInternalServerError, resp)
		return
	}

	parsed, err := s.cfg.Skills.List(r.Context())
	if err != nil {
		s.logger.Errorf("Failed to list OpenClaw skills: %v", err)
		resp := Failure("Failed to list OpenClaw skills")
		resp.Details = types.NewErrorInfo(err)
		WriteJSON(w, http.StatusInternalServerError, resp)
		return
	}

	body := make(map[string]interface{}, len(parsed)+1)
	for k, v := range parsed {
		body[k] = v
	}
	body["success"] = true
	OkJSON(w, body)
}
