package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"gridnerd/internal/logging"
	"gridnerd/internal/perception"
	"gridnerd/internal/tools"
)

// queryRequest is the body of /api/query and /api/autonomous.
type queryRequest struct {
	Query     string         `json:"query"`
	Context   map[string]any `json:"context,omitempty"`
	ImageData string         `json:"image_data,omitempty"`
}

type executeRequest struct {
	Command *tools.Command `json:"command"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, image, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	answer, err := s.agent.AnswerQuery(r.Context(), req.Query, req.Context, image)
	if err != nil {
		logging.ServerError("[%s] query failed: %v", requestIDFromContext(r.Context()), err)
		writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"response": answer})
}

func (s *Server) handleAutonomous(w http.ResponseWriter, r *http.Request) {
	req, image, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, s.agent.RunAutonomousQuery(r.Context(), req.Query, req.Context, image))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"status": s.agent.Connect(r.Context())})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if code, msg := decodeJSON(r, &req); code != 0 {
		writeError(w, r, code, msg)
		return
	}
	if req.Command == nil {
		writeError(w, r, http.StatusBadRequest, "No command provided")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"result": s.agent.ExecuteCommand(r.Context(), *req.Command)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.agent.CheckHealth(r.Context()))
}

// decodeQuery reads a query body and its optional image. It writes the error
// response itself and reports false on failure.
func decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, *perception.Image, bool) {
	var req queryRequest
	if code, msg := decodeJSON(r, &req); code != 0 {
		writeError(w, r, code, msg)
		return req, nil, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, r, http.StatusBadRequest, "No query provided")
		return req, nil, false
	}
	if req.ImageData == "" {
		return req, nil, true
	}
	image, err := perception.DecodeImage(req.ImageData)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return req, nil, false
	}
	return req, image, true
}

// decodeJSON decodes a single JSON value. It returns a non-zero status on failure.
func decodeJSON(r *http.Request, v any) (int, string) {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return http.StatusRequestEntityTooLarge, "request body too large"
		case errors.Is(err, io.EOF):
			return http.StatusBadRequest, "empty request body"
		default:
			return http.StatusBadRequest, "invalid JSON: " + err.Error()
		}
	}
	if dec.More() {
		return http.StatusBadRequest, "invalid JSON: trailing data"
	}
	return 0, ""
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerError("[%s] encode response: %v", requestIDFromContext(r.Context()), err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]any{
		"error":      msg,
		"request_id": requestIDFromContext(r.Context()),
	})
}
