package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"filevault/internal/files"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"totalPages"`
	Total      int64 `json:"total"`
}

// ListResponse is the envelope for paginated collections.
type ListResponse struct {
	Success    bool        `json:"success"`
	Count      int64       `json:"count"`
	Pagination Pagination  `json:"pagination"`
	Data       interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

func writeValidationErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, Response{
		Success: false,
		Message: "Validation failed",
		Errors:  fields,
	})
}

// writeServiceError maps engine errors onto stable HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, files.ErrNotFound), errors.Is(err, files.ErrParentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, files.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, files.ErrOwnParent), errors.Is(err, files.ErrCycle), errors.Is(err, files.ErrUnknownUsers):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
