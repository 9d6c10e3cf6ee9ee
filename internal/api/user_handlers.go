package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"filevault/internal/database"

	"github.com/go-chi/chi/v5"
)

// @Summary      Get the authenticated user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  Response
// @Failure      401  {object}  Response
// @Router       /users/me [get]
func (s *Server) GetCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("user lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Data: user})
}

// @Summary      List users
// @Description  Admin only.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int  false  "Page size"  default(50)
// @Param        offset  query     int  false  "Offset"     default(0)
// @Success      200     {object}  Response
// @Failure      403     {object}  Response
// @Router       /users [get]
func (s *Server) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}

	users, err := s.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("user listing failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Data: users})
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return 0, false
	}
	return id, true
}

// @Summary      Get a user
// @Description  Admin only.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User id"
// @Success      200  {object}  Response
// @Failure      403  {object}  Response
// @Failure      404  {object}  Response
// @Router       /users/{id} [get]
func (s *Server) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	user, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Msg("user lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Data: user})
}

type UpdateUserRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
	Role  *string `json:"role" validate:"omitempty,oneof=user admin"`
}

// @Summary      Update a user
// @Description  Admin only. Applies the provided fields; omitted fields keep their value.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                true  "User id"
// @Param        request  body      UpdateUserRequest  true  "Fields to update"
// @Success      200      {object}  Response
// @Failure      400      {object}  Response
// @Failure      403      {object}  Response
// @Failure      404      {object}  Response
// @Router       /users/{id} [put]
func (s *Server) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if fields := validateStruct(req); fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	user, err := s.store.UpdateUser(r.Context(), userID, database.UpdateUserParams{
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	})
	if err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, "An account with this email already exists")
			return
		}
		s.log.Error().Err(err).Msg("user update failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "User updated successfully",
		Data:    user,
	})
}

// @Summary      Delete a user
// @Description  Admin only. The user's nodes and share grants are removed with them.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User id"
// @Success      200  {object}  Response
// @Failure      400  {object}  Response
// @Failure      403  {object}  Response
// @Failure      404  {object}  Response
// @Router       /users/{id} [delete]
func (s *Server) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	if userID == claims.UserID {
		writeError(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}

	deleted, err := s.store.DeleteUser(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Msg("user deletion failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "User deleted successfully",
	})
}
