package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"filevault/internal/auth"
	"filevault/internal/database"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      RegisterRequest  true  "Account details"
// @Success      201      {object}  Response
// @Failure      400      {object}  Response
// @Router       /auth/register [post]
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if fields := validateStruct(req); fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error().Err(err).Msg("password hashing failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := s.store.CreateUser(r.Context(), database.CreateUserParams{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, "An account with this email already exists")
			return
		}
		s.log.Error().Err(err).Msg("user creation failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := auth.GenerateJWT(user, s.config.JWT.Secret, s.config.JWT.Expiry)
	if err != nil {
		s.log.Error().Err(err).Msg("token generation failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Account created successfully",
		Data:    map[string]interface{}{"token": token, "user": user},
	})
}

// @Summary      Log in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "Credentials"
// @Success      200      {object}  Response
// @Failure      400      {object}  Response
// @Failure      401      {object}  Response
// @Router       /auth/login [post]
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if fields := validateStruct(req); fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.log.Error().Err(err).Msg("user lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := auth.GenerateJWT(user, s.config.JWT.Secret, s.config.JWT.Expiry)
	if err != nil {
		s.log.Error().Err(err).Msg("token generation failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Logged in successfully",
		Data:    map[string]interface{}{"token": token, "user": user},
	})
}
