package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/accountd/server/internal/auth"
	"github.com/accountd/server/internal/model"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	svc *auth.Service
	// maskLookups hides email existence in register/reset responses.
	maskLookups bool
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *auth.Service, maskLookups bool) *AuthHandler {
	return &AuthHandler{svc: svc, maskLookups: maskLookups}
}

// userResponse is the credential object in API responses. The password hash
// never leaves the service.
type userResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	IsActive    bool    `json:"is_active"`
	IsStaff     bool    `json:"is_staff"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	AvatarRef   *string `json:"avatar,omitempty"`
	Gender      *string `json:"gender,omitempty"`
	Age         *int    `json:"age,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
	JoinedAt    string  `json:"joined_at"`
	LastLoginAt *string `json:"last_login,omitempty"`
}

func toUserResponse(c model.Credential) userResponse {
	resp := userResponse{
		ID:          c.ID.String(),
		Email:       c.Email,
		IsActive:    c.IsActive,
		IsStaff:     c.IsStaff,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		PhoneNumber: c.PhoneNumber,
		AvatarRef:   c.AvatarRef,
		Gender:      c.Gender,
		Age:         c.Age,
		JoinedAt:    c.JoinedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if c.DateOfBirth != nil {
		s := c.DateOfBirth.Format("2006-01-02")
		resp.DateOfBirth = &s
	}
	if c.LastLoginAt != nil {
		s := c.LastLoginAt.Format("2006-01-02T15:04:05Z07:00")
		resp.LastLoginAt = &s
	}
	return resp
}

type registerRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

type registerResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// HandleRegister handles POST /auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.svc.Register(r.Context(), req.Email, req.Password, model.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if h.maskLookups && errors.Is(err, auth.ErrDuplicateEmail) {
			respondJSON(w, http.StatusOK, map[string]string{"message": "otp sent to your email"})
			return
		}
		respondAuthError(w, err)
		return
	}

	resp := registerResponse{Message: "otp sent to your email", User: toUserResponse(result.Credential)}
	if !result.OTPDelivered {
		// Account created but the code did not go out; distinct from success.
		resp.Message = "account created, otp delivery failed"
	}
	respondJSON(w, http.StatusCreated, resp)
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// HandleVerifyEmail handles POST /auth/verify-email.
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "email and otp are required")
		return
	}

	cred, err := h.svc.VerifyEmail(r.Context(), req.Email, req.OTP)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "email successfully verified",
		"user":    toUserResponse(cred),
	})
}

// HandleCheckOTP handles POST /auth/check-otp; validity check without
// consuming the code.
func (h *AuthHandler) HandleCheckOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.OTP) == "" {
		respondWithError(w, http.StatusBadRequest, "email and otp are required")
		return
	}

	valid, err := h.svc.CheckOTP(r.Context(), req.Email, strings.TrimSpace(req.OTP))
	if err != nil {
		respondAuthError(w, err)
		return
	}
	if !valid {
		respondWithError(w, http.StatusBadRequest, "otp is invalid or expired")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "otp is valid"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type"`
	User         userResponse `json:"user"`
}

// HandleLogin handles POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	pair, cred, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		User:         toUserResponse(cred),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh handles POST /auth/refresh.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	access, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"access_token": access,
		"token_type":   "bearer",
	})
}

// HandleLogout handles POST /auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type resetRequest struct {
	Email string `json:"email"`
}

// HandleRequestPasswordReset handles POST /auth/password-reset.
func (h *AuthHandler) HandleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	delivered, err := h.svc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		if h.maskLookups && errors.Is(err, auth.ErrNotFound) {
			respondJSON(w, http.StatusOK, map[string]string{"message": "otp sent to your email"})
			return
		}
		respondAuthError(w, err)
		return
	}
	if !delivered {
		respondJSON(w, http.StatusOK, map[string]string{"message": "otp delivery failed"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "otp sent to your email"})
}

type confirmResetRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// HandleConfirmPasswordReset handles POST /auth/password-reset-confirm.
func (h *AuthHandler) HandleConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.OTP) == "" || req.NewPassword == "" {
		respondWithError(w, http.StatusBadRequest, "email, otp and new_password are required")
		return
	}

	if err := h.svc.ConfirmPasswordReset(r.Context(), req.Email, strings.TrimSpace(req.OTP), req.NewPassword); err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password successfully reset"})
}

// respondAuthError maps service errors to HTTP statuses. Dependency faults
// surface as an opaque 500; everything else is a structured business error.
func respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrWeakPassword):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrDuplicateEmail):
		respondWithError(w, http.StatusConflict, auth.ErrDuplicateEmail.Error())
	case errors.Is(err, auth.ErrNotFound):
		respondWithError(w, http.StatusNotFound, auth.ErrNotFound.Error())
	case errors.Is(err, auth.ErrInvalidOrExpiredCode):
		respondWithError(w, http.StatusBadRequest, auth.ErrInvalidOrExpiredCode.Error())
	case errors.Is(err, auth.ErrWrongPassword):
		respondWithError(w, http.StatusBadRequest, auth.ErrWrongPassword.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrAccountNotActive):
		respondWithError(w, http.StatusForbidden, auth.ErrAccountNotActive.Error())
	case errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondWithError sends a JSON error response.
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
