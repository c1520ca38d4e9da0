package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/accountd/server/internal/auth"
	"github.com/accountd/server/internal/middleware"
	"github.com/accountd/server/internal/model"
)

// ProfileHandler handles the authenticated profile endpoints.
type ProfileHandler struct {
	svc *auth.Service
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(svc *auth.Service) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

// HandleGetProfile handles GET /profile.
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cred, err := h.svc.GetProfile(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(cred))
}

type updateProfileRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	PhoneNumber *string `json:"phone_number"`
	AvatarRef   *string `json:"avatar"`
	Gender      *string `json:"gender"`
	Age         *int    `json:"age"`
	DateOfBirth *string `json:"date_of_birth"`
}

// HandleUpdateProfile handles PATCH /profile. Absent fields keep their
// current value; email and staff flag are not client-writable.
func (h *ProfileHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := model.ProfileUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		AvatarRef:   req.AvatarRef,
		Gender:      req.Gender,
		Age:         req.Age,
	}
	if req.DateOfBirth != nil {
		dob, err := time.Parse("2006-01-02", *req.DateOfBirth)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
			return
		}
		upd.DateOfBirth = &dob
	}

	cred, err := h.svc.UpdateProfile(r.Context(), userID, upd)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(cred))
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// HandleChangePassword handles POST /change-password (authenticated).
// New/confirm mismatch is rejected here, before any hashing happens.
func (h *ProfileHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		respondWithError(w, http.StatusBadRequest, "old_password and new_password are required")
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		respondWithError(w, http.StatusBadRequest, "new passwords do not match")
		return
	}

	if err := h.svc.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
}
