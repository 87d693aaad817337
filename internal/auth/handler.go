package auth

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/swapmeet/marketplace/backend/internal/models"
	"github.com/swapmeet/marketplace/backend/internal/response"
)

// Handler holds auth-related HTTP handlers.
type Handler struct {
	svc  *Service
	errs response.Writer
}

func NewHandler(svc *Service, errs response.Writer) *Handler {
	return &Handler{svc: svc, errs: errs}
}

// Register creates a new user and returns it with a token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := response.Decode(r, &req); err != nil {
		h.errs.Error(w, r, err)
		return
	}
	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.Created(w, "User registered successfully", res)
}

// Login authenticates a user and issues a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := response.Decode(r, &req); err != nil {
		h.errs.Error(w, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.OK(w, "Login successful", res)
}

// Me returns the currently authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Me(r.Context(), UserID(r.Context()))
	if err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.OK(w, "User retrieved successfully", user)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileRequest
	if err := response.Decode(r, &req); err != nil {
		h.errs.Error(w, r, err)
		return
	}
	user, err := h.svc.UpdateProfile(r.Context(), UserID(r.Context()), req)
	if err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.OK(w, "Profile updated successfully", user)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordRequest
	if err := response.Decode(r, &req); err != nil {
		h.errs.Error(w, r, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), UserID(r.Context()), req); err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.OK(w, "Password changed successfully", nil)
}

// DeleteUser removes a user and everything they own. Admin only.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Fail(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if err := h.svc.DeleteUser(r.Context(), UserID(r.Context()), id); err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.OK(w, "User deleted successfully", nil)
}
