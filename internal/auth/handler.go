package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tasktoearn/backend/internal/middleware"
	"github.com/tasktoearn/backend/internal/models"
	"github.com/tasktoearn/backend/internal/web"
)

type RegisterRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Points       int    `json:"points"`
	ReferralCode string `json:"referral_code"`
	IsAdmin      bool   `json:"is_admin"`
	CreatedAt    string `json:"created_at"`
}

type LoginResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid JSON")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "username, email and password are required")
		return
	}
	u, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password, req.ReferralCode)
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			web.Error(w, http.StatusConflict, web.CodeInvalidState, "username or email already exists")
			return
		}
		h.log.Error("register failed", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "registration failed")
		return
	}
	web.JSON(w, http.StatusCreated, userToResponse(u))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "email and password are required")
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "invalid email or password")
		case errors.Is(err, ErrBanned):
			web.Error(w, http.StatusForbidden, web.CodeForbidden, "account is banned")
		default:
			h.log.Error("login failed", "error", err)
			web.Error(w, http.StatusInternalServerError, web.CodeInternal, "login failed")
		}
		return
	}
	web.JSON(w, http.StatusOK, LoginResponse{Status: "success", Token: token})
}

// Me returns the authenticated user's profile with the current point balance.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "unauthorized")
		return
	}
	web.JSON(w, http.StatusOK, userToResponse(u))
}

func userToResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:           u.ID.String(),
		Username:     u.Username,
		Email:        u.Email,
		Points:       u.Points,
		ReferralCode: u.ReferralCode,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
