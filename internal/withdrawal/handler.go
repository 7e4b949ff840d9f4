package withdrawal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tasktoearn/backend/internal/ledger"
	"github.com/tasktoearn/backend/internal/middleware"
	"github.com/tasktoearn/backend/internal/web"
)

type RequestBody struct {
	AmountPoints int    `json:"amount_points"`
	Method       string `json:"method"`
	PayoutTarget string `json:"payout_target"`
}

type Handler struct {
	svc  *Service
	repo *Repository
	log  *slog.Logger
}

func NewHandler(svc *Service, repo *Repository, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, repo: repo, log: log}
}

// Create handles POST /api/v1/withdrawals.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "unauthorized")
		return
	}
	var req RequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid JSON")
		return
	}
	if req.Method == "" || req.PayoutTarget == "" {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "method and payout_target are required")
		return
	}
	wr, err := h.svc.Request(r.Context(), u.ID, req.AmountPoints, req.Method, req.PayoutTarget)
	if err != nil {
		switch {
		case errors.Is(err, ErrBelowMinimum):
			web.Error(w, http.StatusUnprocessableEntity, web.CodePreconditionFailed, "amount below minimum withdrawal")
		case errors.Is(err, ledger.ErrInsufficientBalance):
			web.Error(w, http.StatusPaymentRequired, web.CodeInsufficientBalance, "insufficient balance")
		case errors.Is(err, ledger.ErrInvalidAmount):
			web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "amount must be positive")
		default:
			h.log.Error("request withdrawal", "error", err)
			web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		}
		return
	}
	web.JSON(w, http.StatusCreated, wr)
}

// ListMine handles GET /api/v1/withdrawals.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "unauthorized")
		return
	}
	list, err := h.repo.ListByUser(r.Context(), u.ID)
	if err != nil {
		h.log.Error("list withdrawals", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	web.JSON(w, http.StatusOK, list)
}
