package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasktoearn/backend/internal/auth"
	"github.com/tasktoearn/backend/internal/blob"
	"github.com/tasktoearn/backend/internal/catalog"
	"github.com/tasktoearn/backend/internal/ledger"
	"github.com/tasktoearn/backend/internal/progress"
	"github.com/tasktoearn/backend/internal/web"
	"github.com/tasktoearn/backend/internal/withdrawal"
)

// Handler serves the /api/v1/admin endpoints: task catalog management,
// proof review, withdrawal resolution, user banning and ledger audit.
// Mounted behind JWTAuth + AdminOnly.
type Handler struct {
	catalogSvc    *catalog.Service
	progressSvc   *progress.Service
	progressRepo  *progress.Repository
	withdrawalSvc *withdrawal.Service
	withdrawalR   *withdrawal.Repository
	userRepo      *auth.Repository
	ledgerRepo    *ledger.Repository
	blobs         blob.Store
	log           *slog.Logger
}

func NewHandler(
	catalogSvc *catalog.Service,
	progressSvc *progress.Service,
	progressRepo *progress.Repository,
	withdrawalSvc *withdrawal.Service,
	withdrawalR *withdrawal.Repository,
	userRepo *auth.Repository,
	ledgerRepo *ledger.Repository,
	blobs blob.Store,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		catalogSvc:    catalogSvc,
		progressSvc:   progressSvc,
		progressRepo:  progressRepo,
		withdrawalSvc: withdrawalSvc,
		withdrawalR:   withdrawalR,
		userRepo:      userRepo,
		ledgerRepo:    ledgerRepo,
		blobs:         blobs,
		log:           log,
	}
}

// --- tasks ---

type createTaskRequest struct {
	Title           string  `json:"title"`
	Kind            string  `json:"kind"`
	RewardPoints    int     `json:"reward_points"`
	DurationSeconds int     `json:"duration_seconds"`
	ResourceURL     *string `json:"resource_url"`
}

// CreateTask handles POST /api/v1/admin/tasks.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "title is required")
		return
	}
	t, err := h.catalogSvc.Create(r.Context(), req.Title, req.Kind, req.RewardPoints, req.DurationSeconds, req.ResourceURL)
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, t)
}

type updateTaskRequest struct {
	Title           *string `json:"title"`
	RewardPoints    *int    `json:"reward_points"`
	DurationSeconds *int    `json:"duration_seconds"`
	ResourceURL     *string `json:"resource_url"`
}

// UpdateTask handles PATCH /api/v1/admin/tasks/{id}. Edits never affect
// in-flight progress records.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid JSON")
		return
	}
	t, err := h.catalogSvc.Update(r.Context(), id, catalog.UpdateParams{
		Title:           req.Title,
		RewardPoints:    req.RewardPoints,
		DurationSeconds: req.DurationSeconds,
		ResourceURL:     req.ResourceURL,
	})
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	web.JSON(w, http.StatusOK, t)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetTaskActive handles POST /api/v1/admin/tasks/{id}/active.
func (h *Handler) SetTaskActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid JSON")
		return
	}
	if err := h.catalogSvc.SetActive(r.Context(), id, req.Active); err != nil {
		h.writeCatalogError(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]interface{}{"status": "success", "active": req.Active})
}

// ListTasks handles GET /api/v1/admin/tasks (includes inactive).
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.catalogSvc.ListAll(r.Context())
	if err != nil {
		h.log.Error("admin list tasks", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	web.JSON(w, http.StatusOK, tasks)
}

// --- proofs ---

// ListProofs handles GET /api/v1/admin/proofs?status=pending.
func (h *Handler) ListProofs(w http.ResponseWriter, r *http.Request) {
	list, err := h.progressRepo.ListProofsByStatus(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.log.Error("list proofs", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	web.JSON(w, http.StatusOK, list)
}

// GetProofImage handles GET /api/v1/admin/proofs/{id}/image, streaming the
// stored blob for review.
func (h *Handler) GetProofImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	proof, err := h.progressRepo.GetProof(r.Context(), id)
	if err != nil {
		h.log.Error("get proof", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	if proof == nil {
		web.Error(w, http.StatusNotFound, web.CodeNotFound, "proof submission not found")
		return
	}
	data, err := h.blobs.Read(proof.ImageRef)
	if err != nil {
		web.Error(w, http.StatusNotFound, web.CodeNotFound, "proof image no longer available")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

type reviewRequest struct {
	Decision string `json:"decision"` // approve | reject
}

// ReviewProof handles POST /api/v1/admin/proofs/{id}/review.
func (h *Handler) ReviewProof(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid JSON")
		return
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, `decision must be "approve" or "reject"`)
		return
	}
	proof, err := h.progressSvc.ReviewProof(r.Context(), id, req.Decision == "approve")
	if err != nil {
		switch {
		case errors.Is(err, progress.ErrProofNotFound):
			web.Error(w, http.StatusNotFound, web.CodeNotFound, "proof submission not found")
		case errors.Is(err, progress.ErrProofNotPending):
			web.Error(w, http.StatusConflict, web.CodeInvalidState, "proof submission already reviewed")
		default:
			h.log.Error("review proof", "error", err)
			web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		}
		return
	}
	web.JSON(w, http.StatusOK, proof)
}

// --- withdrawals ---

// ListWithdrawals handles GET /api/v1/admin/withdrawals?status=pending.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.withdrawalR.ListByStatus(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.log.Error("list withdrawals", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	web.JSON(w, http.StatusOK, list)
}

// ResolveWithdrawal handles POST /api/v1/admin/withdrawals/{id}/resolve.
func (h *Handler) ResolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid JSON")
		return
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, `decision must be "approve" or "reject"`)
		return
	}
	wr, err := h.withdrawalSvc.Resolve(r.Context(), id, req.Decision == "approve")
	if err != nil {
		switch {
		case errors.Is(err, withdrawal.ErrNotFound):
			web.Error(w, http.StatusNotFound, web.CodeNotFound, "withdrawal request not found")
		case errors.Is(err, withdrawal.ErrNotPending):
			web.Error(w, http.StatusConflict, web.CodeInvalidState, "withdrawal request already resolved")
		default:
			h.log.Error("resolve withdrawal", "error", err)
			web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		}
		return
	}
	web.JSON(w, http.StatusOK, wr)
}

// --- users ---

// ListUsers handles GET /api/v1/admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.List(r.Context())
	if err != nil {
		h.log.Error("list users", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	web.JSON(w, http.StatusOK, users)
}

type banRequest struct {
	Banned bool `json:"banned"`
}

// BanUser handles POST /api/v1/admin/users/{id}/ban.
func (h *Handler) BanUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid JSON")
		return
	}
	if err := h.userRepo.SetBanned(r.Context(), id, req.Banned); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			web.Error(w, http.StatusNotFound, web.CodeNotFound, "user not found")
			return
		}
		h.log.Error("ban user", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	web.JSON(w, http.StatusOK, map[string]interface{}{"status": "success", "banned": req.Banned})
}

// VerifyLedger handles GET /api/v1/admin/users/{id}/ledger-check: asserts the
// cached balance equals the sum of the user's ledger entries.
func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	balance, err := h.ledgerRepo.GetBalance(r.Context(), id)
	if err != nil {
		web.Error(w, http.StatusNotFound, web.CodeNotFound, "user not found")
		return
	}
	sum, err := h.ledgerRepo.SumEntries(r.Context(), id)
	if err != nil {
		h.log.Error("sum ledger entries", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	if balance != sum {
		h.log.Error("ledger mismatch", "user_id", id, "balance", balance, "entry_sum", sum)
	}
	web.JSON(w, http.StatusOK, map[string]interface{}{
		"balance":    balance,
		"entry_sum":  sum,
		"consistent": balance == sum,
	})
}

// --- helpers ---

func (h *Handler) writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrTaskNotFound):
		web.Error(w, http.StatusNotFound, web.CodeNotFound, "task not found")
	case errors.Is(err, catalog.ErrInvalidKind), errors.Is(err, catalog.ErrInvalidReward), errors.Is(err, catalog.ErrInvalidDuration):
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, err.Error())
	default:
		h.log.Error("catalog operation failed", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
