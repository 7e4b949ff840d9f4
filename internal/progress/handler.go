package progress

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tasktoearn/backend/internal/blob"
	"github.com/tasktoearn/backend/internal/middleware"
	"github.com/tasktoearn/backend/internal/models"
	"github.com/tasktoearn/backend/internal/web"
)

const maxProofImageBytes = 5 << 20

type Handler struct {
	svc   *Service
	repo  *Repository
	blobs blob.Store
	log   *slog.Logger
}

func NewHandler(svc *Service, repo *Repository, blobs blob.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, repo: repo, blobs: blobs, log: log}
}

// Start handles POST /api/v1/tasks/{id}/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	u, taskID, ok := h.userAndTaskID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Start(r.Context(), u.ID, taskID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	web.JSON(w, http.StatusOK, p)
}

// Complete handles POST /api/v1/tasks/{id}/complete (timed-auto tasks).
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	u, taskID, ok := h.userAndTaskID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Complete(r.Context(), u.ID, taskID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	web.JSON(w, http.StatusOK, p)
}

// Fail handles POST /api/v1/tasks/{id}/fail.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request) {
	u, taskID, ok := h.userAndTaskID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Fail(r.Context(), u.ID, taskID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]string{"status": "success", "task_status": models.ProgressFailed})
}

// SubmitProof handles POST /api/v1/tasks/{id}/proof (multipart "image" field).
// The image is saved to the blob store first; if the submission is rejected
// by the state machine the orphaned blob is removed best-effort.
func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	u, taskID, ok := h.userAndTaskID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxProofImageBytes); err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "image file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxProofImageBytes+1))
	if err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "failed to read image")
		return
	}
	if len(data) == 0 || len(data) > maxProofImageBytes {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "image must be between 1 byte and 5 MiB")
		return
	}

	ref, err := h.blobs.Save(data)
	if err != nil {
		h.log.Error("save proof image", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "failed to store image")
		return
	}

	proof, err := h.svc.SubmitProof(r.Context(), u.ID, taskID, ref)
	if err != nil {
		if delErr := h.blobs.Delete(ref); delErr != nil {
			h.log.Warn("delete orphaned proof image", "image_ref", ref, "error", delErr)
		}
		h.writeServiceError(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, proof)
}

// ListMine handles GET /api/v1/progress — the user's progress history.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "unauthorized")
		return
	}
	list, err := h.repo.ListByUser(r.Context(), u.ID)
	if err != nil {
		h.log.Error("list progress", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	web.JSON(w, http.StatusOK, list)
}

func (h *Handler) userAndTaskID(w http.ResponseWriter, r *http.Request) (*models.User, uuid.UUID, bool) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "unauthorized")
		return nil, uuid.Nil, false
	}
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid task id")
		return nil, uuid.Nil, false
	}
	return u, taskID, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrProofNotFound):
		web.Error(w, http.StatusNotFound, web.CodeNotFound, err.Error())
	case errors.Is(err, ErrTimeNotElapsed):
		web.Error(w, http.StatusUnprocessableEntity, web.CodePreconditionFailed, err.Error())
	case errors.Is(err, ErrTaskInactive), errors.Is(err, ErrWrongKind),
		errors.Is(err, ErrTaskNotStarted), errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrProofPending), errors.Is(err, ErrProofNotPending):
		web.Error(w, http.StatusConflict, web.CodeInvalidState, err.Error())
	default:
		h.log.Error("task progress operation failed", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
	}
}
