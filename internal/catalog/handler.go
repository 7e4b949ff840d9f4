package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tasktoearn/backend/internal/middleware"
	"github.com/tasktoearn/backend/internal/web"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// ListTasks handles GET /api/v1/tasks?kind=. Returns active tasks the
// authenticated user can still start.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "unauthorized")
		return
	}
	kind := r.URL.Query().Get("kind")
	tasks, err := h.svc.ListActive(r.Context(), kind, u.ID)
	if err != nil {
		if errors.Is(err, ErrInvalidKind) {
			web.Error(w, http.StatusBadRequest, web.CodeBadRequest, "invalid task kind")
			return
		}
		h.log.Error("list tasks", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	web.JSON(w, http.StatusOK, tasks)
}
