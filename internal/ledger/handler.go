package ledger

import (
	"log/slog"
	"net/http"

	"github.com/tasktoearn/backend/internal/middleware"
	"github.com/tasktoearn/backend/internal/web"
)

type Handler struct {
	repo *Repository
	log  *slog.Logger
}

func NewHandler(repo *Repository, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, log: log}
}

// ListMine handles GET /api/v1/ledger — the user's entry history, newest first.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "unauthorized")
		return
	}
	entries, err := h.repo.ListByUser(r.Context(), u.ID)
	if err != nil {
		h.log.Error("list ledger", "error", err)
		web.Error(w, http.StatusInternalServerError, web.CodeInternal, "internal error")
		return
	}
	web.JSON(w, http.StatusOK, entries)
}
