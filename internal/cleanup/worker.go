package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/tasktoearn/backend/internal/blob"
)

// DeleteProofImageArgs asks for a reviewed proof image to be removed from
// the blob store. Enqueued transactionally with the review decision; runs
// after commit so a deletion failure can never roll the decision back.
type DeleteProofImageArgs struct {
	ImageRef string `json:"image_ref"`
}

func (DeleteProofImageArgs) Kind() string { return "delete_proof_image" }

type DeleteProofImageWorker struct {
	river.WorkerDefaults[DeleteProofImageArgs]
	store  blob.Store
	logger *slog.Logger
}

func NewDeleteProofImageWorker(store blob.Store, logger *slog.Logger) *DeleteProofImageWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeleteProofImageWorker{store: store, logger: logger}
}

func (w *DeleteProofImageWorker) Work(ctx context.Context, job *river.Job[DeleteProofImageArgs]) error {
	err := w.store.Delete(job.Args.ImageRef)
	if err == nil {
		return nil
	}
	// Already gone counts as done; anything else is logged and retried.
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, blob.ErrInvalidRef) {
		w.logger.Warn("proof image already gone", "image_ref", job.Args.ImageRef, "error", err)
		return nil
	}
	w.logger.Error("delete proof image failed", "image_ref", job.Args.ImageRef, "error", err)
	return err
}
