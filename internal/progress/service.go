package progress

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasktoearn/backend/internal/models"
)

var (
	// ErrTaskNotFound is returned when the referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskInactive is returned when starting or submitting against a deactivated task.
	ErrTaskInactive = errors.New("task is not active")
	// ErrWrongKind is returned when an operation does not match the task kind.
	ErrWrongKind = errors.New("operation does not match task kind")
	// ErrTaskNotStarted is returned when completing or failing without a started record.
	ErrTaskNotStarted = errors.New("task not started")
	// ErrAlreadyCompleted is returned when the progress record is already completed.
	ErrAlreadyCompleted = errors.New("task already completed")
	// ErrProofPending is returned while a proof submission awaits review.
	ErrProofPending = errors.New("proof submission pending review")
	// ErrTimeNotElapsed is returned when the task duration has not passed yet.
	ErrTimeNotElapsed = errors.New("task duration not elapsed")
	// ErrProofNotFound is returned when the proof submission does not exist.
	ErrProofNotFound = errors.New("proof submission not found")
	// ErrProofNotPending is returned when reviewing an already-reviewed submission.
	ErrProofNotPending = errors.New("proof submission already reviewed")
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TaskGetter resolves task definitions inside the current transaction.
type TaskGetter interface {
	GetTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
}

// Repo is the progress/proof storage interface used by the service.
type Repo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID) (*models.TaskProgress, error)
	Upsert(ctx context.Context, tx pgx.Tx, p *models.TaskProgress) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, status string, completedAt *time.Time) error
	InsertRewardGuard(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID) (bool, error)
	InsertProof(ctx context.Context, tx pgx.Tx, p *models.ProofSubmission) error
	GetProofForUpdate(ctx context.Context, tx pgx.Tx, proofID uuid.UUID) (*models.ProofSubmission, error)
	UpdateProofStatus(ctx context.Context, tx pgx.Tx, proofID uuid.UUID, status string, reviewedAt time.Time) error
}

// Crediter is the ledger interface needed for reward settlement.
type Crediter interface {
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, action string, relatedID *uuid.UUID) (int, error)
}

// EnqueueBlobDeleteFunc enqueues deletion of a proof image within the given
// transaction. Provided by main using river.Client.InsertTx; the deletion
// itself runs after commit and never rolls back the review decision.
type EnqueueBlobDeleteFunc func(ctx context.Context, tx pgx.Tx, imageRef string) error

// Service is the task-completion state machine plus reward settlement.
// All balance-affecting transitions run in a single transaction; the
// task_rewards guard insert always precedes the credit so a reward can
// settle at most once per (user, task) pair.
type Service struct {
	Pool              TxBeginner
	Tasks             TaskGetter
	Repo              Repo
	Ledger            Crediter
	EnqueueBlobDelete EnqueueBlobDeleteFunc

	// Now is the server clock; tests override it. The client-reported
	// timer is never trusted.
	Now    func() time.Time
	Logger *slog.Logger
}

func NewService(pool TxBeginner, tasks TaskGetter, repo Repo, ledger Crediter, enqueueDelete EnqueueBlobDeleteFunc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Pool:              pool,
		Tasks:             tasks,
		Repo:              repo,
		Ledger:            ledger,
		EnqueueBlobDelete: enqueueDelete,
		Now:               time.Now,
		Logger:            logger,
	}
}

// getActiveTask loads the task and checks it exists and is active.
func (s *Service) getActiveTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.Tasks.GetTx(ctx, tx, taskID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if !task.IsActive {
		return nil, ErrTaskInactive
	}
	return task, nil
}

// restartBlocked reports why a (re)start or proof submission is not allowed.
func restartBlocked(rec *models.TaskProgress) error {
	if rec == nil {
		return nil
	}
	switch rec.Status {
	case models.ProgressCompleted:
		return ErrAlreadyCompleted
	case models.ProgressPending:
		return ErrProofPending
	}
	return nil
}

// Start creates or resets the progress record to started. Idempotent under
// repeated starts; re-starting from failed supports retry.
func (s *Service) Start(ctx context.Context, userID, taskID uuid.UUID) (*models.TaskProgress, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.getActiveTask(ctx, tx, taskID); err != nil {
		return nil, err
	}
	rec, err := s.Repo.GetForUpdate(ctx, tx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if err := restartBlocked(rec); err != nil {
		return nil, err
	}

	p := &models.TaskProgress{
		UserID:    userID,
		TaskID:    taskID,
		Status:    models.ProgressStarted,
		StartedAt: s.Now(),
	}
	if err := s.Repo.Upsert(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// SubmitProof records a manual-proof submission: progress goes pending with
// completed_at set to the submission time, and a pending proof row is
// created. No reward is credited until an admin approves.
func (s *Service) SubmitProof(ctx context.Context, userID, taskID uuid.UUID, imageRef string) (*models.ProofSubmission, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	task, err := s.getActiveTask(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Kind != models.TaskKindManualProof {
		return nil, ErrWrongKind
	}
	rec, err := s.Repo.GetForUpdate(ctx, tx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if err := restartBlocked(rec); err != nil {
		return nil, err
	}

	now := s.Now()
	startedAt := now
	if rec != nil {
		startedAt = rec.StartedAt
	}
	p := &models.TaskProgress{
		UserID:      userID,
		TaskID:      taskID,
		Status:      models.ProgressPending,
		StartedAt:   startedAt,
		CompletedAt: &now,
	}
	if err := s.Repo.Upsert(ctx, tx, p); err != nil {
		return nil, err
	}

	proof := &models.ProofSubmission{
		ID:       uuid.New(),
		UserID:   userID,
		TaskID:   taskID,
		ImageRef: imageRef,
		Status:   models.ProofPending,
	}
	if err := s.Repo.InsertProof(ctx, tx, proof); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return proof, nil
}

// Complete settles a timed-auto task. The elapsed time is computed from the
// server clock against the started_at stamp; duration 0 completes immediately.
func (s *Service) Complete(ctx context.Context, userID, taskID uuid.UUID) (*models.TaskProgress, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	task, err := s.getActiveTask(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Kind != models.TaskKindTimedAuto {
		return nil, ErrWrongKind
	}
	rec, err := s.Repo.GetForUpdate(ctx, tx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Status == models.ProgressFailed {
		return nil, ErrTaskNotStarted
	}
	if rec.Status == models.ProgressCompleted {
		return nil, ErrAlreadyCompleted
	}
	if rec.Status == models.ProgressPending {
		return nil, ErrProofPending
	}

	now := s.Now()
	if elapsed := now.Sub(rec.StartedAt); elapsed < time.Duration(task.DurationSeconds)*time.Second {
		return nil, ErrTimeNotElapsed
	}

	if err := s.Repo.UpdateStatus(ctx, tx, userID, taskID, models.ProgressCompleted, &now); err != nil {
		return nil, err
	}
	if err := s.settleReward(ctx, tx, userID, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	rec.Status = models.ProgressCompleted
	rec.CompletedAt = &now
	return rec, nil
}

// Fail marks the record failed. No point effect.
func (s *Service) Fail(ctx context.Context, userID, taskID uuid.UUID) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rec, err := s.Repo.GetForUpdate(ctx, tx, userID, taskID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrTaskNotStarted
	}
	if rec.Status == models.ProgressCompleted {
		return ErrAlreadyCompleted
	}
	if err := s.Repo.UpdateStatus(ctx, tx, userID, taskID, models.ProgressFailed, rec.CompletedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReviewProof resolves a pending submission. Approve settles the reward and
// completes the progress record; reject fails it with no credit. The image
// blob deletion is enqueued in the same transaction and runs after commit.
func (s *Service) ReviewProof(ctx context.Context, proofID uuid.UUID, approve bool) (*models.ProofSubmission, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	proof, err := s.Repo.GetProofForUpdate(ctx, tx, proofID)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, ErrProofNotFound
	}
	if proof.Status != models.ProofPending {
		return nil, ErrProofNotPending
	}

	now := s.Now()
	if approve {
		task, err := s.Tasks.GetTx(ctx, tx, proof.TaskID)
		if err != nil {
			return nil, err
		}
		if err := s.Repo.UpdateProofStatus(ctx, tx, proofID, models.ProofApproved, now); err != nil {
			return nil, err
		}
		// completed_at keeps the submission time, not the approval time.
		rec, err := s.Repo.GetForUpdate(ctx, tx, proof.UserID, proof.TaskID)
		if err != nil {
			return nil, err
		}
		completedAt := &now
		if rec != nil && rec.CompletedAt != nil {
			completedAt = rec.CompletedAt
		}
		if err := s.Repo.UpdateStatus(ctx, tx, proof.UserID, proof.TaskID, models.ProgressCompleted, completedAt); err != nil {
			return nil, err
		}
		if err := s.settleReward(ctx, tx, proof.UserID, task); err != nil {
			return nil, err
		}
		proof.Status = models.ProofApproved
	} else {
		if err := s.Repo.UpdateProofStatus(ctx, tx, proofID, models.ProofRejected, now); err != nil {
			return nil, err
		}
		if err := s.Repo.UpdateStatus(ctx, tx, proof.UserID, proof.TaskID, models.ProgressFailed, nil); err != nil {
			return nil, err
		}
		proof.Status = models.ProofRejected
	}
	proof.ReviewedAt = &now

	if s.EnqueueBlobDelete != nil {
		if err := s.EnqueueBlobDelete(ctx, tx, proof.ImageRef); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return proof, nil
}

// settleReward credits the task reward at most once per (user, task): the
// guard insert comes strictly before the credit, and a pre-existing guard
// row means the reward was settled earlier, so the credit is skipped and
// the operation still succeeds.
func (s *Service) settleReward(ctx context.Context, tx pgx.Tx, userID uuid.UUID, task *models.Task) error {
	fresh, err := s.Repo.InsertRewardGuard(ctx, tx, userID, task.ID)
	if err != nil {
		return err
	}
	if !fresh {
		s.Logger.Info("reward already settled, skipping credit", "user_id", userID, "task_id", task.ID)
		return nil
	}
	taskID := task.ID
	_, err = s.Ledger.Credit(ctx, tx, userID, task.RewardPoints, models.LedgerActionTaskReward, &taskID)
	return err
}
