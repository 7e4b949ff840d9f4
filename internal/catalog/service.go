package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasktoearn/backend/internal/models"
)

var (
	// ErrTaskNotFound is returned when no task exists for the given id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidKind is returned for kinds outside {timed_auto, manual_proof}.
	ErrInvalidKind = errors.New("invalid task kind")
	// ErrInvalidReward is returned for non-positive reward_points.
	ErrInvalidReward = errors.New("reward_points must be > 0")
	// ErrInvalidDuration is returned for negative duration_seconds.
	ErrInvalidDuration = errors.New("duration_seconds must be >= 0")
)

// Repo is the task storage interface used by the service.
type Repo interface {
	ListActive(ctx context.Context, kind string, excludeCompletedFor uuid.UUID) ([]*models.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Create(ctx context.Context, t *models.Task) error
	Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.Task, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	ListAll(ctx context.Context) ([]*models.Task, error)
}

type Service struct {
	repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

func validKind(kind string) bool {
	return kind == models.TaskKindTimedAuto || kind == models.TaskKindManualProof
}

// ListActive returns the tasks the user may still start.
func (s *Service) ListActive(ctx context.Context, kind string, userID uuid.UUID) ([]*models.Task, error) {
	if kind != "" && !validKind(kind) {
		return nil, ErrInvalidKind
	}
	return s.repo.ListActive(ctx, kind, userID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

func (s *Service) Create(ctx context.Context, title, kind string, rewardPoints, durationSeconds int, resourceURL *string) (*models.Task, error) {
	if !validKind(kind) {
		return nil, ErrInvalidKind
	}
	if rewardPoints <= 0 {
		return nil, ErrInvalidReward
	}
	if durationSeconds < 0 {
		return nil, ErrInvalidDuration
	}
	t := &models.Task{
		ID:              uuid.New(),
		Title:           title,
		Kind:            kind,
		RewardPoints:    rewardPoints,
		DurationSeconds: durationSeconds,
		ResourceURL:     resourceURL,
		IsActive:        true,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Update applies admin edits. Edits never touch in-flight progress records.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.Task, error) {
	if p.RewardPoints != nil && *p.RewardPoints <= 0 {
		return nil, ErrInvalidReward
	}
	if p.DurationSeconds != nil && *p.DurationSeconds < 0 {
		return nil, ErrInvalidDuration
	}
	t, err := s.repo.Update(ctx, id, p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// SetActive soft-deletes or restores a task. Deactivation does not cancel
// in-flight progress records.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	err := s.repo.SetActive(ctx, id, active)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTaskNotFound
	}
	return err
}

func (s *Service) ListAll(ctx context.Context) ([]*models.Task, error) {
	return s.repo.ListAll(ctx)
}
