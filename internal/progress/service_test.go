package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tasktoearn/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory fakes. The service only uses Begin/Commit/Rollback on the tx, so
// a stub tx with an embedded nil pgx.Tx is enough.
// ---------------------------------------------------------------------------

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakePool struct{}

func (fakePool) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type mockTasks struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newMockTasks(tasks ...*models.Task) *mockTasks {
	m := &mockTasks{tasks: make(map[uuid.UUID]*models.Task)}
	for _, t := range tasks {
		cp := *t
		m.tasks[t.ID] = &cp
	}
	return m
}

func (m *mockTasks) GetTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

type progressKey struct {
	userID, taskID uuid.UUID
}

type mockRepo struct {
	mu      sync.Mutex
	records map[progressKey]*models.TaskProgress
	proofs  map[uuid.UUID]*models.ProofSubmission
	guards  map[progressKey]bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		records: make(map[progressKey]*models.TaskProgress),
		proofs:  make(map[uuid.UUID]*models.ProofSubmission),
		guards:  make(map[progressKey]bool),
	}
}

func (m *mockRepo) GetForUpdate(_ context.Context, _ pgx.Tx, userID, taskID uuid.UUID) (*models.TaskProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[progressKey{userID, taskID}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockRepo) Upsert(_ context.Context, _ pgx.Tx, p *models.TaskProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.records[progressKey{p.UserID, p.TaskID}] = &cp
	return nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, _ pgx.Tx, userID, taskID uuid.UUID, status string, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[progressKey{userID, taskID}]
	if !ok {
		return errors.New("progress record not found")
	}
	rec.Status = status
	rec.CompletedAt = completedAt
	return nil
}

func (m *mockRepo) InsertRewardGuard(_ context.Context, _ pgx.Tx, userID, taskID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := progressKey{userID, taskID}
	if m.guards[k] {
		return false, nil
	}
	m.guards[k] = true
	return true, nil
}

func (m *mockRepo) InsertProof(_ context.Context, _ pgx.Tx, p *models.ProofSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.proofs[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetProofForUpdate(_ context.Context, _ pgx.Tx, proofID uuid.UUID) (*models.ProofSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proofs[proofID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) UpdateProofStatus(_ context.Context, _ pgx.Tx, proofID uuid.UUID, status string, reviewedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proofs[proofID]
	if !ok {
		return errors.New("proof not found")
	}
	p.Status = status
	p.ReviewedAt = &reviewedAt
	return nil
}

func (m *mockRepo) record(userID, taskID uuid.UUID) *models.TaskProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[progressKey{userID, taskID}]
}

type mockLedger struct {
	mu      sync.Mutex
	credits []int
}

func (m *mockLedger) Credit(_ context.Context, _ pgx.Tx, _ uuid.UUID, amount int, _ string, _ *uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits = append(m.credits, amount)
	return amount, nil
}

func (m *mockLedger) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, c := range m.credits {
		sum += c
	}
	return sum
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func timedTask(reward, durationSeconds int) *models.Task {
	return &models.Task{
		ID:              uuid.New(),
		Title:           "Watch the ad",
		Kind:            models.TaskKindTimedAuto,
		RewardPoints:    reward,
		DurationSeconds: durationSeconds,
		IsActive:        true,
	}
}

func proofTask(reward int) *models.Task {
	return &models.Task{
		ID:           uuid.New(),
		Title:        "Post a screenshot",
		Kind:         models.TaskKindManualProof,
		RewardPoints: reward,
		IsActive:     true,
	}
}

type fixture struct {
	svc     *Service
	repo    *mockRepo
	ledger  *mockLedger
	clock   time.Time
	deleted []string
}

func newFixture(tasks ...*models.Task) *fixture {
	f := &fixture{
		repo:   newMockRepo(),
		ledger: &mockLedger{},
		clock:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(fakePool{}, newMockTasks(tasks...), f.repo, f.ledger,
		func(_ context.Context, _ pgx.Tx, ref string) error {
			f.deleted = append(f.deleted, ref)
			return nil
		}, nil)
	f.svc.Now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// ---------------------------------------------------------------------------
// Timed-auto lifecycle
// ---------------------------------------------------------------------------

func TestStartAndCompleteTimedTask(t *testing.T) {
	task := timedTask(5, 30)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	p, err := f.svc.Start(ctx, userID, task.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.Status != models.ProgressStarted {
		t.Fatalf("status = %q, want started", p.Status)
	}

	// Too early: the server clock decides, not the client.
	if _, err := f.svc.Complete(ctx, userID, task.ID); !errors.Is(err, ErrTimeNotElapsed) {
		t.Fatalf("early Complete err = %v, want ErrTimeNotElapsed", err)
	}
	if f.ledger.total() != 0 {
		t.Fatalf("credited %d points before completion", f.ledger.total())
	}

	f.advance(30 * time.Second)
	p, err = f.svc.Complete(ctx, userID, task.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if p.Status != models.ProgressCompleted || p.CompletedAt == nil {
		t.Fatalf("got status %q completedAt %v", p.Status, p.CompletedAt)
	}
	if f.ledger.total() != 5 {
		t.Fatalf("credited %d points, want 5", f.ledger.total())
	}
}

func TestCompleteTwiceCreditsOnce(t *testing.T) {
	task := timedTask(5, 0)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.svc.Complete(ctx, userID, task.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := f.svc.Complete(ctx, userID, task.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second Complete err = %v, want ErrAlreadyCompleted", err)
	}
	if got := f.ledger.total(); got != 5 {
		t.Fatalf("credited %d points, want 5", got)
	}
}

func TestCompleteWithoutStart(t *testing.T) {
	task := timedTask(5, 0)
	f := newFixture(task)

	_, err := f.svc.Complete(context.Background(), uuid.New(), task.ID)
	if !errors.Is(err, ErrTaskNotStarted) {
		t.Fatalf("err = %v, want ErrTaskNotStarted", err)
	}
}

func TestCompleteWrongKind(t *testing.T) {
	task := proofTask(5)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.svc.Complete(ctx, userID, task.ID); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("err = %v, want ErrWrongKind", err)
	}
}

func TestStartValidation(t *testing.T) {
	inactive := timedTask(5, 0)
	inactive.IsActive = false
	f := newFixture(inactive)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, uuid.New(), uuid.New()); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("unknown task err = %v, want ErrTaskNotFound", err)
	}
	if _, err := f.svc.Start(ctx, uuid.New(), inactive.ID); !errors.Is(err, ErrTaskInactive) {
		t.Fatalf("inactive task err = %v, want ErrTaskInactive", err)
	}
}

func TestRestartAfterFail(t *testing.T) {
	task := timedTask(5, 60)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.svc.Fail(ctx, userID, task.ID); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if rec := f.repo.record(userID, task.ID); rec.Status != models.ProgressFailed {
		t.Fatalf("status = %q, want failed", rec.Status)
	}

	// Failed records can be restarted; the timer resets.
	f.advance(time.Minute)
	p, err := f.svc.Start(ctx, userID, task.ID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !p.StartedAt.Equal(f.clock) {
		t.Fatalf("StartedAt = %v, want %v", p.StartedAt, f.clock)
	}
}

func TestStartBlockedAfterCompletion(t *testing.T) {
	task := timedTask(5, 0)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.svc.Complete(ctx, userID, task.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := f.svc.Start(ctx, userID, task.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("restart err = %v, want ErrAlreadyCompleted", err)
	}
}

// ---------------------------------------------------------------------------
// Manual-proof lifecycle
// ---------------------------------------------------------------------------

func TestSubmitProofAndApprove(t *testing.T) {
	task := proofTask(8)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	proof, err := f.svc.SubmitProof(ctx, userID, task.ID, "blob-1")
	if err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	submittedAt := f.clock
	if f.ledger.total() != 0 {
		t.Fatalf("credited %d points before review", f.ledger.total())
	}
	rec := f.repo.record(userID, task.ID)
	if rec.Status != models.ProgressPending {
		t.Fatalf("status = %q, want pending", rec.Status)
	}

	f.advance(time.Hour)
	reviewed, err := f.svc.ReviewProof(ctx, proof.ID, true)
	if err != nil {
		t.Fatalf("ReviewProof: %v", err)
	}
	if reviewed.Status != models.ProofApproved {
		t.Fatalf("proof status = %q, want approved", reviewed.Status)
	}
	if f.ledger.total() != 8 {
		t.Fatalf("credited %d points, want 8", f.ledger.total())
	}

	rec = f.repo.record(userID, task.ID)
	if rec.Status != models.ProgressCompleted {
		t.Fatalf("progress status = %q, want completed", rec.Status)
	}
	// completed_at keeps the submission time, not the approval time.
	if rec.CompletedAt == nil || !rec.CompletedAt.Equal(submittedAt) {
		t.Fatalf("CompletedAt = %v, want submission time %v", rec.CompletedAt, submittedAt)
	}
	if len(f.deleted) != 1 || f.deleted[0] != "blob-1" {
		t.Fatalf("blob deletions = %v, want [blob-1]", f.deleted)
	}
}

func TestSubmitProofAndReject(t *testing.T) {
	task := proofTask(8)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	proof, err := f.svc.SubmitProof(ctx, userID, task.ID, "blob-1")
	if err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if _, err := f.svc.ReviewProof(ctx, proof.ID, false); err != nil {
		t.Fatalf("ReviewProof: %v", err)
	}
	if f.ledger.total() != 0 {
		t.Fatalf("credited %d points on rejection", f.ledger.total())
	}
	if rec := f.repo.record(userID, task.ID); rec.Status != models.ProgressFailed {
		t.Fatalf("progress status = %q, want failed", rec.Status)
	}
	if len(f.deleted) != 1 {
		t.Fatalf("blob deletions = %v, want one entry", f.deleted)
	}

	// Rejection leaves the task retryable.
	if _, err := f.svc.SubmitProof(ctx, userID, task.ID, "blob-2"); err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
}

func TestSubmitProofStateGuards(t *testing.T) {
	task := proofTask(8)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.svc.SubmitProof(ctx, userID, task.ID, "blob-1"); err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	// Pending review blocks a second submission and a restart.
	if _, err := f.svc.SubmitProof(ctx, userID, task.ID, "blob-2"); !errors.Is(err, ErrProofPending) {
		t.Fatalf("second submit err = %v, want ErrProofPending", err)
	}
	if _, err := f.svc.Start(ctx, userID, task.ID); !errors.Is(err, ErrProofPending) {
		t.Fatalf("restart err = %v, want ErrProofPending", err)
	}
}

func TestSubmitProofWrongKind(t *testing.T) {
	task := timedTask(5, 0)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.svc.SubmitProof(ctx, userID, task.ID, "blob-1"); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("err = %v, want ErrWrongKind", err)
	}
}

func TestReviewProofTwice(t *testing.T) {
	task := proofTask(8)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	proof, err := f.svc.SubmitProof(ctx, userID, task.ID, "blob-1")
	if err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if _, err := f.svc.ReviewProof(ctx, proof.ID, true); err != nil {
		t.Fatalf("ReviewProof: %v", err)
	}
	if _, err := f.svc.ReviewProof(ctx, proof.ID, true); !errors.Is(err, ErrProofNotPending) {
		t.Fatalf("second review err = %v, want ErrProofNotPending", err)
	}
	if _, err := f.svc.ReviewProof(ctx, uuid.New(), true); !errors.Is(err, ErrProofNotFound) {
		t.Fatalf("unknown proof err = %v, want ErrProofNotFound", err)
	}
	if f.ledger.total() != 8 {
		t.Fatalf("credited %d points, want 8", f.ledger.total())
	}
}

// ---------------------------------------------------------------------------
// Settlement guard
// ---------------------------------------------------------------------------

func TestRewardSettlesAtMostOnce(t *testing.T) {
	task := timedTask(5, 0)
	f := newFixture(task)
	ctx := context.Background()
	userID := uuid.New()

	// Simulate a guard row left by an earlier settlement.
	if _, err := f.repo.InsertRewardGuard(ctx, nil, userID, task.ID); err != nil {
		t.Fatalf("seed guard: %v", err)
	}

	if _, err := f.svc.Start(ctx, userID, task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p, err := f.svc.Complete(ctx, userID, task.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if p.Status != models.ProgressCompleted {
		t.Fatalf("status = %q, want completed", p.Status)
	}
	// The completion succeeds but the duplicate credit is skipped.
	if f.ledger.total() != 0 {
		t.Fatalf("credited %d points despite existing guard", f.ledger.total())
	}
}
