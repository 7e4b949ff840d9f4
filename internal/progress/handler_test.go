package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tasktoearn/backend/internal/middleware"
	"github.com/tasktoearn/backend/internal/models"
)

type memStore struct {
	blobs   map[string][]byte
	saveErr error
}

func newMemStore() *memStore { return &memStore{blobs: make(map[string][]byte)} }

func (m *memStore) Save(data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	ref := fmt.Sprintf("blob-%d", len(m.blobs)+1)
	m.blobs[ref] = data
	return ref, nil
}

func (m *memStore) Read(ref string) ([]byte, error) {
	b, ok := m.blobs[ref]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (m *memStore) Delete(ref string) error {
	delete(m.blobs, ref)
	return nil
}

func taskRequest(method, path string, user *models.User, taskID uuid.UUID, body *bytes.Buffer, contentType string) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.SetPathValue("id", taskID.String())
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	return req
}

func TestStartHandler(t *testing.T) {
	task := timedTask(5, 30)
	f := newFixture(task)
	h := NewHandler(f.svc, nil, newMemStore(), nil)
	user := &models.User{ID: uuid.New()}

	rec := httptest.NewRecorder()
	h.Start(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/start", user, task.ID, nil, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var p models.TaskProgress
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Status != models.ProgressStarted || p.TaskID != task.ID {
		t.Fatalf("body = %+v", p)
	}

	// Unknown task maps to 404 with the standard envelope.
	rec = httptest.NewRecorder()
	h.Start(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/start", user, uuid.New(), nil, ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown task: status = %d, want 404", rec.Code)
	}
	var envelope struct {
		Status string `json:"status"`
		Code   string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Status != "error" || envelope.Code != "not_found" {
		t.Fatalf("envelope = %+v", envelope)
	}

	// No authenticated user.
	rec = httptest.NewRecorder()
	h.Start(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/start", nil, task.ID, nil, ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d, want 401", rec.Code)
	}
}

func TestCompleteHandlerStatusMapping(t *testing.T) {
	task := timedTask(5, 30)
	f := newFixture(task)
	h := NewHandler(f.svc, nil, newMemStore(), nil)
	user := &models.User{ID: uuid.New()}

	// Complete before start.
	rec := httptest.NewRecorder()
	h.Complete(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/complete", user, task.ID, nil, ""))
	if rec.Code != http.StatusConflict {
		t.Fatalf("not started: status = %d, want 409", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Start(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/start", user, task.ID, nil, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("Start: status = %d", rec.Code)
	}

	// Too early.
	rec = httptest.NewRecorder()
	h.Complete(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/complete", user, task.ID, nil, ""))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("too early: status = %d, want 422", rec.Code)
	}

	f.advance(time.Minute)
	rec = httptest.NewRecorder()
	h.Complete(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/complete", user, task.ID, nil, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("Complete: status = %d: %s", rec.Code, rec.Body)
	}
}

func TestSubmitProofHandler(t *testing.T) {
	task := proofTask(8)
	f := newFixture(task)
	store := newMemStore()
	h := NewHandler(f.svc, nil, store, nil)
	user := &models.User{ID: uuid.New()}

	rec := httptest.NewRecorder()
	h.Start(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/start", user, task.ID, nil, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("Start: status = %d", rec.Code)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("image", "proof.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("png bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	rec = httptest.NewRecorder()
	h.SubmitProof(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/proof", user, task.ID, body, mw.FormDataContentType()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("SubmitProof: status = %d: %s", rec.Code, rec.Body)
	}
	var proof models.ProofSubmission
	if err := json.NewDecoder(rec.Body).Decode(&proof); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if proof.Status != models.ProofPending {
		t.Fatalf("proof status = %q, want pending", proof.Status)
	}
	if _, err := store.Read(proof.ImageRef); err != nil {
		t.Fatalf("image not stored under %q", proof.ImageRef)
	}

	// Missing file part.
	rec = httptest.NewRecorder()
	h.SubmitProof(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/proof", user, task.ID, nil, "multipart/form-data; boundary=none"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no image: status = %d, want 400", rec.Code)
	}
}

func TestSubmitProofCleansUpOrphanBlob(t *testing.T) {
	task := timedTask(5, 0) // wrong kind for proof submission
	f := newFixture(task)
	store := newMemStore()
	h := NewHandler(f.svc, nil, store, nil)
	user := &models.User{ID: uuid.New()}

	rec := httptest.NewRecorder()
	h.Start(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/start", user, task.ID, nil, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("Start: status = %d", rec.Code)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, _ := mw.CreateFormFile("image", "proof.png")
	part.Write([]byte("png bytes"))
	mw.Close()

	rec = httptest.NewRecorder()
	h.SubmitProof(rec, taskRequest(http.MethodPost, "/api/v1/tasks/x/proof", user, task.ID, body, mw.FormDataContentType()))
	if rec.Code != http.StatusConflict {
		t.Fatalf("wrong kind: status = %d, want 409", rec.Code)
	}
	// The saved blob must not leak after the rejected submission.
	if len(store.blobs) != 0 {
		t.Fatalf("orphaned blobs left behind: %v", store.blobs)
	}
}
