package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"approval-tracker/internal/audit"
	"approval-tracker/internal/config"
	"approval-tracker/internal/domain"
	"approval-tracker/internal/engine"
	"approval-tracker/internal/metrics"
)

type memStore struct {
	mu      sync.Mutex
	docs    map[string]domain.Document
	history map[string][]domain.HistoryEntry
	users   map[string]domain.User
	pingErr error
}

func newMemStore(users ...domain.User) *memStore {
	s := &memStore{
		docs:    make(map[string]domain.Document),
		history: make(map[string][]domain.HistoryEntry),
		users:   make(map[string]domain.User),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) seed(doc domain.Document, entries ...domain.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Files == nil {
		doc.Files = []domain.DocFile{}
	}
	s.docs[doc.ID] = doc
	s.history[doc.ID] = append(s.history[doc.ID], entries...)
}

func (s *memStore) Ping(context.Context) error { return s.pingErr }

func (s *memStore) GetDocument(_ context.Context, id string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return domain.Document{}, domain.DocumentNotFound(id)
	}
	return d, nil
}

func (s *memStore) ListDocuments(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Document, 0, len(s.docs))
	for _, d := range s.docs {
		if filter.State != "" && d.State != filter.State {
			continue
		}
		if filter.Project != "" && d.Hierarchy.Project != filter.Project {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateDocument(_ context.Context, doc domain.Document, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	s.history[doc.ID] = append(s.history[doc.ID], entry)
	return nil
}

func (s *memStore) SaveTransition(_ context.Context, doc domain.Document, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	s.history[doc.ID] = append(s.history[doc.ID], entry)
	return nil
}

func (s *memStore) UpdateDocument(_ context.Context, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return domain.DocumentNotFound(doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *memStore) RevertTransition(_ context.Context, doc domain.Document, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]domain.HistoryEntry, 0)
	for _, h := range s.history[doc.ID] {
		if h.ID != entryID {
			kept = append(kept, h)
		}
	}
	s.history[doc.ID] = kept
	s.docs[doc.ID] = doc
	return nil
}

func (s *memStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.history, id)
	return nil
}

func (s *memStore) ListHistory(_ context.Context, documentID string) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.HistoryEntry{}, s.history[documentID]...), nil
}

func (s *memStore) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.UserNotFound(id)
	}
	return u, nil
}

func (s *memStore) doc(id string) (domain.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	return d, ok
}

type memFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *memFiles) PutFile(_ context.Context, documentID string, stage domain.WorkflowState, filename string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	key := fmt.Sprintf("slots/%s/%s/%s", documentID, stage, filename)
	f.objects[key] = content
	return key, nil
}

func (f *memFiles) RemoveFile(_ context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectKey)
	return nil
}

type startCall struct {
	options  client.StartWorkflowOptions
	workflow interface{}
	args     []interface{}
}

type fakeStarter struct {
	mu    sync.Mutex
	calls []startCall
	err   error
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, startCall{options: options, workflow: workflow, args: args})
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(options.ID)
	run.On("GetRunID").Return("run-1")
	return run, nil
}

var (
	admin       = domain.User{ID: "u-admin", Name: "Ana Admin", Role: domain.RoleAdmin}
	coordinator = domain.User{ID: "u-coord", Name: "Carla Coordinator", Role: domain.RoleCoordinator}
	analyst     = domain.User{ID: "u-analyst", Name: "Andrés Analyst", Role: domain.RoleAnalyst}
)

type harness struct {
	store   *memStore
	files   *memFiles
	starter *fakeStarter
	router  http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore(admin, coordinator, analyst)
	files := &memFiles{}
	starter := &fakeStarter{}
	rec := metrics.New()

	seq := 0
	var mu sync.Mutex
	eng := &engine.Engine{
		Store:   store,
		Files:   files,
		Metrics: rec,
		Now:     func() time.Time { return time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC) },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	}
	auditor := &audit.Auditor{Store: store, Syncer: eng, Metrics: rec}

	cfg := config.Config{
		AllowedUploadBytes: 1 << 20,
		WorkflowIDPrefix:   "approval",
		TemporalTaskQueue:  "approval-tracker-task-queue",
		SyncBatchSize:      400,
	}
	h := NewHandler(cfg, Deps{
		Store:    store,
		Engine:   eng,
		Auditor:  auditor,
		Temporal: starter,
		Metrics:  rec.Handler(),
	})
	return &harness{store: store, files: files, starter: starter, router: NewRouter(h)}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// multipartRequest builds a form request; an empty filename sends no file part.
func multipartRequest(t *testing.T, method, target, userID string, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	return req
}

var errUnavailable = errors.New("connection refused")
