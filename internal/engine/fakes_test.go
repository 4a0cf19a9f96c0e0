package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"approval-tracker/internal/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]domain.Document
	history map[string][]domain.HistoryEntry
	users   map[string]domain.User
}

func newFakeStore(users ...domain.User) *fakeStore {
	f := &fakeStore{
		docs:    make(map[string]domain.Document),
		history: make(map[string][]domain.HistoryEntry),
		users:   make(map[string]domain.User),
	}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.Document{}, domain.DocumentNotFound(id)
	}
	return doc, nil
}

func (f *fakeStore) CreateDocument(_ context.Context, doc domain.Document, entry domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	f.docs[doc.ID] = doc
	f.history[doc.ID] = append(f.history[doc.ID], entry)
	return nil
}

func (f *fakeStore) SaveTransition(_ context.Context, doc domain.Document, entry domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID]; !ok {
		return domain.DocumentNotFound(doc.ID)
	}
	f.docs[doc.ID] = doc
	f.history[doc.ID] = append(f.history[doc.ID], entry)
	return nil
}

func (f *fakeStore) UpdateDocument(_ context.Context, doc domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID]; !ok {
		return domain.DocumentNotFound(doc.ID)
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeStore) RevertTransition(_ context.Context, doc domain.Document, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.history[doc.ID]
	kept := entries[:0:0]
	for _, h := range entries {
		if h.ID != entryID {
			kept = append(kept, h)
		}
	}
	f.history[doc.ID] = kept
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	delete(f.history, id)
	return nil
}

func (f *fakeStore) ListHistory(_ context.Context, documentID string) ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.HistoryEntry(nil), f.history[documentID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.UserNotFound(id)
	}
	return u, nil
}

func (f *fakeStore) put(doc domain.Document, history ...domain.HistoryEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	f.history[doc.ID] = append([]domain.HistoryEntry(nil), history...)
}

func (f *fakeStore) entries(id string) []domain.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.HistoryEntry(nil), f.history[id]...)
}

type fakeFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{objects: make(map[string][]byte)}
}

func (f *fakeFiles) PutFile(_ context.Context, documentID string, stage domain.WorkflowState, filename string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("slots/%s/%s/%s", documentID, stage, filename)
	f.objects[key] = content
	return key, nil
}

func (f *fakeFiles) RemoveFile(_ context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectKey)
	f.removed = append(f.removed, objectKey)
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyManagers(ctx context.Context, n domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockNotifier) Notify(ctx context.Context, userID string, n domain.Notification) error {
	args := m.Called(ctx, userID, n)
	return args.Error(0)
}

type staticHierarchy map[string]domain.Assignment

func (h staticHierarchy) Lookup(_ context.Context, project domain.Project, microprocess string) (domain.Assignment, error) {
	return h[string(project)+"/"+microprocess], nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[domain.Action]int
}

func (r *countingRecorder) ObserveTransition(action domain.Action, _ domain.WorkflowState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[domain.Action]int)
	}
	r.counts[action]++
}
