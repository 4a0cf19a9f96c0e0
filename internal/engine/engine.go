package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"approval-tracker/internal/domain"
	"approval-tracker/internal/nomenclature"
)

const (
	initialVersion = "0.0"

	commentCreated    = "document created"
	commentNewVersion = "new version upload"
	commentSystemSync = "system sync"
)

type Store interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	CreateDocument(ctx context.Context, doc domain.Document, entry domain.HistoryEntry) error
	// SaveTransition updates doc and appends entry in one unit of work.
	SaveTransition(ctx context.Context, doc domain.Document, entry domain.HistoryEntry) error
	UpdateDocument(ctx context.Context, doc domain.Document) error
	// RevertTransition writes doc back and removes history entry entryID in one unit of work.
	RevertTransition(ctx context.Context, doc domain.Document, entryID string) error
	DeleteDocument(ctx context.Context, id string) error
	ListHistory(ctx context.Context, documentID string) ([]domain.HistoryEntry, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type FileStore interface {
	PutFile(ctx context.Context, documentID string, stage domain.WorkflowState, filename string, content []byte) (string, error)
	RemoveFile(ctx context.Context, objectKey string) error
}

// Notifier delivers notifications. NotifyManagers skips the notification's actor.
type Notifier interface {
	NotifyManagers(ctx context.Context, n domain.Notification) error
	Notify(ctx context.Context, userID string, n domain.Notification) error
}

type HierarchyLookup interface {
	Lookup(ctx context.Context, project domain.Project, microprocess string) (domain.Assignment, error)
}

type Recorder interface {
	ObserveTransition(action domain.Action, state domain.WorkflowState)
}

type Upload struct {
	Filename string
	Content  []byte
}

type CreateInput struct {
	// ExistingID turns the call into a new-version upload against that document.
	ExistingID     string
	Title          string
	Description    string
	AuthorID       string
	InitialState   domain.WorkflowState
	InitialVersion string
	Hierarchy      domain.HierarchyRefs
	File           *Upload
}

type TransitionInput struct {
	DocumentID string
	ActorID    string
	Action     domain.Action
	Comment    string
	File       *Upload
	// Version is the version the document moves to. Empty keeps the stored one.
	Version string
}

// Engine applies document mutations. It does not judge whether a transition
// is legal; callers run the rule validator first.
type Engine struct {
	Store     Store
	Files     FileStore
	Notifier  Notifier
	Hierarchy HierarchyLookup
	Metrics   Recorder
	Logger    *zap.Logger
	Now       func() time.Time
	NewID     func() string
}

func (e *Engine) Create(ctx context.Context, in CreateInput) (domain.Document, error) {
	author, err := e.actor(ctx, in.AuthorID)
	if err != nil {
		return domain.Document{}, err
	}

	version := strings.TrimSpace(in.InitialVersion)
	if version == "" {
		version = initialVersion
	}
	state := nomenclature.Resolve(version).State
	if in.InitialState != "" {
		if !in.InitialState.IsValid() {
			return domain.Document{}, fmt.Errorf("invalid initial state %q", in.InitialState)
		}
		if in.InitialState != state {
			e.logger().Warn("explicit initial state overrides version",
				zap.String("version", version),
				zap.String("resolved_state", state.String()),
				zap.String("initial_state", in.InitialState.String()))
		}
		state = in.InitialState
	}

	if in.ExistingID != "" {
		return e.uploadNewVersion(ctx, author, in, version, state)
	}

	now := e.now()
	doc := domain.Document{
		ID:                e.newID(),
		Title:             in.Title,
		Description:       in.Description,
		Hierarchy:         in.Hierarchy,
		AuthorID:          author.ID,
		Assignees:         e.assignees(ctx, in.Hierarchy, author.ID),
		State:             state,
		Version:           version,
		Progress:          state.Progress(),
		HasPendingRequest: state.IsReviewState(),
		SubmittedBy:       nomenclature.SubmitterFor(version),
		Files:             []domain.DocFile{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var superseded []domain.DocFile
	if in.File != nil {
		superseded, err = e.attach(ctx, &doc, author.ID, *in.File, now)
		if err != nil {
			return domain.Document{}, err
		}
	}

	entry := e.entry(doc.ID, author.ID, domain.ActionCreate, domain.StateNotStarted, state, version, commentCreated, now)
	if err := e.Store.CreateDocument(ctx, doc, entry); err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	e.discard(ctx, superseded)

	e.notifyManagers(ctx, author, domain.Notification{
		DocumentID: doc.ID,
		Type:       domain.NotificationDocumentCreated,
		Title:      "New document",
		Message:    fmt.Sprintf("%s created %q at version %s", author.Name, doc.Title, version),
	})
	e.observe(domain.ActionCreate, state)
	return doc, nil
}

func (e *Engine) uploadNewVersion(ctx context.Context, author domain.User, in CreateInput, version string, state domain.WorkflowState) (domain.Document, error) {
	doc, err := e.Store.GetDocument(ctx, in.ExistingID)
	if err != nil {
		return domain.Document{}, err
	}

	now := e.now()
	previous := doc.State
	doc.State = state
	doc.Version = version
	doc.Progress = state.Progress()
	doc.HasPendingRequest = state.IsReviewState()
	doc.SubmittedBy = nomenclature.SubmitterFor(version)
	if in.Description != "" {
		doc.Description = in.Description
	}
	doc.UpdatedAt = now

	var superseded []domain.DocFile
	if in.File != nil {
		superseded, err = e.attach(ctx, &doc, author.ID, *in.File, now)
		if err != nil {
			return domain.Document{}, err
		}
	}

	entry := e.entry(doc.ID, author.ID, domain.ActionNewVersion, previous, state, version, commentNewVersion, now)
	if err := e.Store.SaveTransition(ctx, doc, entry); err != nil {
		return domain.Document{}, fmt.Errorf("save new version: %w", err)
	}
	e.discard(ctx, superseded)

	e.notifyManagers(ctx, author, domain.Notification{
		DocumentID: doc.ID,
		Type:       domain.NotificationNewVersion,
		Title:      "New version uploaded",
		Message:    fmt.Sprintf("%s uploaded version %s of %q", author.Name, version, doc.Title),
	})
	e.observe(domain.ActionNewVersion, state)
	return doc, nil
}

// Transition applies a requested action and records exactly one history entry.
// State always follows the version, except that a review request on a draft
// is shown as INTERNAL_REVIEW and ADVANCE lifts a rejected document back to
// IN_PROCESS.
func (e *Engine) Transition(ctx context.Context, in TransitionInput) (domain.Document, error) {
	if !in.Action.IsRequestable() {
		return domain.Document{}, fmt.Errorf("unsupported action %q", in.Action)
	}
	actor, err := e.actor(ctx, in.ActorID)
	if err != nil {
		return domain.Document{}, err
	}
	doc, err := e.Store.GetDocument(ctx, in.DocumentID)
	if err != nil {
		return domain.Document{}, err
	}

	now := e.now()
	previous := doc.State
	supplied := strings.TrimSpace(in.Version)
	if supplied != "" && in.Action != domain.ActionComment {
		doc.Version = supplied
		doc.SubmittedBy = nomenclature.SubmitterFor(supplied)
	}
	resolved := nomenclature.Resolve(doc.Version).State

	switch in.Action {
	case domain.ActionApprove, domain.ActionReject:
		doc.HasPendingRequest = false
		setState(&doc, resolved)
	case domain.ActionRequestApproval:
		doc.HasPendingRequest = true
		next := resolved
		if isDraft(previous) && next.Rank() < domain.StateInternalReview.Rank() {
			next = domain.StateInternalReview
		}
		setState(&doc, next)
	case domain.ActionAdvance:
		next := resolved
		if previous == domain.StateRejected && supplied == "" {
			next = domain.StateInProcess
		}
		setState(&doc, next)
		doc.HasPendingRequest = next.IsReviewState()
	case domain.ActionComment:
	}

	var superseded []domain.DocFile
	if in.File != nil && in.Action != domain.ActionComment {
		superseded, err = e.attach(ctx, &doc, actor.ID, *in.File, now)
		if err != nil {
			return domain.Document{}, err
		}
	}
	doc.UpdatedAt = now

	entry := e.entry(doc.ID, actor.ID, in.Action, previous, doc.State, doc.Version, in.Comment, now)
	if err := e.Store.SaveTransition(ctx, doc, entry); err != nil {
		return domain.Document{}, fmt.Errorf("save transition: %w", err)
	}
	e.discard(ctx, superseded)

	n := domain.Notification{
		DocumentID: doc.ID,
		Type:       domain.NotificationTransition,
		Title:      fmt.Sprintf("%s: %s", in.Action, doc.Title),
		Message:    fmt.Sprintf("%s applied %s (%s -> %s, version %s)", actor.Name, in.Action, previous, doc.State, doc.Version),
	}
	e.notifyManagers(ctx, actor, n)
	if doc.AuthorID != "" && doc.AuthorID != actor.ID {
		e.notifyUser(ctx, actor, doc.AuthorID, n)
	}
	e.observe(in.Action, doc.State)
	return doc, nil
}

// RevertLastTransition undoes the most recent history entry. It reports true
// when that entry was the creation and the whole document was removed.
func (e *Engine) RevertLastTransition(ctx context.Context, documentID string) (bool, error) {
	doc, err := e.Store.GetDocument(ctx, documentID)
	if err != nil {
		return false, err
	}
	history, err := e.Store.ListHistory(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("list history: %w", err)
	}

	if len(history) <= 1 {
		if err := e.Store.DeleteDocument(ctx, documentID); err != nil {
			return false, fmt.Errorf("delete document: %w", err)
		}
		e.discard(ctx, doc.Files)
		e.logger().Info("reverted document creation", zap.String("document_id", documentID))
		return true, nil
	}

	last := history[len(history)-1]
	prior := history[len(history)-2]
	doc.State = prior.NewState
	doc.Version = prior.Version
	doc.Progress = prior.NewState.Progress()
	doc.SubmittedBy = nomenclature.SubmitterFor(prior.Version)
	doc.HasPendingRequest = pendingAfter(history[:len(history)-1])
	doc.UpdatedAt = e.now()

	if err := e.Store.RevertTransition(ctx, doc, last.ID); err != nil {
		return false, fmt.Errorf("revert transition: %w", err)
	}
	e.logger().Info("reverted transition",
		zap.String("document_id", documentID),
		zap.String("action", string(last.Action)),
		zap.String("restored_state", doc.State.String()))
	return false, nil
}

// SyncMetadata re-derives state and progress from the stored version and
// reports whether anything had to change.
func (e *Engine) SyncMetadata(ctx context.Context, documentID, actorID string) (bool, error) {
	if actorID == "" {
		actorID = domain.SystemActorID
	}
	if _, err := e.actor(ctx, actorID); err != nil {
		return false, err
	}
	doc, err := e.Store.GetDocument(ctx, documentID)
	if err != nil {
		return false, err
	}

	expected := nomenclature.Resolve(doc.Version)
	pending := ExpectedPending(doc, expected.State)
	if doc.State == expected.State && doc.Progress == expected.Progress && doc.HasPendingRequest == pending {
		return false, nil
	}

	previous := doc.State
	doc.State = expected.State
	doc.Progress = expected.Progress
	doc.HasPendingRequest = pending
	doc.UpdatedAt = e.now()

	entry := e.entry(doc.ID, actorID, domain.ActionSystemSync, previous, doc.State, doc.Version, commentSystemSync, doc.UpdatedAt)
	if err := e.Store.SaveTransition(ctx, doc, entry); err != nil {
		return false, fmt.Errorf("save sync: %w", err)
	}
	e.logger().Info("synced document metadata",
		zap.String("document_id", doc.ID),
		zap.String("previous_state", previous.String()),
		zap.String("state", doc.State.String()))
	e.observe(domain.ActionSystemSync, doc.State)
	return true, nil
}

// ReplaceCurrentFile swaps the file held in a stage slot. The superseded
// object is removed best-effort; no history entry is written.
func (e *Engine) ReplaceCurrentFile(ctx context.Context, documentID, actorID string, stage domain.WorkflowState, upload Upload) (domain.Document, error) {
	if !stage.IsValid() {
		return domain.Document{}, fmt.Errorf("invalid stage %q", stage)
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.Document{}, err
	}
	doc, err := e.Store.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}

	now := e.now()
	superseded, err := e.put(ctx, &doc, stage, doc.Version, actor.ID, upload, now)
	if err != nil {
		return domain.Document{}, err
	}
	doc.UpdatedAt = now
	if err := e.Store.UpdateDocument(ctx, doc); err != nil {
		return domain.Document{}, fmt.Errorf("update document: %w", err)
	}
	e.discard(ctx, superseded)
	return doc, nil
}

// ExpectedPending is the pending flag a document should carry once its state
// is the one its version resolves to. A state change takes the review flag of
// the new state; an unchanged state only loses a request it can no longer have.
func ExpectedPending(doc domain.Document, expected domain.WorkflowState) bool {
	if doc.State != expected {
		return expected.IsReviewState()
	}
	return doc.HasPendingRequest && expected.IsReviewState()
}

func setState(doc *domain.Document, state domain.WorkflowState) {
	doc.State = state
	doc.Progress = state.Progress()
}

func isDraft(s domain.WorkflowState) bool {
	return s == domain.StateInitiated || s == domain.StateInProcess || s == domain.StateRejected
}

// pendingAfter is the pending flag implied by the last non-comment entry.
func pendingAfter(history []domain.HistoryEntry) bool {
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Action == domain.ActionComment {
			continue
		}
		return h.NewState.IsReviewState() && !h.Action.IsDecision()
	}
	return false
}

func (e *Engine) attach(ctx context.Context, doc *domain.Document, actorID string, upload Upload, now time.Time) ([]domain.DocFile, error) {
	return e.put(ctx, doc, doc.State, doc.Version, actorID, upload, now)
}

func (e *Engine) put(ctx context.Context, doc *domain.Document, stage domain.WorkflowState, version, actorID string, upload Upload, now time.Time) ([]domain.DocFile, error) {
	if e.Files == nil {
		return nil, fmt.Errorf("file storage is not configured")
	}
	key, err := e.Files.PutFile(ctx, doc.ID, stage, upload.Filename, upload.Content)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	old, replaced := doc.ReplaceCurrentFile(domain.DocFile{
		Stage:       stage,
		Filename:    upload.Filename,
		ObjectKey:   key,
		Version:     version,
		SubmittedBy: nomenclature.SubmitterFor(version),
		UploadedBy:  actorID,
		UploadedAt:  now,
	})
	if !replaced || old.ObjectKey == key {
		return nil, nil
	}
	return []domain.DocFile{old}, nil
}

func (e *Engine) discard(ctx context.Context, files []domain.DocFile) {
	if e.Files == nil {
		return
	}
	for _, f := range files {
		if f.ObjectKey == "" {
			continue
		}
		if err := e.Files.RemoveFile(ctx, f.ObjectKey); err != nil {
			e.logger().Warn("remove superseded file", zap.String("object_key", f.ObjectKey), zap.Error(err))
		}
	}
}

func (e *Engine) assignees(ctx context.Context, refs domain.HierarchyRefs, authorID string) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]bool)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	if e.Hierarchy != nil {
		assignment, err := e.Hierarchy.Lookup(ctx, refs.Project, refs.Microprocess)
		if err != nil {
			e.logger().Warn("hierarchy lookup failed",
				zap.String("project", string(refs.Project)),
				zap.String("microprocess", refs.Microprocess),
				zap.Error(err))
		}
		for _, id := range assignment.AssigneeIDs {
			add(id)
		}
	}
	add(authorID)
	return out
}

func (e *Engine) notifyManagers(ctx context.Context, actor domain.User, n domain.Notification) {
	if e.Notifier == nil {
		return
	}
	n = e.stamp(actor, n)
	if err := e.Notifier.NotifyManagers(ctx, n); err != nil {
		e.logger().Warn("notify managers", zap.String("document_id", n.DocumentID), zap.Error(err))
	}
}

func (e *Engine) notifyUser(ctx context.Context, actor domain.User, userID string, n domain.Notification) {
	if e.Notifier == nil {
		return
	}
	n = e.stamp(actor, n)
	if err := e.Notifier.Notify(ctx, userID, n); err != nil {
		e.logger().Warn("notify user", zap.String("document_id", n.DocumentID), zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) stamp(actor domain.User, n domain.Notification) domain.Notification {
	n.ID = e.newID()
	n.ActorID = actor.ID
	n.ActorName = actor.Name
	n.CreatedAt = e.now()
	return n
}

func (e *Engine) entry(documentID, userID string, action domain.Action, previous, next domain.WorkflowState, version, comment string, at time.Time) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:            e.newID(),
		DocumentID:    documentID,
		UserID:        userID,
		Action:        action,
		PreviousState: previous,
		NewState:      next,
		Version:       version,
		Comment:       comment,
		Timestamp:     at,
	}
}

// actor resolves a user id; the system actor needs no user record.
func (e *Engine) actor(ctx context.Context, id string) (domain.User, error) {
	if id == domain.SystemActorID {
		return domain.User{ID: domain.SystemActorID, Name: "system"}, nil
	}
	return e.Store.GetUser(ctx, id)
}

func (e *Engine) observe(action domain.Action, state domain.WorkflowState) {
	if e.Metrics != nil {
		e.Metrics.ObserveTransition(action, state)
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
