package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"approval-tracker/internal/audit"
	"approval-tracker/internal/domain"
	"approval-tracker/internal/engine"
	"approval-tracker/internal/nomenclature"
)

type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
}

type Auditor interface {
	Inconsistencies(ctx context.Context, filter domain.DocumentFilter) ([]audit.Finding, error)
	SyncChunk(ctx context.Context, documentIDs []string, actorID string) audit.SyncReport
}

type VersionRegistrar interface {
	Create(ctx context.Context, in engine.CreateInput) (domain.Document, error)
}

type BlobStore interface {
	GetFile(ctx context.Context, objectKey string) ([]byte, error)
	RemoveFile(ctx context.Context, objectKey string) error
}

type Activities struct {
	Documents DocumentReader
	Auditor   Auditor
	Engine    VersionRegistrar
	Blob      BlobStore
	Logger    *zap.Logger
}

type ScanInput struct {
	DocumentIDs []string
}

type ScanOutput struct {
	DocumentIDs []string
}

type SyncChunkInput struct {
	ActorID     string
	DocumentIDs []string
}

type ValidateUploadInput struct {
	DocumentID string
	Filename   string
}

type ValidateUploadOutput struct {
	Valid   bool
	Errors  []string
	Version string
}

type RegisterVersionInput struct {
	DocumentID string
	Filename   string
	ObjectKey  string
	Version    string
}

type RegisterVersionOutput struct {
	State    domain.WorkflowState
	Progress int
	Skipped  bool
}

// ScanInconsistenciesActivity returns the ids that currently drift. With no
// ids given every document is scanned; unknown ids are skipped.
func (a *Activities) ScanInconsistenciesActivity(ctx context.Context, input ScanInput) (ScanOutput, error) {
	if len(input.DocumentIDs) == 0 {
		findings, err := a.Auditor.Inconsistencies(ctx, domain.DocumentFilter{})
		if err != nil {
			return ScanOutput{}, err
		}
		return ScanOutput{DocumentIDs: audit.IDs(findings)}, nil
	}

	out := ScanOutput{DocumentIDs: make([]string, 0, len(input.DocumentIDs))}
	for _, id := range input.DocumentIDs {
		doc, err := a.Documents.GetDocument(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			a.logger().Warn("resync skips unknown document", zap.String("document_id", id))
			continue
		}
		if err != nil {
			return ScanOutput{}, err
		}
		if _, drift := audit.Inspect(doc); drift {
			out.DocumentIDs = append(out.DocumentIDs, id)
		}
	}
	return out, nil
}

func (a *Activities) SyncChunkActivity(ctx context.Context, input SyncChunkInput) (audit.SyncReport, error) {
	actor := input.ActorID
	if actor == "" {
		actor = domain.SystemActorID
	}
	return a.Auditor.SyncChunk(ctx, input.DocumentIDs, actor), nil
}

// ValidateUploadActivity checks a drop-zone filename against the document it
// was dropped for. Invalid names are a result, not an error.
func (a *Activities) ValidateUploadActivity(ctx context.Context, input ValidateUploadInput) (ValidateUploadOutput, error) {
	doc, err := a.Documents.GetDocument(ctx, input.DocumentID)
	if errors.Is(err, domain.ErrNotFound) {
		return ValidateUploadOutput{Errors: []string{fmt.Sprintf("document %q does not exist", input.DocumentID)}}, nil
	}
	if err != nil {
		return ValidateUploadOutput{}, err
	}

	res := nomenclature.ParseWithContext(input.Filename, nomenclature.Context{
		Project:      doc.Hierarchy.Project,
		Microprocess: doc.Hierarchy.Microprocess,
		DocType:      doc.Hierarchy.DocType,
	})
	out := ValidateUploadOutput{Errors: res.Errors}
	if res.Tokens != nil {
		out.Version = res.Tokens.Nomenclature
	}
	// Inbox drops carry no identity, so they are held to what an analyst may submit.
	if res.Valid {
		if sub := nomenclature.ValidateSubmission(out.Version, doc.Version, domain.RoleAnalyst); !sub.Valid {
			out.Errors = append(out.Errors, sub.Error)
		}
	}
	out.Valid = len(out.Errors) == 0
	return out, nil
}

// RegisterVersionActivity records the dropped file as the document's new
// version. A replay that finds the version already registered does nothing.
func (a *Activities) RegisterVersionActivity(ctx context.Context, input RegisterVersionInput) (RegisterVersionOutput, error) {
	doc, err := a.Documents.GetDocument(ctx, input.DocumentID)
	if err != nil {
		return RegisterVersionOutput{}, err
	}
	if doc.Version == input.Version {
		if f, ok := doc.CurrentFile(doc.State); ok && f.Filename == input.Filename {
			return RegisterVersionOutput{State: doc.State, Progress: doc.Progress, Skipped: true}, nil
		}
	}

	content, err := a.Blob.GetFile(ctx, input.ObjectKey)
	if err != nil {
		return RegisterVersionOutput{}, fmt.Errorf("read %s: %w", input.ObjectKey, err)
	}
	updated, err := a.Engine.Create(ctx, engine.CreateInput{
		ExistingID:     input.DocumentID,
		AuthorID:       domain.SystemActorID,
		InitialVersion: input.Version,
		File:           &engine.Upload{Filename: input.Filename, Content: content},
	})
	if err != nil {
		return RegisterVersionOutput{}, err
	}
	if err := a.Blob.RemoveFile(ctx, input.ObjectKey); err != nil {
		a.logger().Warn("remove inbox object", zap.String("object_key", input.ObjectKey), zap.Error(err))
	}
	return RegisterVersionOutput{State: updated.State, Progress: updated.Progress}, nil
}

func (a *Activities) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}
