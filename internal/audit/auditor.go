package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"approval-tracker/internal/domain"
	"approval-tracker/internal/engine"
	"approval-tracker/internal/nomenclature"
)

const DefaultBatchSize = 400

type Store interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
	UpdateDocument(ctx context.Context, doc domain.Document) error
}

// Syncer is the write side; *engine.Engine satisfies it.
type Syncer interface {
	SyncMetadata(ctx context.Context, documentID, actorID string) (bool, error)
}

type DriftRecorder interface {
	ObserveDrift(count int)
	ObserveSyncFailure()
}

// Finding is a detected drift between what a document stores and what its
// version implies. It is reported, never corrected here.
type Finding struct {
	Document     domain.Document         `json:"document"`
	Expected     nomenclature.Resolution `json:"expected"`
	StateDrift   bool                    `json:"state_drift"`
	PendingDrift bool                    `json:"pending_drift"`
	Fingerprint  string                  `json:"fingerprint"`
}

type SyncReport struct {
	Synced    []string          `json:"synced"`
	Unchanged []string          `json:"unchanged"`
	Failed    map[string]string `json:"failed"`
}

type Auditor struct {
	Store     Store
	Syncer    Syncer
	Metrics   DriftRecorder
	Logger    *zap.Logger
	BatchSize int
}

// Fingerprint identifies the (version, state) pair an ignore mark applies to.
func Fingerprint(doc domain.Document) string {
	sum := sha256.Sum256([]byte(doc.Version + "|" + string(doc.State)))
	return hex.EncodeToString(sum[:])
}

// Inspect checks one document. Documents whose ignore mark still matches are
// reported as consistent.
func Inspect(doc domain.Document) (Finding, bool) {
	fp := Fingerprint(doc)
	if doc.IgnoredInconsistency != "" && doc.IgnoredInconsistency == fp {
		return Finding{}, false
	}
	expected := nomenclature.Resolve(doc.Version)
	f := Finding{
		Document:     doc,
		Expected:     expected,
		StateDrift:   doc.State != expected.State,
		PendingDrift: doc.HasPendingRequest != engine.ExpectedPending(doc, expected.State),
		Fingerprint:  fp,
	}
	return f, f.StateDrift || f.PendingDrift
}

// Scan returns the inconsistent subset of docs, in input order.
func Scan(docs []domain.Document) []Finding {
	out := make([]Finding, 0)
	for _, doc := range docs {
		if f, ok := Inspect(doc); ok {
			out = append(out, f)
		}
	}
	return out
}

// Inconsistencies loads documents matching filter and scans them.
func (a *Auditor) Inconsistencies(ctx context.Context, filter domain.DocumentFilter) ([]Finding, error) {
	docs, err := a.Store.ListDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	findings := Scan(docs)
	if a.Metrics != nil {
		a.Metrics.ObserveDrift(len(findings))
	}
	a.logger().Info("consistency scan finished",
		zap.Int("documents", len(docs)),
		zap.Int("inconsistent", len(findings)))
	return findings, nil
}

// Ignore marks the document's current drift as accepted. The mark lapses as
// soon as version or state changes.
func (a *Auditor) Ignore(ctx context.Context, documentID string) (domain.Document, error) {
	doc, err := a.Store.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	doc.IgnoredInconsistency = Fingerprint(doc)
	if err := a.Store.UpdateDocument(ctx, doc); err != nil {
		return domain.Document{}, fmt.Errorf("update document: %w", err)
	}
	a.logger().Info("inconsistency ignored",
		zap.String("document_id", doc.ID),
		zap.String("fingerprint", doc.IgnoredInconsistency))
	return doc, nil
}

// SyncAll applies SyncMetadata to every id, chunk by chunk. A failing document
// is recorded in the report and the batch carries on; only a cancelled context
// stops it early.
func (a *Auditor) SyncAll(ctx context.Context, documentIDs []string, actorID string) (SyncReport, error) {
	report := SyncReport{Synced: []string{}, Unchanged: []string{}, Failed: map[string]string{}}
	for _, chunk := range Chunks(documentIDs, a.batchSize()) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		part := a.SyncChunk(ctx, chunk, actorID)
		report.Merge(part)
	}
	a.logger().Info("sync finished",
		zap.Int("synced", len(report.Synced)),
		zap.Int("unchanged", len(report.Unchanged)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// SyncChunk syncs one chunk and never fails as a whole.
func (a *Auditor) SyncChunk(ctx context.Context, documentIDs []string, actorID string) SyncReport {
	report := SyncReport{Synced: []string{}, Unchanged: []string{}, Failed: map[string]string{}}
	for _, id := range documentIDs {
		changed, err := a.Syncer.SyncMetadata(ctx, id, actorID)
		switch {
		case err != nil:
			report.Failed[id] = err.Error()
			if a.Metrics != nil {
				a.Metrics.ObserveSyncFailure()
			}
			a.logger().Error("sync document failed", zap.String("document_id", id), zap.Error(err))
		case changed:
			report.Synced = append(report.Synced, id)
		default:
			report.Unchanged = append(report.Unchanged, id)
		}
	}
	return report
}

func (r *SyncReport) Merge(other SyncReport) {
	if r.Failed == nil {
		r.Failed = map[string]string{}
	}
	r.Synced = append(r.Synced, other.Synced...)
	r.Unchanged = append(r.Unchanged, other.Unchanged...)
	for id, msg := range other.Failed {
		r.Failed[id] = msg
	}
}

// Chunks splits ids into consecutive slices of at most size elements.
func Chunks(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func IDs(findings []Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Document.ID)
	}
	return out
}

func (a *Auditor) batchSize() int {
	if a.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return a.BatchSize
}

func (a *Auditor) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}
