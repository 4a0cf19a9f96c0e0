package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"approval-tracker/internal/audit"
	"approval-tracker/internal/domain"
)

type Scanner interface {
	Inconsistencies(ctx context.Context, filter domain.DocumentFilter) ([]audit.Finding, error)
}

// DriftScanner runs the consistency scan on a cron schedule and only reports.
// Repairs stay an explicit operator action.
type DriftScanner struct {
	cron    *cron.Cron
	scanner Scanner
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	last   []audit.Finding
	lastAt time.Time
	now    func() time.Time
}

func NewDriftScanner(scanner Scanner, logger *zap.Logger) *DriftScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriftScanner{
		cron:    cron.New(),
		scanner: scanner,
		logger:  logger,
		timeout: 5 * time.Minute,
		now:     time.Now,
	}
}

// Schedule registers the scan. An empty expression leaves the scanner idle.
func (s *DriftScanner) Schedule(expr string) error {
	if expr == "" {
		s.logger.Info("drift scan disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule drift scan %q: %w", expr, err)
	}
	s.logger.Info("drift scan scheduled", zap.String("cron", expr))
	return nil
}

func (s *DriftScanner) Start() {
	s.cron.Start()
}

// Stop waits for a running scan to finish or ctx to expire.
func (s *DriftScanner) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *DriftScanner) RunOnce(ctx context.Context) ([]audit.Finding, error) {
	findings, err := s.scanner.Inconsistencies(ctx, domain.DocumentFilter{})
	if err != nil {
		s.logger.Error("drift scan failed", zap.Error(err))
		return nil, err
	}
	for _, f := range findings {
		s.logger.Warn("document drift",
			zap.String("document_id", f.Document.ID),
			zap.String("version", f.Document.Version),
			zap.String("state", f.Document.State.String()),
			zap.String("expected_state", f.Expected.State.String()),
			zap.Bool("pending_drift", f.PendingDrift))
	}
	s.mu.Lock()
	s.last = findings
	s.lastAt = s.now().UTC()
	s.mu.Unlock()
	return findings, nil
}

// Last returns the findings of the most recent successful scan.
func (s *DriftScanner) Last() []audit.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Finding(nil), s.last...)
}

type report struct {
	ScannedAt *time.Time      `json:"scanned_at"`
	Count     int             `json:"count"`
	Items     []audit.Finding `json:"items"`
}

// ServeHTTP reports the last successful scan as JSON. scanned_at is null until
// the first scan completes.
func (s *DriftScanner) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	items := s.Last()
	if items == nil {
		items = []audit.Finding{}
	}
	out := report{Count: len(items), Items: items}
	s.mu.Lock()
	if !s.lastAt.IsZero() {
		at := s.lastAt
		out.ScannedAt = &at
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
