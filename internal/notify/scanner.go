package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/bus"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/store"
	"github.com/google/uuid"
)

// Thresholds maps the day deltas at which an approaching-deadline event fires
// to the notification type it produces. A lookup table rather than branching:
// product policy can add thresholds without touching control flow. Deltas
// outside the table (and not negative) fire nothing, which is what keeps
// recurring scans from flooding users.
var Thresholds = map[int]string{
	0: domain.TypeDeadlineToday,
	1: domain.TypeDeadlineTomorrow,
	3: domain.TypeDeadline3Days,
	7: domain.TypeDeadline7Days,
}

// ScanSummary reports what one scanner invocation did.
type ScanSummary struct {
	Scanned int `json:"scanned"`
	Emitted int `json:"emitted"`
	Skipped int `json:"skipped"`
}

// Scanner walks all application records and emits deadline events for the
// ones whose day delta crosses a threshold. It is invoked by the periodic
// scheduler; it never creates notifications itself.
type Scanner struct {
	store  store.DocumentStore
	bus    *bus.Bus
	logger *slog.Logger
	now    func() time.Time
}

func NewScanner(docs store.DocumentStore, b *bus.Bus, logger *slog.Logger) *Scanner {
	return &Scanner{
		store:  docs,
		bus:    b,
		logger: logger,
		now:    time.Now,
	}
}

// Run enumerates every application across all owners. Emission is
// fire-and-forget: the scanner does not wait for materialization before
// moving to the next record. A malformed record is logged and skipped; it
// never aborts the scan.
func (s *Scanner) Run(ctx context.Context) (ScanSummary, error) {
	runID := uuid.NewString()
	start := s.now()
	s.logger.Info("deadline scan started", "run_id", runID)

	var sum ScanSummary
	err := s.store.StreamAll(ctx, store.CollectionApplications, func(id string, rec domain.Record) error {
		sum.Scanned++
		switch s.check(ctx, domain.ApplicationFromRecord(id, rec)) {
		case checkEmitted:
			sum.Emitted++
		case checkSkipped:
			sum.Skipped++
		}
		return nil
	})
	if err != nil {
		// Partial progress stays in the summary.
		return sum, fmt.Errorf("scanning applications: %w", err)
	}

	s.logger.Info("deadline scan completed",
		"run_id", runID,
		"scanned", sum.Scanned,
		"emitted", sum.Emitted,
		"skipped", sum.Skipped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}

// CheckOne applies the per-subject logic to a single in-memory record, so a
// freshly created application gets its deadline feedback without waiting for
// the next periodic scan. Returns true when an event was emitted.
func (s *Scanner) CheckOne(ctx context.Context, app domain.Application) bool {
	return s.check(ctx, app) == checkEmitted
}

type checkResult int

const (
	checkNoEvent checkResult = iota
	checkEmitted
	checkSkipped
)

func (s *Scanner) check(ctx context.Context, app domain.Application) checkResult {
	raw := app.TargetDate()
	if raw == "" {
		s.logger.Debug("application has no target date", "subject_id", app.ID)
		return checkSkipped
	}

	target, err := ParseTargetDate(raw)
	if err != nil {
		s.logger.Warn("skipping application with malformed target date",
			"subject_id", app.ID,
			"target_date", raw,
			"error", err,
		)
		return checkSkipped
	}

	delta := dayDelta(target, s.now())

	var eventType string
	switch {
	case delta < 0:
		eventType = domain.EventDeadlineMissed
	default:
		if _, ok := Thresholds[delta]; !ok {
			return checkNoEvent
		}
		eventType = domain.EventDeadlineApproaching
	}

	s.bus.Emit(ctx, eventType, map[string]any{
		"owner_id":    app.OwnerID,
		"subject_id":  app.ID,
		"name":        app.Name,
		"days_left":   delta,
		"target_date": target.Format("2006-01-02"),
	})
	s.logger.Info("deadline event emitted",
		"event_type", eventType,
		"subject_id", app.ID,
		"owner_id", app.OwnerID,
		"days_left", delta,
	)
	return checkEmitted
}

// ParseTargetDate accepts either a plain YYYY-MM-DD date or an ISO timestamp
// (with or without a trailing Z).
func ParseTargetDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "T") {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(s, "Z"))
	}
	return time.Parse("2006-01-02", s)
}

// dayDelta computes target minus now in whole UTC calendar days, ignoring
// time of day.
func dayDelta(target, now time.Time) int {
	ty, tm, td := target.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b) / (24 * time.Hour))
}
