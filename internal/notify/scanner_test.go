package notify

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/bus"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventRecorder collects emitted events for assertions.
type eventRecorder struct {
	ch chan domain.Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan domain.Event, 64)}
}

func (r *eventRecorder) Name() string { return "recorder" }

func (r *eventRecorder) Handle(ctx context.Context, evt domain.Event) error {
	r.ch <- evt
	return nil
}

func (r *eventRecorder) next(t *testing.T) domain.Event {
	t.Helper()
	select {
	case evt := <-r.ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emitted event")
		return domain.Event{}
	}
}

func (r *eventRecorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case evt := <-r.ch:
		t.Fatalf("unexpected event emitted: %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestScanner(t *testing.T, docs store.DocumentStore, now time.Time) (*Scanner, *eventRecorder) {
	t.Helper()

	b := bus.New(nil, testLogger())
	rec := newEventRecorder()
	b.Subscribe(domain.EventDeadlineApproaching, rec)
	b.Subscribe(domain.EventDeadlineMissed, rec)

	s := NewScanner(docs, b, testLogger())
	s.now = func() time.Time { return now }
	return s, rec
}

func TestScanner_ThresholdTable(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		delta     int
		wantEvent string // "" means no event
	}{
		{10, ""},
		{8, ""},
		{6, ""},
		{5, ""},
		{4, ""},
		{2, ""},
		{7, domain.EventDeadlineApproaching},
		{3, domain.EventDeadlineApproaching},
		{1, domain.EventDeadlineApproaching},
		{0, domain.EventDeadlineApproaching},
		{-1, domain.EventDeadlineMissed},
		{-5, domain.EventDeadlineMissed},
	}

	for _, tc := range tests {
		s, rec := newTestScanner(t, store.NewMemory(), now)

		app := domain.Application{
			ID:       "a1",
			OwnerID:  "u1",
			Name:     "Fulbright",
			Deadline: now.AddDate(0, 0, tc.delta).Format("2006-01-02"),
		}

		emitted := s.CheckOne(context.Background(), app)

		if tc.wantEvent == "" {
			if emitted {
				t.Errorf("delta %d: expected no event", tc.delta)
			}
			rec.expectNone(t)
			continue
		}

		if !emitted {
			t.Errorf("delta %d: expected an event", tc.delta)
			continue
		}
		evt := rec.next(t)
		if evt.Type != tc.wantEvent {
			t.Errorf("delta %d: expected event type %s, got %s", tc.delta, tc.wantEvent, evt.Type)
		}
		if days, _ := evt.Int("days_left"); days != tc.delta {
			t.Errorf("delta %d: payload days_left = %d", tc.delta, days)
		}
		if evt.String("owner_id") != "u1" || evt.String("subject_id") != "a1" {
			t.Errorf("delta %d: payload identity fields wrong: %+v", tc.delta, evt.Payload)
		}
	}
}

func TestScanner_ApplyDateWinsOverDeadline(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	s, rec := newTestScanner(t, store.NewMemory(), now)

	app := domain.Application{
		ID:        "a1",
		OwnerID:   "u1",
		Name:      "Chevening",
		ApplyDate: now.AddDate(0, 0, 3).Format("2006-01-02"),
		Deadline:  now.AddDate(0, 0, 30).Format("2006-01-02"),
	}

	if !s.CheckOne(context.Background(), app) {
		t.Fatal("expected an event from the apply date")
	}
	evt := rec.next(t)
	if days, _ := evt.Int("days_left"); days != 3 {
		t.Errorf("expected days_left 3 from apply_date, got %d", days)
	}
}

func TestScanner_RunSkipsMalformedRecords(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	docs := store.NewMemory()
	ctx := context.Background()

	docs.PutIfAbsent(ctx, store.CollectionApplications, "good", domain.Record{
		"owner_id": "u1", "name": "Fulbright",
		"deadline": now.AddDate(0, 0, 3).Format("2006-01-02"),
	})
	docs.PutIfAbsent(ctx, store.CollectionApplications, "bad-date", domain.Record{
		"owner_id": "u1", "name": "Broken",
		"deadline": "next tuesday",
	})
	docs.PutIfAbsent(ctx, store.CollectionApplications, "no-date", domain.Record{
		"owner_id": "u1", "name": "Dateless",
	})
	docs.PutIfAbsent(ctx, store.CollectionApplications, "far-future", domain.Record{
		"owner_id": "u1", "name": "Distant",
		"deadline": now.AddDate(0, 0, 120).Format("2006-01-02"),
	})

	s, rec := newTestScanner(t, docs, now)

	sum, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if sum.Scanned != 4 {
		t.Errorf("expected 4 scanned, got %d", sum.Scanned)
	}
	if sum.Emitted != 1 {
		t.Errorf("expected 1 emitted, got %d", sum.Emitted)
	}
	if sum.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", sum.Skipped)
	}

	evt := rec.next(t)
	if evt.String("subject_id") != "good" {
		t.Errorf("expected event for 'good', got %s", evt.String("subject_id"))
	}
	rec.expectNone(t)
}

func TestScanner_IsoTimestampDates(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	s, rec := newTestScanner(t, store.NewMemory(), now)

	app := domain.Application{
		ID:       "a1",
		OwnerID:  "u1",
		Name:     "Erasmus",
		Deadline: "2026-03-17T09:30:00Z",
	}

	if !s.CheckOne(context.Background(), app) {
		t.Fatal("expected an event for a 7-day ISO timestamp deadline")
	}
	evt := rec.next(t)
	if days, _ := evt.Int("days_left"); days != 7 {
		t.Errorf("expected days_left 7, got %d", days)
	}
	if evt.String("target_date") != "2026-03-17" {
		t.Errorf("expected normalized target_date, got %q", evt.String("target_date"))
	}
}

func TestParseTargetDate(t *testing.T) {
	tests := []struct {
		in      string
		wantDay string
		wantErr bool
	}{
		{"2026-09-01", "2026-09-01", false},
		{"2026-09-01T12:00:00Z", "2026-09-01", false},
		{"2026-09-01T12:00:00", "2026-09-01", false},
		{"2026-09-01T12:00:00+07:00", "2026-09-01", false},
		{"09/01/2026", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		got, err := ParseTargetDate(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTargetDate(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTargetDate(%q): %v", tc.in, err)
			continue
		}
		if day := got.Format("2006-01-02"); day != tc.wantDay {
			t.Errorf("ParseTargetDate(%q) = %s, want %s", tc.in, day, tc.wantDay)
		}
	}
}
