package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/broker"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := broker.New(broker.NewRedisTransport(client), testLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})
	return b
}

func deadlineEvent(days int) domain.Event {
	eventType := domain.EventDeadlineApproaching
	if days < 0 {
		eventType = domain.EventDeadlineMissed
	}
	return domain.Event{
		Type: eventType,
		Payload: map[string]any{
			"owner_id":    "u1",
			"subject_id":  "a1",
			"name":        "Fulbright",
			"days_left":   days,
			"target_date": "2026-09-01",
		},
	}
}

func TestMaterializer_WritesNotificationWithDeterministicID(t *testing.T) {
	docs := store.NewMemory()
	m := NewMaterializer(docs, newTestBroker(t), testLogger())
	ctx := context.Background()

	if err := m.Handle(ctx, deadlineEvent(3)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	wantID := Key("u1", "a1", domain.TypeDeadline3Days, "2026-09-01")
	rec, ok, err := docs.Get(ctx, store.CollectionNotifications, wantID)
	if err != nil || !ok {
		t.Fatalf("notification not found under deterministic id: ok=%v err=%v", ok, err)
	}

	n := domain.NotificationFromRecord(wantID, rec)
	if n.Type != domain.TypeDeadline3Days {
		t.Errorf("expected type %s, got %s", domain.TypeDeadline3Days, n.Type)
	}
	if !strings.Contains(n.Title, "3") {
		t.Errorf("title should mention the threshold, got %q", n.Title)
	}
	if !strings.Contains(n.Message, "Fulbright") {
		t.Errorf("message should mention the scholarship, got %q", n.Message)
	}
	if !strings.Contains(n.Message, "September 01, 2026") {
		t.Errorf("message should carry a human-readable date, got %q", n.Message)
	}
	if n.IsRead {
		t.Error("new notifications must start unread")
	}
}

func TestMaterializer_MissedDeadlineUsesMissedType(t *testing.T) {
	docs := store.NewMemory()
	m := NewMaterializer(docs, newTestBroker(t), testLogger())
	ctx := context.Background()

	if err := m.Handle(ctx, deadlineEvent(-5)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	wantID := Key("u1", "a1", domain.TypeDeadlineMissed, "2026-09-01")
	rec, ok, _ := docs.Get(ctx, store.CollectionNotifications, wantID)
	if !ok {
		t.Fatal("missed-deadline notification not found")
	}
	n := domain.NotificationFromRecord(wantID, rec)
	if !strings.Contains(n.Message, "missed") {
		t.Errorf("missed template expected, got %q", n.Message)
	}
}

func TestMaterializer_IdempotentUnderRepeatedEvents(t *testing.T) {
	docs := store.NewMemory()
	m := NewMaterializer(docs, newTestBroker(t), testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := m.Handle(ctx, deadlineEvent(3)); err != nil {
			t.Fatalf("handle %d failed: %v", i, err)
		}
	}

	if n := docs.Count(store.CollectionNotifications); n != 1 {
		t.Errorf("expected exactly 1 notification after 5 sequential events, got %d", n)
	}
}

func TestMaterializer_IdempotentUnderConcurrentEvents(t *testing.T) {
	docs := store.NewMemory()
	m := NewMaterializer(docs, newTestBroker(t), testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Handle(ctx, deadlineEvent(3)); err != nil {
				t.Errorf("concurrent handle failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := docs.Count(store.CollectionNotifications); n != 1 {
		t.Errorf("expected exactly 1 notification after 20 concurrent events, got %d", n)
	}
}

func TestMaterializer_DistinctOccurrencesGetDistinctRecords(t *testing.T) {
	docs := store.NewMemory()
	m := NewMaterializer(docs, newTestBroker(t), testLogger())
	ctx := context.Background()

	m.Handle(ctx, deadlineEvent(3))
	m.Handle(ctx, deadlineEvent(0)) // different threshold, same subject
	m.Handle(ctx, deadlineEvent(-1))

	if n := docs.Count(store.CollectionNotifications); n != 3 {
		t.Errorf("expected 3 distinct notifications, got %d", n)
	}
}

func TestMaterializer_ApplicationCreatedDedupsPerDay(t *testing.T) {
	docs := store.NewMemory()
	m := NewMaterializer(docs, newTestBroker(t), testLogger())
	fixed := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	evt := domain.Event{
		Type: domain.EventApplicationCreated,
		Payload: map[string]any{
			"owner_id":   "u1",
			"subject_id": "a1",
			"name":       "Fulbright",
		},
	}

	m.Handle(ctx, evt)
	m.Handle(ctx, evt)
	if n := docs.Count(store.CollectionNotifications); n != 1 {
		t.Fatalf("same-day retries must dedup, got %d records", n)
	}

	// A day later the bucket rolls over and a fresh record is allowed.
	m.now = func() time.Time { return fixed.AddDate(0, 0, 1) }
	m.Handle(ctx, evt)
	if n := docs.Count(store.CollectionNotifications); n != 2 {
		t.Errorf("next-day creation should materialize again, got %d records", n)
	}
}

func TestMaterializer_MalformedEventIsDropped(t *testing.T) {
	docs := store.NewMemory()
	m := NewMaterializer(docs, newTestBroker(t), testLogger())
	ctx := context.Background()

	evt := domain.Event{
		Type:    domain.EventDeadlineApproaching,
		Payload: map[string]any{"name": "No identity"},
	}
	if err := m.Handle(ctx, evt); err != nil {
		t.Fatalf("malformed events must be dropped, not errored: %v", err)
	}
	if n := docs.Count(store.CollectionNotifications); n != 0 {
		t.Errorf("nothing should be written for malformed events, got %d", n)
	}
}
