package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/broker"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/store"
)

const notificationsLink = "/app/applications"

type template struct {
	title   string
	message string
}

// Per-type templates, keyed by the threshold that produced the event. The
// message verb is formatted with the scholarship name and a human-readable
// target date.
var deadlineTemplates = map[string]template{
	domain.TypeDeadlineToday:    {"Deadline Today!", `Scholarship %q is due today, %s. Submit now!`},
	domain.TypeDeadlineTomorrow: {"Deadline Tomorrow!", `Scholarship %q is due tomorrow, %s.`},
	domain.TypeDeadline3Days:    {"Deadline in 3 Days", `Scholarship %q is ending soon. The deadline is %s.`},
	domain.TypeDeadline7Days:    {"Deadline in 7 Days", `One week left for scholarship %q. The deadline is %s.`},
	domain.TypeDeadlineMissed:   {"Deadline Missed!", `The scholarship %q ended on %s. Unfortunately, you missed the deadline.`},
}

// Materializer turns deadline and application events into persisted
// notifications and pushes them to the owner's real-time channel. It does
// blocking storage I/O, so the bus schedules it on the worker pool.
type Materializer struct {
	store  store.DocumentStore
	broker *broker.Broker
	logger *slog.Logger
	now    func() time.Time
}

func NewMaterializer(docs store.DocumentStore, b *broker.Broker, logger *slog.Logger) *Materializer {
	return &Materializer{
		store:  docs,
		broker: b,
		logger: logger,
		now:    time.Now,
	}
}

func (m *Materializer) Name() string { return "notification-materializer" }

func (m *Materializer) Blocking() {}

func (m *Materializer) Handle(ctx context.Context, evt domain.Event) error {
	switch evt.Type {
	case domain.EventDeadlineApproaching, domain.EventDeadlineMissed:
		return m.handleDeadline(ctx, evt)
	case domain.EventApplicationCreated:
		return m.handleApplicationCreated(ctx, evt)
	default:
		return nil
	}
}

func (m *Materializer) handleDeadline(ctx context.Context, evt domain.Event) error {
	ownerID := evt.String("owner_id")
	subjectID := evt.String("subject_id")
	name := evt.String("name")
	targetDate := evt.String("target_date")
	days, ok := evt.Int("days_left")
	if ownerID == "" || subjectID == "" || !ok {
		m.logger.Warn("dropping malformed deadline event", "event_type", evt.Type, "payload", evt.Payload)
		return nil
	}

	var notifType string
	if evt.Type == domain.EventDeadlineMissed {
		notifType = domain.TypeDeadlineMissed
	} else {
		notifType = Thresholds[days]
		if notifType == "" {
			m.logger.Warn("deadline event outside threshold table", "days_left", days, "subject_id", subjectID)
			return nil
		}
	}

	tmpl := deadlineTemplates[notifType]
	n := domain.Notification{
		ID:        Key(ownerID, subjectID, notifType, targetDate),
		OwnerID:   ownerID,
		Type:      notifType,
		Title:     tmpl.title,
		Message:   fmt.Sprintf(tmpl.message, name, displayDate(targetDate)),
		CreatedAt: m.now().UTC(),
		Link:      notificationsLink,
		Metadata:  evt.Payload,
	}
	return m.materialize(ctx, n)
}

func (m *Materializer) handleApplicationCreated(ctx context.Context, evt domain.Event) error {
	ownerID := evt.String("owner_id")
	subjectID := evt.String("subject_id")
	name := evt.String("name")
	if ownerID == "" || subjectID == "" {
		m.logger.Warn("dropping malformed application event", "payload", evt.Payload)
		return nil
	}

	// Dedup per calendar day: re-creating the same application later still
	// gets a fresh notification, retries within the day do not.
	n := domain.Notification{
		ID:        Key(ownerID, subjectID, domain.TypeApplicationAdded, DayBucket(m.now())),
		OwnerID:   ownerID,
		Type:      domain.TypeApplicationAdded,
		Title:     "New Application Started",
		Message:   fmt.Sprintf("You have started an application for %q. Remember to update your progress!", name),
		CreatedAt: m.now().UTC(),
		Link:      notificationsLink,
		Metadata:  evt.Payload,
	}
	return m.materialize(ctx, n)
}

// materialize performs the conditional write and, only when this call was the
// one that created the record, publishes it to the owner's channel. A lost
// duplicate-write race is success, not an error.
func (m *Materializer) materialize(ctx context.Context, n domain.Notification) error {
	written, err := m.store.PutIfAbsent(ctx, store.CollectionNotifications, n.ID, n.Record())
	if err != nil {
		// Dropped here; the next periodic scan recomputes the same key from
		// subject state and retries.
		return fmt.Errorf("persisting notification %s: %w", n.ID, err)
	}
	if !written {
		m.logger.Debug("notification already materialized",
			"notification_id", n.ID,
			"owner_id", n.OwnerID,
			"type", n.Type,
		)
		return nil
	}

	m.logger.Info("notification materialized",
		"notification_id", n.ID,
		"owner_id", n.OwnerID,
		"type", n.Type,
	)

	channel := broker.UserNotifications(n.OwnerID)
	if _, err := m.broker.Publish(ctx, channel, n); err != nil {
		// The notification is durably recorded; the client picks it up on
		// its next fetch even if the push is lost.
		m.logger.Error("realtime publish failed",
			"channel", channel,
			"notification_id", n.ID,
			"error", err,
		)
	}
	return nil
}

// displayDate renders a stored date for end users, falling back to the raw
// string when it does not parse.
func displayDate(raw string) string {
	t, err := ParseTargetDate(raw)
	if err != nil {
		return raw
	}
	return t.Format("January 02, 2006")
}
