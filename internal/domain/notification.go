package domain

import (
	"time"
)

// Notification types. The deadline types are keyed off the day-delta
// threshold that produced them; APPLICATION_ADDED comes from the create flow.
const (
	TypeApplicationAdded = "APPLICATION_ADDED"
	TypeDeadlineToday    = "DEADLINE_TODAY"
	TypeDeadlineTomorrow = "DEADLINE_1_DAY"
	TypeDeadline3Days    = "DEADLINE_3_DAYS"
	TypeDeadline7Days    = "DEADLINE_7_DAYS"
	TypeDeadlineMissed   = "DEADLINE_MISSED"
)

// Notification is the persisted entity. Its ID is derived deterministically
// from (owner, subject, type, target date), so the same logical occurrence
// always maps to the same storage key.
type Notification struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	Link      string         `json:"link"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Record converts the notification to a document-store record.
func (n Notification) Record() Record {
	return Record{
		"owner_id":   n.OwnerID,
		"type":       n.Type,
		"title":      n.Title,
		"message":    n.Message,
		"is_read":    n.IsRead,
		"created_at": n.CreatedAt.UTC().Format(time.RFC3339),
		"link":       n.Link,
		"metadata":   n.Metadata,
	}
}

// NotificationFromRecord rebuilds a notification from a stored record.
func NotificationFromRecord(id string, rec Record) Notification {
	n := Notification{
		ID:      id,
		OwnerID: str(rec, "owner_id"),
		Type:    str(rec, "type"),
		Title:   str(rec, "title"),
		Message: str(rec, "message"),
		Link:    str(rec, "link"),
	}
	if read, ok := rec["is_read"].(bool); ok {
		n.IsRead = read
	}
	if ts, err := time.Parse(time.RFC3339, str(rec, "created_at")); err == nil {
		n.CreatedAt = ts
	}
	if md, ok := rec["metadata"].(map[string]any); ok {
		n.Metadata = md
	}
	return n
}

func str(rec Record, key string) string {
	s, _ := rec[key].(string)
	return s
}
