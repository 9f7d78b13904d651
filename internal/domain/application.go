package domain

// Record is a schemaless document as stored in the document store.
type Record map[string]any

// Application is a subject record owned by the application CRUD layer. The
// notification core only reads it.
type Application struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	ScholarshipID string `json:"scholarship_id"`
	Name          string `json:"name"`
	Status        string `json:"status,omitempty"`
	// ApplyDate is the user's personal target date; Deadline is the official
	// one. ApplyDate wins when both are set. Either ISO timestamp or
	// YYYY-MM-DD.
	ApplyDate string `json:"apply_date,omitempty"`
	Deadline  string `json:"deadline,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// TargetDate returns the date the scanner should measure against.
func (a Application) TargetDate() string {
	if a.ApplyDate != "" {
		return a.ApplyDate
	}
	return a.Deadline
}

// Record converts the application to a document-store record.
func (a Application) Record() Record {
	rec := Record{
		"owner_id":       a.OwnerID,
		"scholarship_id": a.ScholarshipID,
		"name":           a.Name,
	}
	if a.Status != "" {
		rec["status"] = a.Status
	}
	if a.ApplyDate != "" {
		rec["apply_date"] = a.ApplyDate
	}
	if a.Deadline != "" {
		rec["deadline"] = a.Deadline
	}
	if a.CreatedAt != "" {
		rec["created_at"] = a.CreatedAt
	}
	if a.UpdatedAt != "" {
		rec["updated_at"] = a.UpdatedAt
	}
	return rec
}

// ApplicationFromRecord rebuilds an application from a stored record.
func ApplicationFromRecord(id string, rec Record) Application {
	return Application{
		ID:            id,
		OwnerID:       str(rec, "owner_id"),
		ScholarshipID: str(rec, "scholarship_id"),
		Name:          str(rec, "name"),
		Status:        str(rec, "status"),
		ApplyDate:     str(rec, "apply_date"),
		Deadline:      str(rec, "deadline"),
		CreatedAt:     str(rec, "created_at"),
		UpdatedAt:     str(rec, "updated_at"),
	}
}
