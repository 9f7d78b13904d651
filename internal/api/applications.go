package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/broker"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/bus"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/notify"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ApplicationHandler struct {
	store   store.DocumentStore
	bus     *bus.Bus
	broker  *broker.Broker
	scanner *notify.Scanner
	logger  *slog.Logger
}

func NewApplicationHandler(docs store.DocumentStore, b *bus.Bus, brk *broker.Broker, scanner *notify.Scanner, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		store:   docs,
		bus:     b,
		broker:  brk,
		scanner: scanner,
		logger:  logger,
	}
}

type createApplicationRequest struct {
	ScholarshipID string `json:"scholarship_id"`
	Name          string `json:"name"`
	Status        string `json:"status,omitempty"`
	ApplyDate     string `json:"apply_date,omitempty"`
	Deadline      string `json:"deadline,omitempty"`
}

// Create stores a new application, emits the creation event and runs the
// immediate deadline check so the user gets feedback without waiting for the
// next periodic scan.
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScholarshipID == "" {
		respondError(w, http.StatusBadRequest, "scholarship_id is required")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	// One application per scholarship per user: return the existing record
	// instead of creating a duplicate.
	existing, err := h.store.Query(r.Context(), store.CollectionApplications, domain.Record{
		"owner_id":       userID,
		"scholarship_id": req.ScholarshipID,
	})
	if err != nil {
		h.logger.Error("failed to check for duplicate application", "owner_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create application")
		return
	}
	if len(existing) > 0 {
		respondJSON(w, http.StatusOK, domain.ApplicationFromRecord(existing[0].ID, existing[0].Data))
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	app := domain.Application{
		ID:            uuid.NewString(),
		OwnerID:       userID,
		ScholarshipID: req.ScholarshipID,
		Name:          req.Name,
		Status:        req.Status,
		ApplyDate:     req.ApplyDate,
		Deadline:      req.Deadline,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := h.store.PutIfAbsent(r.Context(), store.CollectionApplications, app.ID, app.Record()); err != nil {
		h.logger.Error("failed to store application", "owner_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create application")
		return
	}

	// Decoupled side effects outlive the request.
	bg := context.Background()
	h.bus.Emit(bg, domain.EventApplicationCreated, map[string]any{
		"owner_id":   app.OwnerID,
		"subject_id": app.ID,
		"name":       app.Name,
	})

	if _, err := h.broker.Publish(bg, broker.DocumentUpdates(store.CollectionApplications), map[string]any{
		"collection": store.CollectionApplications,
		"doc_id":     app.ID,
		"action":     "create",
	}); err != nil {
		h.logger.Error("failed to publish document update", "doc_id", app.ID, "error", err)
	}

	// Instant deadline feedback: re-run the scanner's per-subject logic on
	// the in-memory record instead of re-reading storage.
	h.scanner.CheckOne(bg, app)

	respondJSON(w, http.StatusCreated, app)
}

// List returns all of the user's applications.
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	docs, err := h.store.Query(r.Context(), store.CollectionApplications, domain.Record{"owner_id": userID})
	if err != nil {
		h.logger.Error("failed to query applications", "owner_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch applications")
		return
	}

	apps := make([]domain.Application, 0, len(docs))
	for _, doc := range docs {
		apps = append(apps, domain.ApplicationFromRecord(doc.ID, doc.Data))
	}
	respondJSON(w, http.StatusOK, apps)
}
