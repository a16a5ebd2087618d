// Package api exposes the HTTP surface for events and recipients.
//
// Lifecycle hooks run after storage writes. Hook failures are logged but
// never returned to the caller: the write succeeded, and the periodic
// scan re-reconciles anything a hook missed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/domain"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Store interface {
	CreateEvent(ctx context.Context, ev domain.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error)
	UpdateEvent(ctx context.Context, id uuid.UUID, patch domain.EventPatch) (domain.Event, bool, error)
	DeleteEvent(ctx context.Context, id uuid.UUID) error

	CreateRecipient(ctx context.Context, r domain.Recipient) error
	ListRecipients(ctx context.Context, limit, offset int) ([]domain.Recipient, error)
}

// Lifecycle reconciles reminder jobs around event transitions.
type Lifecycle interface {
	OnCreated(ctx context.Context, events []domain.Event) error
	OnUpdated(ctx context.Context, events []domain.Event, startTimeChanged bool) error
	OnDeleting(ctx context.Context, events []domain.Event) error
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store Store
	hooks Lifecycle
	db    HealthChecker
}

func NewHandler(store Store, hooks Lifecycle) *Handler {
	return &Handler{store: store, hooks: hooks}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/events" && r.Method == http.MethodPost:
		h.createEvent(w, r)

	case path == "/events" && r.Method == http.MethodGet:
		h.listEvents(w, r)

	case strings.HasPrefix(path, "/events/") && r.Method == http.MethodGet:
		h.getEvent(w, r)

	case strings.HasPrefix(path, "/events/") && r.Method == http.MethodPatch:
		h.updateEvent(w, r)

	case strings.HasPrefix(path, "/events/") && r.Method == http.MethodDelete:
		h.deleteEvent(w, r)

	case path == "/recipients" && r.Method == http.MethodPost:
		h.createRecipient(w, r)

	case path == "/recipients" && r.Method == http.MethodGet:
		h.listRecipients(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateCreateEvent(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	startTime, _ := time.Parse(time.RFC3339, req.StartTime)
	now := time.Now().UTC()

	ev := domain.Event{
		ID:        uuid.New(),
		Name:      req.Name,
		StartTime: startTime.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.RecipientID != "" {
		ev.RecipientID, _ = uuid.Parse(req.RecipientID)
	}

	if err := h.store.CreateEvent(r.Context(), ev); err != nil {
		log.Printf("api: create event error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	if err := h.hooks.OnCreated(r.Context(), []domain.Event{ev}); err != nil {
		log.Printf("api: create hook event=%s: %v", ev.ID, err)
	}

	writeJSON(w, http.StatusCreated, eventResponse(ev))
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.store.ListEvents(r.Context(), limit, offset)
	if err != nil {
		log.Printf("api: list events error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	resp := ListEventsResponse{Events: make([]EventResponse, len(events))}
	for i, ev := range events {
		resp.Events[i] = eventResponse(ev)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDFromPath(w, r)
	if !ok {
		return
	}

	ev, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		log.Printf("api: get event error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, eventResponse(ev))
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDFromPath(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateUpdateEvent(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := domain.EventPatch{Name: req.Name}
	if req.StartTime != nil {
		t, _ := time.Parse(time.RFC3339, *req.StartTime)
		t = t.UTC()
		patch.StartTime = &t
	}
	if req.RecipientID != nil {
		rid := uuid.Nil
		if *req.RecipientID != "" {
			rid, _ = uuid.Parse(*req.RecipientID)
		}
		patch.RecipientID = &rid
	}

	ev, startTimeChanged, err := h.store.UpdateEvent(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		log.Printf("api: update event error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	if err := h.hooks.OnUpdated(r.Context(), []domain.Event{ev}, startTimeChanged); err != nil {
		log.Printf("api: update hook event=%s: %v", ev.ID, err)
	}

	writeJSON(w, http.StatusOK, eventResponse(ev))
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDFromPath(w, r)
	if !ok {
		return
	}

	ev, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		log.Printf("api: load event error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	// Jobs go first. If this fails the event is still deleted; a leftover
	// job self-skips at fire time when it finds no event.
	if err := h.hooks.OnDeleting(r.Context(), []domain.Event{ev}); err != nil {
		log.Printf("api: delete hook event=%s: %v", ev.ID, err)
	}

	if err := h.store.DeleteEvent(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		log.Printf("api: delete event error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createRecipient(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateCreateRecipient(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rcpt := domain.Recipient{
		ID:       uuid.New(),
		Name:     req.Name,
		Timezone: req.Timezone,
		Locale:   req.Locale,
	}

	if err := h.store.CreateRecipient(r.Context(), rcpt); err != nil {
		log.Printf("api: create recipient error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create recipient")
		return
	}

	writeJSON(w, http.StatusCreated, recipientResponse(rcpt))
}

func (h *Handler) listRecipients(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recipients, err := h.store.ListRecipients(r.Context(), limit, offset)
	if err != nil {
		log.Printf("api: list recipients error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list recipients")
		return
	}

	resp := ListRecipientsResponse{Recipients: make([]RecipientResponse, len(recipients))}
	for i, rcpt := range recipients {
		resp.Recipients[i] = recipientResponse(rcpt)
	}
	writeJSON(w, http.StatusOK, resp)
}

// eventIDFromPath extracts the event ID from /events/{id}. Writes the
// error response itself when the path is unusable.
func eventIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "events" {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
