package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/domain"
)

// mockStore is an in-memory Store.
type mockStore struct {
	mu         sync.Mutex
	events     map[uuid.UUID]domain.Event
	recipients map[uuid.UUID]domain.Recipient
	createErr  error
}

func newMockStore() *mockStore {
	return &mockStore{
		events:     make(map[uuid.UUID]domain.Event),
		recipients: make(map[uuid.UUID]domain.Recipient),
	}
}

func (s *mockStore) CreateEvent(ctx context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.events[ev.ID] = ev
	return nil
}

func (s *mockStore) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return ev, nil
}

func (s *mockStore) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, ev := range s.events {
		out = append(out, ev)
	}
	return out, nil
}

func (s *mockStore) UpdateEvent(ctx context.Context, id uuid.UUID, patch domain.EventPatch) (domain.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return domain.Event{}, false, domain.ErrNotFound
	}
	if patch.Name != nil {
		ev.Name = *patch.Name
	}
	if patch.RecipientID != nil {
		ev.RecipientID = *patch.RecipientID
	}
	startTimeChanged := false
	if patch.StartTime != nil && !patch.StartTime.Equal(ev.StartTime) {
		ev.StartTime = *patch.StartTime
		ev.Notified = false
		startTimeChanged = true
	}
	s.events[id] = ev
	return ev, startTimeChanged, nil
}

func (s *mockStore) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *mockStore) CreateRecipient(ctx context.Context, r domain.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[r.ID] = r
	return nil
}

func (s *mockStore) ListRecipients(ctx context.Context, limit, offset int) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Recipient
	for _, r := range s.recipients {
		out = append(out, r)
	}
	return out, nil
}

// mockLifecycle records hook invocations.
type mockLifecycle struct {
	mu       sync.Mutex
	created  [][]domain.Event
	updated  []bool // startTimeChanged per call
	deleting [][]domain.Event
	err      error
}

func (l *mockLifecycle) OnCreated(ctx context.Context, events []domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, events)
	return l.err
}

func (l *mockLifecycle) OnUpdated(ctx context.Context, events []domain.Event, startTimeChanged bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updated = append(l.updated, startTimeChanged)
	return l.err
}

func (l *mockLifecycle) OnDeleting(ctx context.Context, events []domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleting = append(l.deleting, events)
	return l.err
}

func newTestHandler() (*Handler, *mockStore, *mockLifecycle) {
	store := newMockStore()
	hooks := &mockLifecycle{}
	return NewHandler(store, hooks), store, hooks
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestCreateEvent_SchedulesViaHook(t *testing.T) {
	h, store, hooks := newTestHandler()

	start := time.Now().Add(20 * time.Minute).UTC().Truncate(time.Second)
	rec := doJSON(t, h, http.MethodPost, "/events", CreateEventRequest{
		Name:      "Standup",
		StartTime: start.Format(time.RFC3339),
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	var resp EventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "Standup" {
		t.Errorf("name = %q", resp.Name)
	}
	if resp.Notified {
		t.Error("new event must not be notified")
	}

	if len(store.events) != 1 {
		t.Fatalf("stored %d events, want 1", len(store.events))
	}
	if len(hooks.created) != 1 {
		t.Fatalf("create hook invoked %d times, want 1", len(hooks.created))
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	h, _, hooks := newTestHandler()

	tests := []struct {
		name string
		req  CreateEventRequest
	}{
		{"missing name", CreateEventRequest{StartTime: "2025-06-15T12:00:00Z"}},
		{"missing start_time", CreateEventRequest{Name: "x"}},
		{"bad start_time", CreateEventRequest{Name: "x", StartTime: "tomorrow"}},
		{"bad recipient", CreateEventRequest{Name: "x", StartTime: "2025-06-15T12:00:00Z", RecipientID: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/events", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	if len(hooks.created) != 0 {
		t.Error("no hook may fire for rejected requests")
	}
}

func TestCreateEvent_HookErrorNotReturned(t *testing.T) {
	h, store, hooks := newTestHandler()
	hooks.err = errors.New("reconcile blew up")

	rec := doJSON(t, h, http.MethodPost, "/events", CreateEventRequest{
		Name:      "Standup",
		StartTime: "2025-06-15T12:00:00Z",
	})

	// The write succeeded; the scan repairs whatever the hook missed.
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 despite hook error", rec.Code)
	}
	if len(store.events) != 1 {
		t.Error("event must be persisted")
	}
}

func TestUpdateEvent_StartTimeChangeForcesHook(t *testing.T) {
	h, store, hooks := newTestHandler()

	ev := domain.Event{ID: uuid.New(), Name: "Standup", StartTime: time.Now().UTC(), Notified: true}
	store.events[ev.ID] = ev

	newStart := time.Now().Add(time.Hour).UTC().Truncate(time.Second).Format(time.RFC3339)
	rec := doJSON(t, h, http.MethodPatch, "/events/"+ev.ID.String(), UpdateEventRequest{
		StartTime: &newStart,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp EventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Notified {
		t.Error("moving the start time must reset notified")
	}

	if len(hooks.updated) != 1 || !hooks.updated[0] {
		t.Fatalf("update hook = %v, want one call with startTimeChanged=true", hooks.updated)
	}
}

func TestUpdateEvent_NameOnlyDoesNotForce(t *testing.T) {
	h, store, hooks := newTestHandler()

	ev := domain.Event{ID: uuid.New(), Name: "Standup", StartTime: time.Now().UTC()}
	store.events[ev.ID] = ev

	name := "Renamed standup"
	rec := doJSON(t, h, http.MethodPatch, "/events/"+ev.ID.String(), UpdateEventRequest{Name: &name})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(hooks.updated) != 1 || hooks.updated[0] {
		t.Fatalf("update hook = %v, want one call with startTimeChanged=false", hooks.updated)
	}
}

func TestUpdateEvent_NotFound(t *testing.T) {
	h, _, _ := newTestHandler()

	name := "x"
	rec := doJSON(t, h, http.MethodPatch, "/events/"+uuid.NewString(), UpdateEventRequest{Name: &name})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteEvent_HookRunsBeforeDeletion(t *testing.T) {
	h, store, hooks := newTestHandler()

	ev := domain.Event{ID: uuid.New(), Name: "Standup", StartTime: time.Now().UTC()}
	store.events[ev.ID] = ev

	rec := doJSON(t, h, http.MethodDelete, "/events/"+ev.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	if len(hooks.deleting) != 1 {
		t.Fatalf("delete hook invoked %d times, want 1", len(hooks.deleting))
	}
	if hooks.deleting[0][0].ID != ev.ID {
		t.Error("delete hook must receive the event being removed")
	}
	if _, ok := store.events[ev.ID]; ok {
		t.Error("event must be deleted")
	}
}

func TestDeleteEvent_NotFound(t *testing.T) {
	h, _, hooks := newTestHandler()

	rec := doJSON(t, h, http.MethodDelete, "/events/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if len(hooks.deleting) != 0 {
		t.Error("delete hook must not fire for a missing event")
	}
}

func TestRecipients_CreateAndList(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h, http.MethodPost, "/recipients", CreateRecipientRequest{
		Name:     "Ops Admin",
		Timezone: "Europe/Paris",
		Locale:   "fr_FR",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/recipients", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}

	var resp ListRecipientsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Recipients) != 1 || resp.Recipients[0].Timezone != "Europe/Paris" {
		t.Errorf("recipients = %+v", resp.Recipients)
	}
}

func TestRecipients_RejectsUnknownTimezone(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h, http.MethodPost, "/recipients", CreateRecipientRequest{
		Name:     "Ops Admin",
		Timezone: "Nowhere/Special",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", "", DefaultLimit, 0, false},
		{"explicit", "?limit=10&offset=20", 10, 20, false},
		{"zero limit uses default", "?limit=0", DefaultLimit, 0, false},
		{"limit too large", "?limit=99999", 0, 0, true},
		{"negative offset", "?offset=-1", 0, 0, true},
		{"non-numeric", "?limit=ten", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/events"+tt.query, nil)
			limit, offset, err := parsePagination(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if err == nil && (limit != tt.wantLimit || offset != tt.wantOffset) {
				t.Errorf("limit/offset = %d/%d, want %d/%d", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
