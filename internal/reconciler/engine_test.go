package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/domain"
	"github.com/djlord-it/easy-remind/internal/identity"
)

// mockJobStore records engine commands against an in-memory ongoing set.
type mockJobStore struct {
	mu      sync.Mutex
	ongoing []domain.DeferredJob

	created    []domain.DeferredJobSpec
	etaUpdates map[uuid.UUID]time.Time
	deleted    []uuid.UUID

	findErr   error
	createErr error
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{etaUpdates: make(map[uuid.UUID]time.Time)}
}

func (s *mockJobStore) FindOngoing(ctx context.Context, keys []string) ([]domain.DeferredJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var result []domain.DeferredJob
	for _, job := range s.ongoing {
		if keySet[job.IdentityKey] {
			result = append(result, job)
		}
	}
	return result, nil
}

func (s *mockJobStore) Create(ctx context.Context, spec domain.DeferredJobSpec) (domain.DeferredJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.DeferredJob{}, s.createErr
	}
	s.created = append(s.created, spec)
	return domain.DeferredJob{ID: uuid.New(), IdentityKey: spec.IdentityKey, State: domain.JobStatePending, ETA: spec.ETA}, nil
}

func (s *mockJobStore) UpdateETA(ctx context.Context, jobID uuid.UUID, eta time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etaUpdates[jobID] = eta
	return nil
}

func (s *mockJobStore) Delete(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, jobID)
	return nil
}

// staticResolver returns a fixed execution context.
type staticResolver struct {
	execCtx domain.ExecContext
	err     error
}

func (r *staticResolver) ExecContext(ctx context.Context, event domain.Event) (domain.ExecContext, error) {
	if r.err != nil {
		return domain.ExecContext{}, r.err
	}
	return r.execCtx, nil
}

func newTestEngine(store *mockJobStore, now time.Time) *Engine {
	e := New(store, &staticResolver{execCtx: domain.ExecContext{Locale: "en_US", Timezone: "UTC"}})
	e.clock = func() time.Time { return now }
	return e
}

func TestReconcile_SchedulesNewJob(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newMockJobStore()
	engine := newTestEngine(store, now)

	ev := domain.Event{ID: uuid.New(), Name: "Morning run", StartTime: now.Add(40 * time.Minute)}

	if err := engine.Reconcile(context.Background(), []domain.Event{ev}, Options{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 job created, got %d", len(store.created))
	}
	spec := store.created[0]
	if spec.IdentityKey != identity.Key(ev.ID) {
		t.Errorf("identity key = %q, want %q", spec.IdentityKey, identity.Key(ev.ID))
	}
	if want := now.Add(30 * time.Minute); !spec.ETA.Equal(want) {
		t.Errorf("eta = %s, want %s", spec.ETA, want)
	}
	if spec.Priority != JobPriority {
		t.Errorf("priority = %d, want %d", spec.Priority, JobPriority)
	}
	if spec.MaxRetries != JobMaxRetries {
		t.Errorf("max retries = %d, want %d", spec.MaxRetries, JobMaxRetries)
	}
	if spec.Context.Locale != "en_US" {
		t.Errorf("exec context locale = %q, want resolved at submission", spec.Context.Locale)
	}
}

func TestReconcile_ClampsETAForImminentEvent(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newMockJobStore()
	engine := newTestEngine(store, now)

	// Starts in 5 minutes: start-10m is in the past, ETA clamps to now.
	ev := domain.Event{ID: uuid.New(), Name: "Sprint", StartTime: now.Add(5 * time.Minute)}

	if err := engine.Reconcile(context.Background(), []domain.Event{ev}, Options{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 job created, got %d", len(store.created))
	}
	if !store.created[0].ETA.Equal(now) {
		t.Errorf("eta = %s, want clamped to now %s", store.created[0].ETA, now)
	}
}

func TestReconcile_SkipsNotifiedEvent(t *testing.T) {
	now := time.Now().UTC()
	store := newMockJobStore()
	engine := newTestEngine(store, now)

	ev := domain.Event{ID: uuid.New(), StartTime: now.Add(20 * time.Minute), Notified: true}

	if err := engine.Reconcile(context.Background(), []domain.Event{ev}, Options{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(store.created) != 0 {
		t.Errorf("expected no job for notified event, got %d", len(store.created))
	}
}

func TestReconcile_ReschedulesPendingJobInPlace(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newMockJobStore()
	engine := newTestEngine(store, now)

	ev := domain.Event{ID: uuid.New(), StartTime: now.Add(40 * time.Minute)}
	jobID := uuid.New()
	store.ongoing = []domain.DeferredJob{{
		ID:          jobID,
		IdentityKey: identity.Key(ev.ID),
		State:       domain.JobStatePending,
		ETA:         now.Add(10 * time.Minute), // stale ETA from before the edit
	}}

	if err := engine.Reconcile(context.Background(), []domain.Event{ev}, Options{ForceRecreate: true}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(store.created) != 0 {
		t.Fatalf("expected no new job, got %d", len(store.created))
	}
	eta, ok := store.etaUpdates[jobID]
	if !ok {
		t.Fatal("expected the pending job's ETA to be updated in place")
	}
	if want := now.Add(30 * time.Minute); !eta.Equal(want) {
		t.Errorf("updated eta = %s, want %s", eta, want)
	}
}

func TestReconcile_LeavesPendingJobWithMatchingETA(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newMockJobStore()
	engine := newTestEngine(store, now)

	ev := domain.Event{ID: uuid.New(), StartTime: now.Add(40 * time.Minute)}
	store.ongoing = []domain.DeferredJob{{
		ID:          uuid.New(),
		IdentityKey: identity.Key(ev.ID),
		State:       domain.JobStatePending,
		ETA:         now.Add(30 * time.Minute),
	}}

	if err := engine.Reconcile(context.Background(), []domain.Event{ev}, Options{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(store.created) != 0 || len(store.etaUpdates) != 0 || len(store.deleted) != 0 {
		t.Error("expected job to be left untouched")
	}
}

func TestReconcile_LeavesInFlightStatesAlone(t *testing.T) {
	now := time.Now().UTC()

	for _, state := range []domain.JobState{domain.JobStateEnqueued, domain.JobStateWaiting, domain.JobStateStarted} {
		t.Run(string(state), func(t *testing.T) {
			store := newMockJobStore()
			engine := newTestEngine(store, now)

			ev := domain.Event{ID: uuid.New(), StartTime: now.Add(20 * time.Minute)}
			store.ongoing = []domain.DeferredJob{{ID: uuid.New(), IdentityKey: identity.Key(ev.ID), State: state}}

			if err := engine.Reconcile(context.Background(), []domain.Event{ev}, Options{ForceRecreate: true}); err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			if len(store.created) != 0 || len(store.deleted) != 0 || len(store.etaUpdates) != 0 {
				t.Errorf("state %s: expected no corrective action", state)
			}
		})
	}
}

func TestReconcile_FailedJobWithoutForceIsUntouched(t *testing.T) {
	now := time.Now().UTC()
	store := newMockJobStore()
	engine := newTestEngine(store, now)

	ev := domain.Event{ID: uuid.New(), StartTime: now.Add(20 * time.Minute)}
	store.ongoing = []domain.DeferredJob{{ID: uuid.New(), IdentityKey: identity.Key(ev.ID), State: domain.JobStateFailed}}

	if err := engine.Reconcile(context.Background(), []domain.Event{ev}, Options{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(store.deleted) != 0 || len(store.created) != 0 {
		t.Error("failed job without force_recreate must be left alone")
	}
}

func TestReconcile_ForceRecreateReplacesFailedJob(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newMockJobStore()
	engine := newTestEngine(store, now)

	ev := domain.Event{ID: uuid.New(), Name: "Yoga", StartTime: now.Add(40 * time.Minute)}
	failedID := uuid.New()
	store.ongoing = []domain.DeferredJob{{ID: failedID, IdentityKey: identity.Key(ev.ID), State: domain.JobStateFailed}}

	if err := engine.Reconcile(context.Background(), []domain.Event{ev}, Options{ForceRecreate: true}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(store.deleted) != 1 || store.deleted[0] != failedID {
		t.Fatalf("expected failed job %s deleted, got %v", failedID, store.deleted)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected exactly 1 replacement job, got %d", len(store.created))
	}
	if store.created[0].IdentityKey != identity.Key(ev.ID) {
		t.Error("replacement job must reuse the event's identity key")
	}
}

func TestReconcile_DuplicateIdentityIsBenign(t *testing.T) {
	now := time.Now().UTC()
	store := newMockJobStore()
	store.createErr = domain.ErrDuplicateIdentity
	engine := newTestEngine(store, now)

	ev := domain.Event{ID: uuid.New(), StartTime: now.Add(20 * time.Minute)}

	if err := engine.Reconcile(context.Background(), []domain.Event{ev}, Options{}); err != nil {
		t.Fatalf("duplicate identity must be a no-op, got error: %v", err)
	}
}

func TestReconcile_SingleBatchQuery(t *testing.T) {
	now := time.Now().UTC()
	store := newMockJobStore()
	var queries int
	// Count round-trips through a wrapper.
	counting := &countingStore{mockJobStore: store, queries: &queries}
	engine := New(counting, &staticResolver{execCtx: domain.ExecContext{Locale: "en_US", Timezone: "UTC"}})
	engine.clock = func() time.Time { return now }

	events := make([]domain.Event, 25)
	for i := range events {
		events[i] = domain.Event{ID: uuid.New(), StartTime: now.Add(20 * time.Minute)}
	}

	if err := engine.Reconcile(context.Background(), events, Options{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if queries != 1 {
		t.Errorf("expected 1 FindOngoing round-trip for the batch, got %d", queries)
	}
	if len(store.created) != len(events) {
		t.Errorf("expected %d jobs created, got %d", len(events), len(store.created))
	}
}

type countingStore struct {
	*mockJobStore
	queries *int
}

func (s *countingStore) FindOngoing(ctx context.Context, keys []string) ([]domain.DeferredJob, error) {
	*s.queries++
	return s.mockJobStore.FindOngoing(ctx, keys)
}

func TestReconcile_PerEventFailureDoesNotAbortBatch(t *testing.T) {
	now := time.Now().UTC()
	store := newMockJobStore()
	engine := New(store, &failOnceResolver{failFor: 0}) // resolver fails for the first event only
	engine.clock = func() time.Time { return now }

	events := []domain.Event{
		{ID: uuid.New(), StartTime: now.Add(20 * time.Minute)},
		{ID: uuid.New(), StartTime: now.Add(25 * time.Minute)},
	}

	err := engine.Reconcile(context.Background(), events, Options{})
	if err == nil {
		t.Fatal("expected aggregate error for the failing event")
	}
	if len(store.created) != 1 {
		t.Errorf("expected the second event to be scheduled despite the first failing, got %d jobs", len(store.created))
	}
}

// failOnceResolver fails for the nth event it sees.
type failOnceResolver struct {
	calls   int
	failFor int
}

func (r *failOnceResolver) ExecContext(ctx context.Context, event domain.Event) (domain.ExecContext, error) {
	defer func() { r.calls++ }()
	if r.calls == r.failFor {
		return domain.ExecContext{}, errors.New("recipient store unavailable")
	}
	return domain.ExecContext{Locale: "en_US", Timezone: "UTC"}, nil
}

func TestReconcile_FindErrorAbortsBatch(t *testing.T) {
	store := newMockJobStore()
	store.findErr = errors.New("connection refused")
	engine := newTestEngine(store, time.Now().UTC())

	err := engine.Reconcile(context.Background(), []domain.Event{{ID: uuid.New()}}, Options{})
	if err == nil {
		t.Fatal("expected error when the batch query fails")
	}
	if len(store.created) != 0 {
		t.Error("no jobs must be created when the observed state is unknown")
	}
}

func TestReconcile_EmptyBatchIsNoOp(t *testing.T) {
	store := newMockJobStore()
	store.findErr = errors.New("must not be called")
	engine := newTestEngine(store, time.Now().UTC())

	if err := engine.Reconcile(context.Background(), nil, Options{}); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}
