package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/domain"
)

// mockStore records state transitions.
type mockStore struct {
	mu          sync.Mutex
	started     []uuid.UUID
	done        []uuid.UUID
	failed      map[uuid.UUID]string
	rescheduled map[uuid.UUID]time.Time
	startErr    error
}

func newMockStore() *mockStore {
	return &mockStore{
		failed:      make(map[uuid.UUID]string),
		rescheduled: make(map[uuid.UUID]time.Time),
	}
}

func (s *mockStore) MarkStarted(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = append(s.started, jobID)
	return nil
}

func (s *mockStore) MarkDone(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, jobID)
	return nil
}

func (s *mockStore) RescheduleRetry(ctx context.Context, jobID uuid.UUID, eta time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rescheduled[jobID] = eta
	return nil
}

func (s *mockStore) MarkFailed(ctx context.Context, jobID uuid.UUID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[jobID] = lastError
	return nil
}

// mockAction returns a fixed outcome or error.
type mockAction struct {
	mu      sync.Mutex
	outcome domain.FireOutcome
	err     error
	calls   int
}

func (a *mockAction) Fire(ctx context.Context, fired domain.FiredJob) (domain.FireOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return a.outcome, nil
}

func TestProcess_SuccessMarksDone(t *testing.T) {
	store := newMockStore()
	action := &mockAction{outcome: domain.OutcomeSent}
	e := New(store, action)

	job := domain.FiredJob{JobID: uuid.New(), MaxRetries: 6}
	e.process(context.Background(), job)

	if len(store.started) != 1 || store.started[0] != job.JobID {
		t.Error("job must be marked started before execution")
	}
	if len(store.done) != 1 || store.done[0] != job.JobID {
		t.Error("successful job must be marked done")
	}
	if len(store.failed) != 0 || len(store.rescheduled) != 0 {
		t.Error("no failure bookkeeping expected on success")
	}
}

func TestProcess_SkipOutcomesStillComplete(t *testing.T) {
	for _, outcome := range []domain.FireOutcome{domain.OutcomeAlreadySent, domain.OutcomeStale, domain.OutcomeNoRecipient, domain.OutcomeOrphaned} {
		t.Run(string(outcome), func(t *testing.T) {
			store := newMockStore()
			e := New(store, &mockAction{outcome: outcome})

			e.process(context.Background(), domain.FiredJob{JobID: uuid.New()})

			if len(store.done) != 1 {
				t.Errorf("outcome %s is a successful no-op; job must be done", outcome)
			}
		})
	}
}

func TestProcess_RetryableFailureReschedulesWithBackoff(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	action := &mockAction{err: errors.New("destination unreachable")}
	e := New(store, action)
	e.clock = func() time.Time { return now }

	job := domain.FiredJob{JobID: uuid.New(), RetryCount: 0, MaxRetries: 6}
	e.process(context.Background(), job)

	eta, ok := store.rescheduled[job.JobID]
	if !ok {
		t.Fatal("expected a retry to be scheduled")
	}
	if want := now.Add(30 * time.Second); !eta.Equal(want) {
		t.Errorf("retry eta = %s, want first backoff step %s", eta, want)
	}
	if len(store.failed) != 0 {
		t.Error("job must not be failed while retries remain")
	}
}

func TestProcess_BackoffGrowsWithRetryCount(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	e := New(store, &mockAction{err: errors.New("boom")})
	e.clock = func() time.Time { return now }

	job := domain.FiredJob{JobID: uuid.New(), RetryCount: 2, MaxRetries: 6}
	e.process(context.Background(), job)

	if want := now.Add(10 * time.Minute); !store.rescheduled[job.JobID].Equal(want) {
		t.Errorf("retry eta = %s, want third backoff step %s", store.rescheduled[job.JobID], want)
	}
}

func TestProcess_ExhaustedRetriesMarksFailed(t *testing.T) {
	store := newMockStore()
	e := New(store, &mockAction{err: errors.New("permanent trouble")})

	job := domain.FiredJob{JobID: uuid.New(), RetryCount: 6, MaxRetries: 6}
	e.process(context.Background(), job)

	lastErr, ok := store.failed[job.JobID]
	if !ok {
		t.Fatal("expected job to be marked failed after exhausting retries")
	}
	if lastErr == "" {
		t.Error("failed job must record the last error")
	}
	if len(store.rescheduled) != 0 {
		t.Error("no retry expected after exhaustion")
	}
}

func TestProcess_UnstartableJobIsSkipped(t *testing.T) {
	store := newMockStore()
	store.startErr = domain.ErrNotFound
	action := &mockAction{outcome: domain.OutcomeSent}
	e := New(store, action)

	e.process(context.Background(), domain.FiredJob{JobID: uuid.New()})

	if action.calls != 0 {
		t.Error("action must not fire for a job that could not be started")
	}
}

func TestRun_DrainsBufferedJobsOnShutdown(t *testing.T) {
	store := newMockStore()
	e := New(store, &mockAction{outcome: domain.OutcomeSent})

	ch := make(chan domain.FiredJob, 4)
	for i := 0; i < 3; i++ {
		ch <- domain.FiredJob{JobID: uuid.New()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled: Run should go straight to draining

	done := make(chan struct{})
	go func() {
		e.Run(ctx, ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not finish draining")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.done) != 3 {
		t.Errorf("expected 3 buffered jobs drained, got %d", len(store.done))
	}
}

func TestBackoff_RepeatsLastStep(t *testing.T) {
	if backoff(0) != 30*time.Second {
		t.Errorf("backoff(0) = %s, want 30s", backoff(0))
	}
	if backoff(5) != 2*time.Hour {
		t.Errorf("backoff(5) = %s, want 2h", backoff(5))
	}
	if backoff(50) != 2*time.Hour {
		t.Errorf("backoff(50) = %s, want the last step repeated", backoff(50))
	}
}
