package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/djlord-it/easy-remind/internal/api"
	"github.com/djlord-it/easy-remind/internal/domain"
	"github.com/djlord-it/easy-remind/internal/executor"
	"github.com/djlord-it/easy-remind/internal/hooks"
	"github.com/djlord-it/easy-remind/internal/notifier"
	"github.com/djlord-it/easy-remind/internal/reconciler"
	"github.com/djlord-it/easy-remind/internal/runner"
)

// Store implements the event, recipient, and deferred-job repositories
// using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a new PostgreSQL store. opTimeout bounds every single
// database operation; zero disables the bound.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Init creates the schema if it does not exist. The partial unique index
// on identity_key is what enforces at most one ongoing job per key; the
// reconciler's duplicate handling depends on it.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS recipients (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    timezone   TEXT NOT NULL DEFAULT '',
    locale     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id           UUID PRIMARY KEY,
    name         TEXT NOT NULL,
    start_time   TIMESTAMPTZ NOT NULL,
    notified     BOOLEAN NOT NULL DEFAULT FALSE,
    recipient_id UUID REFERENCES recipients(id),
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS events_due
    ON events (start_time)
    WHERE notified = false;

CREATE TABLE IF NOT EXISTS deferred_jobs (
    id           UUID PRIMARY KEY,
    identity_key TEXT NOT NULL,
    event_id     UUID NOT NULL,
    state        TEXT NOT NULL,
    eta          TIMESTAMPTZ NOT NULL,
    priority     INT NOT NULL,
    max_retries  INT NOT NULL,
    retry_count  INT NOT NULL DEFAULT 0,
    description  TEXT NOT NULL DEFAULT '',
    locale       TEXT NOT NULL DEFAULT '',
    timezone     TEXT NOT NULL DEFAULT '',
    last_error   TEXT NOT NULL DEFAULT '',
    claimed_at   TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS deferred_jobs_identity_ongoing
    ON deferred_jobs (identity_key)
    WHERE state IN ('pending', 'enqueued', 'waiting', 'failed', 'started');

CREATE INDEX IF NOT EXISTS deferred_jobs_due
    ON deferred_jobs (priority, eta)
    WHERE state = 'pending';
`

// FindOngoing returns jobs in an ongoing state for the given identity
// keys, in a single query.
func (s *Store) FindOngoing(ctx context.Context, keys []string) ([]domain.DeferredJob, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryFindOngoing, pq.Array(keys), pq.Array(stateStrings(domain.OngoingStates)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Create inserts a new deferred job in pending state. Returns
// domain.ErrDuplicateIdentity when an ongoing job already holds the key.
func (s *Store) Create(ctx context.Context, spec domain.DeferredJobSpec) (domain.DeferredJob, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	job := domain.DeferredJob{
		ID:          uuid.New(),
		IdentityKey: spec.IdentityKey,
		EventID:     spec.EventID,
		State:       domain.JobStatePending,
		ETA:         spec.ETA,
		Priority:    spec.Priority,
		MaxRetries:  spec.MaxRetries,
		Description: spec.Description,
		Context:     spec.Context,
		CreatedAt:   time.Now().UTC(),
	}
	job.UpdatedAt = job.CreatedAt

	_, err := s.db.ExecContext(ctx, queryInsertJob,
		job.ID,
		job.IdentityKey,
		job.EventID,
		string(job.State),
		job.ETA,
		job.Priority,
		job.MaxRetries,
		job.Description,
		job.Context.Locale,
		job.Context.Timezone,
		job.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.DeferredJob{}, domain.ErrDuplicateIdentity
		}
		return domain.DeferredJob{}, err
	}
	return job, nil
}

// UpdateETA moves a pending job's ETA. A job that left pending in the
// meantime is not touched.
func (s *Store) UpdateETA(ctx context.Context, jobID uuid.UUID, eta time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryUpdateJobETA, jobID, eta)
	return err
}

// Delete removes a deferred job.
func (s *Store) Delete(ctx context.Context, jobID uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryDeleteJob, jobID)
	return err
}

// DeleteByIdentity removes jobs matching the identity keys while they are
// in one of the given states. Returns how many rows went away.
func (s *Store) DeleteByIdentity(ctx context.Context, keys []string, states []domain.JobState) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryDeleteJobsByIdentity, pq.Array(keys), pq.Array(stateStrings(states)))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ClaimDue atomically flips due pending jobs to enqueued and returns them.
// SKIP LOCKED keeps concurrent runners from claiming the same rows.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.DeferredJob, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryClaimDueJobs, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// RequeueStale returns enqueued or started jobs claimed before olderThan
// back to pending.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Time, limit int) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryRequeueStaleJobs, olderThan, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkStarted moves an enqueued job to started. Returns domain.ErrNotFound
// when the job is gone or no longer enqueued.
func (s *Store) MarkStarted(ctx context.Context, jobID uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryMarkJobStarted, jobID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDone completes a job. Done jobs release their identity key.
func (s *Store) MarkDone(ctx context.Context, jobID uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryMarkJobDone, jobID)
	return err
}

// RescheduleRetry returns a job to pending with a new ETA, counting the
// attempt and recording what went wrong.
func (s *Store) RescheduleRetry(ctx context.Context, jobID uuid.UUID, eta time.Time, lastError string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryRescheduleJobRetry, jobID, eta, lastError)
	return err
}

// MarkFailed parks a job in failed state. It keeps holding its identity
// key until an operator or a force-recreate clears it.
func (s *Store) MarkFailed(ctx context.Context, jobID uuid.UUID, lastError string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryMarkJobFailed, jobID, lastError)
	return err
}

// CreateEvent inserts a new event with notified unset.
func (s *Store) CreateEvent(ctx context.Context, ev domain.Event) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertEvent,
		ev.ID,
		ev.Name,
		ev.StartTime,
		nullableUUID(ev.RecipientID),
		ev.CreatedAt,
	)
	return err
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.scanEventRow(s.db.QueryRowContext(ctx, queryGetEvent, id))
}

// ListEvents returns events ordered by start time.
func (s *Store) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListEvents, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

// UpdateEvent applies a partial update in a transaction. When the start
// time moves, notified is reset in the same statement so the event
// becomes eligible for a reminder at its new time. The returned bool
// reports whether the start time changed.
func (s *Store) UpdateEvent(ctx context.Context, id uuid.UUID, patch domain.EventPatch) (domain.Event, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, false, err
	}
	defer tx.Rollback()

	ev, err := s.scanEventRow(tx.QueryRowContext(ctx, queryGetEventForUpdate, id))
	if err != nil {
		return domain.Event{}, false, err
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

	_, err = tx.ExecContext(ctx, queryUpdateEvent,
		ev.ID,
		ev.Name,
		ev.StartTime,
		ev.Notified,
		nullableUUID(ev.RecipientID),
	)
	if err != nil {
		return domain.Event{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Event{}, false, err
	}
	return ev, startTimeChanged, nil
}

// DeleteEvent removes an event. Outstanding jobs are the delete hook's
// business, not the store's.
func (s *Store) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var deletedID uuid.UUID
	err := s.db.QueryRowContext(ctx, queryDeleteEvent, id).Scan(&deletedID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// DueUnnotified returns unnotified events starting inside [start, end].
func (s *Store) DueUnnotified(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryDueUnnotifiedEvents, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

// MarkNotified flips the event's notified flag.
func (s *Store) MarkNotified(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryMarkEventNotified, id)
	return err
}

// CreateRecipient inserts a new recipient.
func (s *Store) CreateRecipient(ctx context.Context, r domain.Recipient) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertRecipient,
		r.ID,
		r.Name,
		r.Timezone,
		r.Locale,
		time.Now().UTC(),
	)
	return err
}

// GetRecipient returns a recipient by ID.
func (s *Store) GetRecipient(ctx context.Context, id uuid.UUID) (domain.Recipient, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var r domain.Recipient
	err := s.db.QueryRowContext(ctx, queryGetRecipient, id).Scan(
		&r.ID,
		&r.Name,
		&r.Timezone,
		&r.Locale,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Recipient{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Recipient{}, err
	}
	return r, nil
}

// ListRecipients returns recipients ordered by name.
func (s *Store) ListRecipients(ctx context.Context, limit, offset int) ([]domain.Recipient, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListRecipients, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.ID, &r.Name, &r.Timezone, &r.Locale); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(sc rowScanner) (domain.DeferredJob, error) {
	var job domain.DeferredJob
	var state string
	err := sc.Scan(
		&job.ID,
		&job.IdentityKey,
		&job.EventID,
		&state,
		&job.ETA,
		&job.Priority,
		&job.MaxRetries,
		&job.RetryCount,
		&job.Description,
		&job.Context.Locale,
		&job.Context.Timezone,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.DeferredJob{}, err
	}
	job.State = domain.JobState(state)
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]domain.DeferredJob, error) {
	var result []domain.DeferredJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func scanEvent(sc rowScanner) (domain.Event, error) {
	var ev domain.Event
	var recipientID uuid.NullUUID
	err := sc.Scan(
		&ev.ID,
		&ev.Name,
		&ev.StartTime,
		&ev.Notified,
		&recipientID,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	if recipientID.Valid {
		ev.RecipientID = recipientID.UUID
	}
	return ev, nil
}

func (s *Store) scanEventRow(row *sql.Row) (domain.Event, error) {
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.ErrNotFound
	}
	return ev, err
}

func nullableUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func stateStrings(states []domain.JobState) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}

// isDuplicateKeyError checks for a PostgreSQL unique violation (23505).
func isDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Compile-time interface assertions
var (
	_ reconciler.JobStore = (*Store)(nil)
	_ hooks.JobStore      = (*Store)(nil)
	_ hooks.EventStore    = (*Store)(nil)
	_ runner.Store        = (*Store)(nil)
	_ executor.Store      = (*Store)(nil)
	_ notifier.EventStore = (*Store)(nil)
	_ notifier.Directory  = (*Store)(nil)
	_ api.Store           = (*Store)(nil)
)
