package postgres

const jobColumns = `
    id, identity_key, event_id, state, eta, priority, max_retries,
    retry_count, description, locale, timezone, last_error,
    created_at, updated_at`

const queryFindOngoing = `
SELECT` + jobColumns + `
FROM deferred_jobs
WHERE identity_key = ANY($1)
  AND state = ANY($2)
`

const queryInsertJob = `
INSERT INTO deferred_jobs (
    id, identity_key, event_id, state, eta, priority, max_retries,
    retry_count, description, locale, timezone, last_error,
    created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, '', $11, $11)
`

const queryUpdateJobETA = `
UPDATE deferred_jobs
SET eta = $2, updated_at = NOW()
WHERE id = $1
  AND state = 'pending'
`

const queryDeleteJob = `
DELETE FROM deferred_jobs WHERE id = $1
`

const queryDeleteJobsByIdentity = `
DELETE FROM deferred_jobs
WHERE identity_key = ANY($1)
  AND state = ANY($2)
`

const queryClaimDueJobs = `
WITH due AS (
    SELECT id FROM deferred_jobs
    WHERE state = 'pending'
      AND eta <= $1
    ORDER BY priority ASC, eta ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
UPDATE deferred_jobs
SET state = 'enqueued', claimed_at = $1, updated_at = $1
FROM due
WHERE deferred_jobs.id = due.id
RETURNING
    deferred_jobs.id, deferred_jobs.identity_key, deferred_jobs.event_id,
    deferred_jobs.state, deferred_jobs.eta, deferred_jobs.priority,
    deferred_jobs.max_retries, deferred_jobs.retry_count,
    deferred_jobs.description, deferred_jobs.locale, deferred_jobs.timezone,
    deferred_jobs.last_error, deferred_jobs.created_at, deferred_jobs.updated_at
`

const queryRequeueStaleJobs = `
WITH stale AS (
    SELECT id FROM deferred_jobs
    WHERE state IN ('enqueued', 'started')
      AND claimed_at < $1
    ORDER BY claimed_at ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
UPDATE deferred_jobs
SET state = 'pending', claimed_at = NULL, updated_at = NOW()
FROM stale
WHERE deferred_jobs.id = stale.id
`

const queryMarkJobStarted = `
UPDATE deferred_jobs
SET state = 'started', updated_at = NOW()
WHERE id = $1
  AND state = 'enqueued'
`

const queryMarkJobDone = `
UPDATE deferred_jobs
SET state = 'done', updated_at = NOW()
WHERE id = $1
`

const queryRescheduleJobRetry = `
UPDATE deferred_jobs
SET state = 'pending', eta = $2, retry_count = retry_count + 1,
    last_error = $3, claimed_at = NULL, updated_at = NOW()
WHERE id = $1
`

const queryMarkJobFailed = `
UPDATE deferred_jobs
SET state = 'failed', last_error = $2, updated_at = NOW()
WHERE id = $1
`

const eventColumns = `
    id, name, start_time, notified, recipient_id, created_at, updated_at`

const queryInsertEvent = `
INSERT INTO events (id, name, start_time, notified, recipient_id, created_at, updated_at)
VALUES ($1, $2, $3, false, $4, $5, $5)
`

const queryGetEvent = `
SELECT` + eventColumns + `
FROM events
WHERE id = $1
`

const queryGetEventForUpdate = queryGetEvent + `FOR UPDATE
`

const queryListEvents = `
SELECT` + eventColumns + `
FROM events
ORDER BY start_time ASC
LIMIT $1 OFFSET $2
`

const queryUpdateEvent = `
UPDATE events
SET name = $2, start_time = $3, notified = $4, recipient_id = $5, updated_at = NOW()
WHERE id = $1
`

const queryDeleteEvent = `
DELETE FROM events WHERE id = $1
RETURNING id
`

const queryDueUnnotifiedEvents = `
SELECT` + eventColumns + `
FROM events
WHERE notified = false
  AND start_time >= $1
  AND start_time <= $2
ORDER BY start_time ASC
`

const queryMarkEventNotified = `
UPDATE events
SET notified = true, updated_at = NOW()
WHERE id = $1
`

const queryInsertRecipient = `
INSERT INTO recipients (id, name, timezone, locale, created_at)
VALUES ($1, $2, $3, $4, $5)
`

const queryGetRecipient = `
SELECT id, name, timezone, locale
FROM recipients
WHERE id = $1
`

const queryListRecipients = `
SELECT id, name, timezone, locale
FROM recipients
ORDER BY name ASC
LIMIT $1 OFFSET $2
`
