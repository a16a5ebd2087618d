// Package notifier implements the fire-time reminder action.
//
// The guards here run at fire time, not at schedule time: by the time a
// job executes, its event may have been notified already, rescheduled far
// away, or deleted. Every guard resolves to a successful skip, never an
// error, so a stale job completes cleanly without side effects.
//
// Marking the event notified is deliberately the last step. A crash after
// the message is posted but before the mark yields a duplicate reminder
// on retry; that at-least-once side effect is accepted rather than
// attempting a two-phase commit across delivery and storage.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/domain"
	"github.com/djlord-it/easy-remind/internal/window"
)

// EventStore loads events and records the notified flag.
type EventStore interface {
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	MarkNotified(ctx context.Context, id uuid.UUID) error
}

// RecipientResolver resolves the reminder target for an event.
// ok is false when neither the event's recipient nor the configured
// fallback could be found; that is a documented silent skip, not an error.
type RecipientResolver interface {
	Resolve(ctx context.Context, event domain.Event) (rcpt domain.Recipient, ok bool, err error)
}

// Messenger delivers the reminder message and the follow-up task.
type Messenger interface {
	PostMessage(ctx context.Context, msg Message) error
	ScheduleFollowUp(ctx context.Context, task FollowUp) error
}

// Message is a reminder delivered to a recipient.
type Message struct {
	EventID   uuid.UUID
	Recipient domain.Recipient
	Body      string
}

// FollowUp is a task due on the event's calendar day.
type FollowUp struct {
	EventID   uuid.UUID
	Recipient domain.Recipient
	DueDate   time.Time
	Summary   string
	Note      string
}

// Action executes the reminder for a fired job.
type Action struct {
	events    EventStore
	resolver  RecipientResolver
	messenger Messenger
	clock     func() time.Time
}

// New creates the reminder action.
func New(events EventStore, resolver RecipientResolver, messenger Messenger) *Action {
	return &Action{
		events:    events,
		resolver:  resolver,
		messenger: messenger,
		clock:     time.Now,
	}
}

// Fire runs the reminder for the fired job. A non-nil error means the
// attempt should be retried by the executor; every skip outcome is a
// successful completion.
func (a *Action) Fire(ctx context.Context, fired domain.FiredJob) (domain.FireOutcome, error) {
	ev, err := a.events.GetEvent(ctx, fired.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Event deleted after the job was claimed. The delete hook
			// spares started jobs; this is the bounded inconsistency
			// window closing itself.
			log.Printf("notifier: event=%s gone, skipping", fired.EventID)
			return domain.OutcomeOrphaned, nil
		}
		return "", fmt.Errorf("load event: %w", err)
	}

	if ev.Notified {
		return domain.OutcomeAlreadySent, nil
	}

	now := a.clock().UTC()
	if !window.Contains(now, ev.StartTime) {
		log.Printf("notifier: event=%s start=%s outside window, skipping", ev.ID, ev.StartTime.Format(time.RFC3339))
		return domain.OutcomeStale, nil
	}

	rcpt, ok, err := a.resolver.Resolve(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("resolve recipient: %w", err)
	}
	if !ok {
		log.Printf("notifier: event=%s has no resolvable recipient, skipping", ev.ID)
		return domain.OutcomeNoRecipient, nil
	}

	loc := location(rcpt.Timezone, fired.Context.Timezone)
	startLocal := ev.StartTime.In(loc)
	display := startLocal.Format("15:04")
	text := localize(fired.Context.Locale, ev.Name, display)

	if err := a.messenger.PostMessage(ctx, Message{
		EventID:   ev.ID,
		Recipient: rcpt,
		Body:      text.Body,
	}); err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}

	if err := a.messenger.ScheduleFollowUp(ctx, FollowUp{
		EventID:   ev.ID,
		Recipient: rcpt,
		DueDate:   calendarDay(startLocal),
		Summary:   text.Summary,
		Note:      text.Note,
	}); err != nil {
		return "", fmt.Errorf("schedule follow-up: %w", err)
	}

	// Last step: a crash before this line is retried safely thanks to the
	// guards above; a crash after it is a completed reminder.
	if err := a.events.MarkNotified(ctx, ev.ID); err != nil {
		return "", fmt.Errorf("mark notified: %w", err)
	}

	log.Printf("notifier: sent reminder event=%s recipient=%s", ev.ID, rcpt.ID)
	return domain.OutcomeSent, nil
}

// location picks the display timezone: the recipient's, else the one
// frozen into the job's execution context, else UTC.
func location(recipientTZ, contextTZ string) *time.Location {
	for _, name := range []string{recipientTZ, contextTZ} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
		log.Printf("notifier: unknown timezone %q, falling back", name)
	}
	return time.UTC
}

// calendarDay truncates a local time to midnight of its calendar day.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
