package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-remind/internal/domain"
)

// Directory looks up recipients by ID.
type Directory interface {
	GetRecipient(ctx context.Context, id uuid.UUID) (domain.Recipient, error)
}

// Resolver resolves reminder recipients and execution contexts with the
// configured fallback chain: the event's recipient, else the fallback
// administrative recipient, else none.
type Resolver struct {
	dir             Directory
	fallbackID      uuid.UUID // uuid.Nil = no fallback configured
	defaultLocale   string
	defaultTimezone string
}

// NewResolver creates a Resolver. Empty defaults fall back to en_US / UTC.
func NewResolver(dir Directory, fallbackID uuid.UUID, defaultLocale, defaultTimezone string) *Resolver {
	if defaultLocale == "" {
		defaultLocale = DefaultLocale
	}
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &Resolver{
		dir:             dir,
		fallbackID:      fallbackID,
		defaultLocale:   defaultLocale,
		defaultTimezone: defaultTimezone,
	}
}

// Resolve returns the recipient a reminder for the event should go to.
// ok is false when neither candidate exists; a missing recipient row is
// not an error.
func (r *Resolver) Resolve(ctx context.Context, event domain.Event) (domain.Recipient, bool, error) {
	for _, id := range []uuid.UUID{event.RecipientID, r.fallbackID} {
		if id == uuid.Nil {
			continue
		}
		rcpt, err := r.dir.GetRecipient(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return domain.Recipient{}, false, fmt.Errorf("get recipient %s: %w", id, err)
		}
		return rcpt, true, nil
	}
	return domain.Recipient{}, false, nil
}

// ExecContext resolves the execution context frozen into a job at
// submission time: the recipient's locale and timezone when known,
// else the operator defaults.
func (r *Resolver) ExecContext(ctx context.Context, event domain.Event) (domain.ExecContext, error) {
	execCtx := domain.ExecContext{
		Locale:   r.defaultLocale,
		Timezone: r.defaultTimezone,
	}

	rcpt, ok, err := r.Resolve(ctx, event)
	if err != nil {
		return domain.ExecContext{}, err
	}
	if ok {
		if rcpt.Locale != "" {
			execCtx.Locale = rcpt.Locale
		}
		if rcpt.Timezone != "" {
			execCtx.Timezone = rcpt.Timezone
		}
	}
	return execCtx, nil
}
