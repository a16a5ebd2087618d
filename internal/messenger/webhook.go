// Package messenger delivers reminders over signed HTTP webhooks.
package messenger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/djlord-it/easy-remind/internal/notifier"
)

// Breaker gates outbound requests per destination URL.
type Breaker interface {
	Allow(dest string) error
	RecordSuccess(dest string)
	RecordFailure(dest string)
}

// Config holds the webhook destinations and signing secret.
type Config struct {
	MessageURL  string
	FollowUpURL string
	Secret      string
	Timeout     time.Duration
}

// Webhook implements notifier.Messenger by POSTing JSON payloads
// signed with HMAC-SHA256.
type Webhook struct {
	cfg     Config
	client  *http.Client
	breaker Breaker // optional, nil = no gating
}

var _ notifier.Messenger = (*Webhook)(nil)

// NewWebhook creates a webhook messenger. FollowUpURL defaults to
// MessageURL when empty.
func NewWebhook(cfg Config) *Webhook {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FollowUpURL == "" {
		cfg.FollowUpURL = cfg.MessageURL
	}
	return &Webhook{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// WithBreaker attaches a circuit breaker.
func (w *Webhook) WithBreaker(b Breaker) *Webhook {
	w.breaker = b
	return w
}

type messagePayload struct {
	Kind          string `json:"kind"`
	EventID       string `json:"event_id"`
	RecipientID   string `json:"recipient_id"`
	RecipientName string `json:"recipient_name"`
	Body          string `json:"body"`
}

type followUpPayload struct {
	Kind        string `json:"kind"`
	EventID     string `json:"event_id"`
	RecipientID string `json:"recipient_id"`
	DueDate     string `json:"due_date"`
	Summary     string `json:"summary"`
	Note        string `json:"note"`
}

// PostMessage delivers the reminder message.
func (w *Webhook) PostMessage(ctx context.Context, msg notifier.Message) error {
	return w.post(ctx, w.cfg.MessageURL, msg.EventID.String(), messagePayload{
		Kind:          "message",
		EventID:       msg.EventID.String(),
		RecipientID:   msg.Recipient.ID.String(),
		RecipientName: msg.Recipient.Name,
		Body:          msg.Body,
	})
}

// ScheduleFollowUp delivers the follow-up task.
func (w *Webhook) ScheduleFollowUp(ctx context.Context, task notifier.FollowUp) error {
	return w.post(ctx, w.cfg.FollowUpURL, task.EventID.String(), followUpPayload{
		Kind:        "follow_up",
		EventID:     task.EventID.String(),
		RecipientID: task.Recipient.ID.String(),
		DueDate:     task.DueDate.Format("2006-01-02"),
		Summary:     task.Summary,
		Note:        task.Note,
	})
}

// Headers: X-EasyRemind-Event-ID, X-EasyRemind-Signature
func (w *Webhook) post(ctx context.Context, url, eventID string, payload any) error {
	if w.breaker != nil {
		if err := w.breaker.Allow(url); err != nil {
			return err
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-EasyRemind-Event-ID", eventID)
	req.Header.Set("X-EasyRemind-Signature", computeSignature(w.cfg.Secret, body))

	resp, err := w.client.Do(req)
	if err != nil {
		w.recordFailure(url)
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.recordFailure(url)
		return fmt.Errorf("destination returned %d", resp.StatusCode)
	}

	w.recordSuccess(url)
	return nil
}

func (w *Webhook) recordSuccess(url string) {
	if w.breaker != nil {
		w.breaker.RecordSuccess(url)
	}
}

func (w *Webhook) recordFailure(url string) {
	if w.breaker != nil {
		w.breaker.RecordFailure(url)
	}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature lets receivers verify incoming webhooks.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
