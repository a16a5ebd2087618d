// Command webhook-receiver is a test endpoint for reminder deliveries.
// It records every message and follow-up it receives and, when SECRET is
// set, rejects payloads whose HMAC signature does not match.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type delivery struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	EventID   string `json:"event_id"`
	Signature string `json:"signature,omitempty"`
	Body      string `json:"body"`
}

type stats struct {
	Count          int64      `json:"count"`
	Messages       int64      `json:"messages"`
	FollowUps      int64      `json:"follow_ups"`
	BadSignatures  int64      `json:"bad_signatures"`
	LastDeliveries []delivery `json:"last_deliveries"`
	Since          string     `json:"since"`
}

var (
	mu             sync.Mutex
	count          int64
	messages       int64
	followUps      int64
	badSignatures  int64
	lastDeliveries []delivery
	since          time.Time
	maxStored      = 50

	secret string
)

func main() {
	since = time.Now().UTC()
	secret = os.Getenv("SECRET")

	addr := ":8080"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	http.HandleFunc("/reminders", reminderHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		messages = 0
		followUps = 0
		badSignatures = 0
		lastDeliveries = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	if secret == "" {
		log.Println("webhook-receiver: SECRET not set; signatures not verified")
	}
	log.Printf("webhook-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func reminderHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	signature := r.Header.Get("X-EasyRemind-Signature")
	if secret != "" && !verifySignature(body, signature) {
		mu.Lock()
		badSignatures++
		mu.Unlock()
		log.Printf("rejected delivery: bad signature %q", signature)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintln(w, `{"error":"bad signature"}`)
		return
	}

	var payload struct {
		Kind string `json:"kind"`
	}
	_ = json.Unmarshal(body, &payload)

	d := delivery{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Kind:      payload.Kind,
		EventID:   r.Header.Get("X-EasyRemind-Event-ID"),
		Signature: signature,
		Body:      string(body),
	}

	mu.Lock()
	count++
	switch payload.Kind {
	case "message":
		messages++
	case "follow_up":
		followUps++
	}
	lastDeliveries = append(lastDeliveries, d)
	if len(lastDeliveries) > maxStored {
		lastDeliveries = lastDeliveries[len(lastDeliveries)-maxStored:]
	}
	current := count
	mu.Unlock()

	log.Printf("delivery #%d (%s, event=%s): %s", current, payload.Kind, d.EventID, string(body))
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"received":%d}`, current)
}

func verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:          count,
		Messages:       messages,
		FollowUps:      followUps,
		BadSignatures:  badSignatures,
		LastDeliveries: lastDeliveries,
		Since:          since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
