package scraper

import (
	"encoding/json"
	"time"

	"github.com/use-agent/livebox/models"
)

// Result is the outcome of one successful scrape attempt.
type Result struct {
	// Payload is the room JSON object (or the anchor object of an ended
	// stream) with one layer of string escaping removed. Never empty.
	Payload string

	// SessionID is the visitor unique id embedded in the page; may be empty.
	SessionID string

	// TTWID is the site's ttwid session cookie; may be empty.
	TTWID string

	// Title is the page title, best effort.
	Title string

	// Ended reports that the stream had ended when the page was fetched.
	Ended bool

	StatusCode int
	FetchedAt  time.Time
}

// Room converts r to its API view. A payload that is not valid JSON is
// carried as a JSON string so the view always marshals.
func (r *Result) Room() *models.Room {
	payload := json.RawMessage(r.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(r.Payload)
	}
	return &models.Room{
		Payload:   payload,
		SessionID: r.SessionID,
		TTWID:     r.TTWID,
		Title:     r.Title,
		Ended:     r.Ended,
	}
}
