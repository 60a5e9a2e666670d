package models

import "encoding/json"

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success indicates whether the scrape produced a room payload.
	Success bool `json:"success"`

	// RequestID identifies this call in logs and webhook events.
	RequestID string `json:"request_id,omitempty"`

	// URL is the normalized room URL that was fetched.
	URL string `json:"url,omitempty"`

	// Room carries the extracted room data.
	Room *Room `json:"room,omitempty"`

	// Source records how the room was read: "http" or "rendered".
	Source string `json:"source,omitempty"`

	// Attempts is the number of HTTP scrape attempts made (1 or 2).
	Attempts int `json:"attempts,omitempty"`

	// Reauthenticated is true when fresh credentials were recovered
	// interactively during this call.
	Reauthenticated bool `json:"reauthenticated,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// Room is the API view of a scraped room.
type Room struct {
	// Payload is the embedded room JSON extracted from the page.
	Payload json.RawMessage `json:"payload"`

	// SessionID is the visitor unique id found on the page, if any.
	SessionID string `json:"session_id,omitempty"`

	// TTWID is the site-issued ttwid session cookie, if any.
	TTWID string `json:"ttwid,omitempty"`

	// Title is the room title, if any.
	Title string `json:"title,omitempty"`

	// Ended is true when the stream was over and only the anchor was extracted.
	Ended bool `json:"ended,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`
}

// CredentialsResponse is the response for the /api/v1/credentials endpoints
// and POST /api/v1/login.
type CredentialsResponse struct {
	Success bool `json:"success"`

	// Cookie is the persisted cookie header (GET only).
	Cookie string `json:"cookie,omitempty"`

	// Count is the number of cookies saved or loaded.
	Count int `json:"count,omitempty"`

	// Removed reports whether DELETE removed a file (false: nothing to clear).
	Removed *bool `json:"removed,omitempty"`

	// Path is the on-disk location of the cookie file.
	Path string `json:"path,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status             string   `json:"status"` // "healthy" or "awaiting_login"
	Uptime             string   `json:"uptime"`
	InteractivePending bool     `json:"interactive_pending"`
	PendingSurfaces    []string `json:"pending_surfaces,omitempty"`
	Version            string   `json:"version"`
}
