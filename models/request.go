package models

// Scrape modes accepted by POST /api/v1/scrape.
const (
	ModeHTTP     = "http"
	ModeRendered = "rendered"
	ModeAuto     = "auto"
)

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URL is the live room to scrape. Required. Common typos (missing
	// scheme, stray quotes) are repaired before fetching.
	URL string `json:"url" binding:"required"`

	// Mode controls the fetching strategy.
	// "http" (default): HTTP scrape with one interactive re-login on an auth wall.
	// "rendered": read the room through the interactive browser surface.
	// "auto": "http", falling back to "rendered" on a captcha wall when enabled.
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=http rendered auto"`

	// MaxAge allows serving a cached result younger than MaxAge milliseconds.
	// Default: 0 (always fetch).
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	if r.Mode == "" {
		r.Mode = ModeHTTP
	}
}

// CredentialsRequest is the payload for PUT /api/v1/credentials.
type CredentialsRequest struct {
	// Cookie is a raw "name=value; name2=value2" cookie header.
	Cookie string `json:"cookie" binding:"required"`
}
