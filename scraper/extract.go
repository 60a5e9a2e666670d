package scraper

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/use-agent/livebox/models"
)

// endedMarker appears in the embedded room state once a stream has ended.
const endedMarker = `status\":4`

var (
	reRoom   = regexp.MustCompile(`roomInfo\\":\{\\"room\\":(.*?),\\"toolbar_data`)
	reAnchor = regexp.MustCompile(`anchor\\":(.*?),\\"open_id_str`)
)

// uniqueIDMatchers are tried in order; the first capture wins.
var uniqueIDMatchers = []*regexp.Regexp{
	regexp.MustCompile(`user_unique_id\\":\\"(.*?)\\"}`),
	regexp.MustCompile(`user_unique_id":"([^"]+)`),
	regexp.MustCompile(`user_unique_id\\":\\"([^\\]+)\\"`),
	regexp.MustCompile(`"user_unique_id":"([^"]+)"`),
}

// Extraction is the structured data pulled out of a room page.
type Extraction struct {
	// Payload is the room (or, for an ended stream, anchor) JSON object.
	Payload string

	// UniqueID is the visitor id the page was rendered for. Empty when no
	// matcher hit; only searched on live rooms.
	UniqueID string

	// Ended reports that the page carried the ended-stream marker.
	Ended bool
}

// Extract pulls the embedded room data out of a page body. A body that
// matches none of the primary patterns yields an EXTRACTION_FAILED error.
func Extract(body string) (*Extraction, error) {
	ex := &Extraction{Ended: strings.Contains(body, endedMarker)}

	re := reRoom
	if ex.Ended {
		re = reAnchor
	} else {
		ex.UniqueID = matchUniqueID(body)
	}

	m := re.FindStringSubmatch(body)
	if m == nil || m[1] == "" {
		return nil, models.NewScrapeError(models.ErrCodeExtractionFailed,
			"room data not found in page", nil)
	}
	ex.Payload = unescapeFragment(m[1] + "}")
	return ex, nil
}

func matchUniqueID(body string) string {
	for _, re := range uniqueIDMatchers {
		if m := re.FindStringSubmatch(body); m != nil && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

// unescapeFragment removes one layer of JSON string escaping from a fragment
// captured out of an escaped script literal.
func unescapeFragment(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err == nil {
		return out
	}
	return strings.ReplaceAll(s, `\"`, `"`)
}
