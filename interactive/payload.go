package interactive

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// loginCookies are the cookies the site sets once a user has signed in.
var loginCookies = []string{"sessionid", "passport_auth_token", "odin_tt", "__ac_signature"}

// HasLoginCookie reports whether a raw cookie header carries any of the
// cookies that indicate a signed-in session.
func HasLoginCookie(header string) bool {
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		for _, want := range loginCookies {
			if strings.TrimSpace(name) == want {
				return true
			}
		}
	}
	return false
}

// Extraction is the data a rendered room page reports back.
type Extraction struct {
	Title    string
	UniqueID string
	TTWID    string

	// RoomStore is the room object serialized as JSON.
	RoomStore string
}

// Validator decides whether a reported extraction is complete enough to use.
type Validator func(*Extraction) bool

// DefaultValidator accepts an extraction with a title and either a unique id
// or a substantial room object.
func DefaultValidator(e *Extraction) bool {
	if e == nil || e.Title == "" {
		return false
	}
	return e.UniqueID != "" || len(e.RoomStore) > 100
}

var errBadPayload = errors.New("interactive: payload is not a JSON object")

// ParseExtraction decodes {"title","user_unique_id","ttwid","room_store"}.
// room_store may be a JSON string holding the object or the object itself.
func ParseExtraction(data []byte) (*Extraction, error) {
	if !gjson.ValidBytes(data) {
		return nil, errBadPayload
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, errBadPayload
	}

	ex := &Extraction{
		Title:    strings.TrimSpace(doc.Get("title").String()),
		UniqueID: doc.Get("user_unique_id").String(),
		TTWID:    doc.Get("ttwid").String(),
	}
	switch room := doc.Get("room_store"); room.Type {
	case gjson.String:
		ex.RoomStore = room.String()
	case gjson.JSON:
		ex.RoomStore = room.Raw
	}
	return ex, nil
}
