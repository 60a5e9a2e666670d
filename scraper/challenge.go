package scraper

import (
	"strings"

	"github.com/use-agent/livebox/models"
)

// Challenge is the access wall detected in a room page body.
type Challenge int

const (
	ChallengeNone Challenge = iota
	ChallengeNeedsLogin
	ChallengeNeedsCaptcha
)

func (c Challenge) String() string {
	switch c {
	case ChallengeNeedsLogin:
		return "needs_login"
	case ChallengeNeedsCaptcha:
		return "needs_captcha"
	default:
		return "none"
	}
}

// challengeMarkers is checked in order; the first marker found decides.
// Captcha markers come first so a verification page that also mentions a
// denial is still reported as a captcha.
var challengeMarkers = []struct {
	marker    string
	challenge Challenge
}{
	{"验证码中间页", ChallengeNeedsCaptcha},
	{"middle_page_loading", ChallengeNeedsCaptcha},
	{"captcha", ChallengeNeedsCaptcha},
	{"Access Denied", ChallengeNeedsLogin},
	{"X-TT-System-Error", ChallengeNeedsLogin},
}

// Classify inspects a response body for challenge markers.
func Classify(body string) Challenge {
	for _, m := range challengeMarkers {
		if strings.Contains(body, m.marker) {
			return m.challenge
		}
	}
	return ChallengeNone
}

// ChallengeOf maps a Scrape error back to the challenge that caused it.
// Extraction failures count as NeedsLogin; transport errors and nil are None.
func ChallengeOf(err error) Challenge {
	switch models.CodeOf(err) {
	case models.ErrCodeNeedsCaptcha:
		return ChallengeNeedsCaptcha
	case models.ErrCodeNeedsLogin, models.ErrCodeExtractionFailed:
		return ChallengeNeedsLogin
	}
	return ChallengeNone
}

func (c Challenge) err(target string) error {
	switch c {
	case ChallengeNeedsCaptcha:
		return models.NewScrapeError(models.ErrCodeNeedsCaptcha,
			"verification page served for "+target, nil)
	case ChallengeNeedsLogin:
		return models.NewScrapeError(models.ErrCodeNeedsLogin,
			"access denied for "+target, nil)
	}
	return nil
}
