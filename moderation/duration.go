package moderation

import (
	"regexp"
	"strconv"
	"time"
)

var durationRe = regexp.MustCompile(`^(\d+)(m|h|d)$`)

// IsDurationToken reports whether the token would parse as a duration.
func IsDurationToken(token string) bool {
	return durationRe.MatchString(token)
}

// ParseExpiry turns a short duration token (5m, 1h, 1d) into an absolute
// expiry timestamp. A token that does not match the pattern yields nil,
// meaning permanent. The silent fallback is intentional: moderators who
// mistype a duration get an indefinite sanction rather than an error.
func ParseExpiry(token string, now time.Time) *time.Time {
	m := durationRe.FindStringSubmatch(token)
	if m == nil {
		return nil
	}
	amount, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	var expiry time.Time
	switch m[2] {
	case "m":
		expiry = now.Add(time.Duration(amount) * time.Minute)
	case "h":
		expiry = now.Add(time.Duration(amount) * time.Hour)
	case "d":
		expiry = now.AddDate(0, 0, amount)
	default:
		return nil
	}
	return &expiry
}
