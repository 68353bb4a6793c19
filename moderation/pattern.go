package moderation

import (
	"regexp"
	"strings"
)

// MatchPattern matches a candidate IP address against a wildcard pattern.
// Literal dots are escaped, every "*" matches any run of characters, the
// whole candidate must match. An unparseable pattern matches nothing.
func MatchPattern(pattern, ip string) bool {
	expr := strings.ReplaceAll(pattern, ".", `\.`)
	expr = strings.ReplaceAll(expr, "*", ".*")
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return false
	}
	return re.MatchString(ip)
}
