package bot

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"shopbot/internal/models"
)

var (
	errUsage       = errors.New("usage")
	errBadQuantity = errors.New("quantity must be a positive whole number")
	errBadDuration = errors.New("invalid duration")
)

// qtyThenQuery parses "[qty] <name|id>". A lone number is a query, so
// "buy 7" looks up item 7.
func qtyThenQuery(raw string) (int64, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "", errUsage
	}
	first, rest := splitFirst(raw)
	if rest == "" || !isNumber(first) {
		return 1, raw, nil
	}
	qty, err := parseQuantity(first)
	if err != nil {
		return 0, "", err
	}
	return qty, rest, nil
}

// queryThenQty parses "<name|id> [qty]".
func queryThenQty(raw string) (string, int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, errUsage
	}
	i := strings.LastIndexAny(raw, " \t")
	if i < 0 {
		return raw, 1, nil
	}
	last := raw[i+1:]
	if !isNumber(last) {
		return raw, 1, nil
	}
	qty, err := parseQuantity(last)
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(raw[:i]), qty, nil
}

func parseQuantity(s string) (int64, error) {
	qty, err := strconv.ParseInt(s, 10, 64)
	if err != nil || qty <= 0 {
		return 0, errBadQuantity
	}
	return qty, nil
}

func isNumber(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

const (
	mentionUser = models.TargetUser
	mentionRole = models.TargetRole
)

var mentionRegex = regexp.MustCompile(`^<@([!&]?)([0-9]+)>$`)

// parseMention reads <@id>, <@!id> or <@&id>. A bare snowflake is taken as
// a user.
func parseMention(token string) (id, kind string, ok bool) {
	if m := mentionRegex.FindStringSubmatch(token); m != nil {
		if m[1] == "&" {
			return m[2], mentionRole, true
		}
		return m[2], mentionUser, true
	}
	if len(token) >= 5 && isNumber(token) && token[0] != '-' && token[0] != '+' {
		return token, mentionUser, true
	}
	return "", "", false
}

var durationTokenRegex = regexp.MustCompile(`(\d+)\s*([dhms])`)

// parseDuration accepts Go durations ("1h30m"), day suffixes ("1d2h"),
// clock form ("HH:MM:SS" or "MM:SS") and bare seconds.
func parseDuration(text string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, errBadDuration
	}
	if strings.Contains(s, ":") {
		return parseClock(s)
	}
	if isNumber(s) {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil || secs < 0 {
			return 0, errBadDuration
		}
		return time.Duration(secs) * time.Second, nil
	}
	if !strings.Contains(s, "d") {
		if d, err := time.ParseDuration(strings.ReplaceAll(s, " ", "")); err == nil && d >= 0 {
			return d, nil
		}
	}
	matches := durationTokenRegex.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 || strings.TrimSpace(durationTokenRegex.ReplaceAllString(s, "")) != "" {
		return 0, errBadDuration
	}
	var total time.Duration
	for _, m := range matches {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, errBadDuration
		}
		switch m[2] {
		case "d":
			total += time.Duration(n) * 24 * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		case "s":
			total += time.Duration(n) * time.Second
		}
	}
	if total <= 0 {
		return 0, errBadDuration
	}
	return total, nil
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, errBadDuration
	}
	var values [3]int64
	for i, p := range parts {
		if !isNumber(p) || p[0] == '-' || p[0] == '+' {
			return 0, errBadDuration
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, errBadDuration
		}
		values[i] = v
	}
	if values[1] >= 60 || values[2] >= 60 {
		return 0, errBadDuration
	}
	return time.Duration(values[0])*time.Hour + time.Duration(values[1])*time.Minute + time.Duration(values[2])*time.Second, nil
}
