// Package display holds the small formatting helpers shared by the map
// detail views and the dashboard.
package display

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// FormatNumber abbreviates large counts: 1234567 -> "1.2M", 4500 -> "4.5K".
func FormatNumber(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatTimeAgo renders the age of t relative to now in whole hours or days.
// A zero t yields "".
func FormatTimeAgo(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	hours := int(now.Sub(t) / time.Hour)
	switch {
	case hours < 1:
		return "Just now"
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	default:
		return fmt.Sprintf("%dd ago", hours/24)
	}
}

// Capitalize upper-cases the first letter of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Coordinates formats a lat/lon pair with four decimals.
func Coordinates(lat, lon float64) string {
	return strings.Join([]string{
		strconv.FormatFloat(lat, 'f', 4, 64),
		strconv.FormatFloat(lon, 'f', 4, 64),
	}, ", ")
}
