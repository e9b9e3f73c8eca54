// Package validation holds the instrument format checks applied before a
// payment is accepted: VPA shape for UPI, Luhn and expiry for cards.
package validation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var vpaPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)

// ValidVPA reports whether the UPI virtual payment address is well formed.
func ValidVPA(vpa string) bool {
	return vpa != "" && vpaPattern.MatchString(vpa)
}

func sanitizeCardNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, number)
}

// ValidLuhn reports whether the card number passes the Luhn checksum and is a
// plausible length.
func ValidLuhn(number string) bool {
	n := sanitizeCardNumber(number)
	if len(n) < 13 || len(n) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(n) - 1; i >= 0; i-- {
		d := int(n[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// CardNetwork guesses the scheme from the leading digits. Unknown prefixes
// come back as "unknown", never an error.
func CardNetwork(number string) string {
	n := sanitizeCardNumber(number)
	switch {
	case strings.HasPrefix(n, "4"):
		return "visa"
	case len(n) >= 2 && n[0] == '5' && n[1] >= '1' && n[1] <= '5':
		return "mastercard"
	case strings.HasPrefix(n, "34"), strings.HasPrefix(n, "37"):
		return "amex"
	case strings.HasPrefix(n, "60"), strings.HasPrefix(n, "65"):
		return "rupay"
	case len(n) >= 2 && n[0] == '8' && n[1] >= '1' && n[1] <= '9':
		return "rupay"
	default:
		return "unknown"
	}
}

// Last4 returns the trailing four digits for masked storage.
func Last4(number string) string {
	n := sanitizeCardNumber(number)
	if len(n) < 4 {
		return ""
	}
	return n[len(n)-4:]
}

// ValidExpiry reports whether month/year name the current month or later.
// Two-digit years are taken as 20xx.
func ValidExpiry(monthStr, yearStr string, now time.Time) bool {
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return false
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return false
	}
	if year < 100 {
		year += 2000
	}
	if year > now.Year() {
		return true
	}
	if year < now.Year() {
		return false
	}
	return month >= int(now.Month())
}
