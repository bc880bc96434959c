package menu

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	rubleSpaceRe  = regexp.MustCompile(`\s*₽`)
	firstDigitsRe = regexp.MustCompile(`\d+`)
	nonDigitRe    = regexp.MustCompile(`\D`)
)

// CleanText replaces non-breaking spaces, collapses whitespace runs, and trims.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ParsePrice normalizes display price text so the ruble sign is separated by one space.
func ParsePrice(raw string) string {
	return rubleSpaceRe.ReplaceAllString(CleanText(raw), " ₽")
}

// ParseCalories reads an integer from calorie text, falling back to the first
// digit run and then to zero. Values outside the int32 range of the calories
// column also yield zero.
func ParseCalories(raw string) int {
	raw = CleanText(raw)
	if n, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return int(n)
	}
	if m := firstDigitsRe.FindString(raw); m != "" {
		if n, err := strconv.ParseInt(m, 10, 32); err == nil {
			return int(n)
		}
	}
	return 0
}

// DigitsOnly strips every non-digit rune. Phone numbers are stored this way.
func DigitsOnly(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}

// PriceMinorUnits converts display price text into kopecks for the bot layer.
// It returns false when the text carries no digits.
func PriceMinorUnits(price string) (int64, bool) {
	digits := DigitsOnly(price)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n * 100, true
}
