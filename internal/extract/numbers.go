package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloat = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)`)
	nonWord      = regexp.MustCompile(`[^0-9A-Za-z_]`)
	sqmSuffix    = regexp.MustCompile(`\s*sqm.*`)
)

// StringToNumber strips thousands separators and whitespace and reads the
// leading integer. Text without one yields 0.
func StringToNumber(s string) int64 {
	clean := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	digits := leadingInt.FindString(clean)
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseRent reads rent text such as "50k gold" or "1,000 gold". A "k" marks
// thousands; anything unparsable is 0.
func ParseRent(s string) int64 {
	clean := nonWord.ReplaceAllString(strings.ToLower(s), "")
	if strings.Contains(clean, "k") {
		clean = strings.Replace(clean, "k", "", 1)
		clean = strings.Replace(clean, "gold", "", 1)
		lead := leadingFloat.FindString(clean)
		if lead == "" {
			return 0
		}
		f, err := strconv.ParseFloat(lead, 64)
		if err != nil {
			return 0
		}
		return int64(math.Floor(f * 1000))
	}
	return StringToNumber(strings.Replace(clean, "gold", "", 1))
}

// ParseSize reads floor area text such as "16 sqm".
func ParseSize(s string) int64 {
	return StringToNumber(sqmSuffix.ReplaceAllString(s, ""))
}
