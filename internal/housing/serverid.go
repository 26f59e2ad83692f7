package housing

import "unicode/utf16"

// ServerID derives the stable numeric identity of a world from its name.
// It is a 31-multiplier rolling hash over UTF-16 code units with 32-bit
// wraparound; the absolute value is widened so MinInt32 stays positive.
func ServerID(name string) int64 {
	var h int32
	for _, unit := range utf16.Encode([]rune(name)) {
		h = h*31 + int32(unit)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}
