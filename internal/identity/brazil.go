package identity

import "strings"

// Brazilian numbering constants. A full mobile number is the country code
// "55", a two-digit area code, and a nine-digit line starting with "9".
// Providers are inconsistent about carrying that leading "9", so the same
// subscriber shows up as a 12- or 13-digit identifier at different times.
const (
	brazilCountryCode = "55"
	// length of 55 + DD + 8-digit line (the form without the mobile "9")
	brazilShortLen = 12
	// length of 55 + DD + 9-digit line (the form with the mobile "9")
	brazilLongLen = 13
	// index of the optional "9", right after country and area code
	brazilNinePos = 4
)

// isBrazilian reports whether the identifier carries the Brazilian country code.
func isBrazilian(id string) bool {
	return strings.HasPrefix(id, brazilCountryCode)
}

// NormalizeKey computes the cache key form of an identifier. Brazilian
// numbers are keyed with the optional mobile "9" stripped, so both textual
// forms of the same subscriber normalize to the same key. Everything else
// is keyed raw.
func NormalizeKey(id string) string {
	if isBrazilian(id) && len(id) == brazilLongLen && id[brazilNinePos] == '9' {
		return id[:brazilNinePos] + id[brazilNinePos+1:]
	}
	return id
}

// ToggleNine returns the identifier with the Brazilian mobile "9" toggled:
// removed when present, inserted when absent and the number has mobile
// length. The second return is false when no toggle applies (non-Brazilian
// numbers, landline-length numbers).
func ToggleNine(id string) (string, bool) {
	if !isBrazilian(id) {
		return "", false
	}
	switch len(id) {
	case brazilLongLen:
		if id[brazilNinePos] != '9' {
			return "", false
		}
		return id[:brazilNinePos] + id[brazilNinePos+1:], true
	case brazilShortLen:
		return id[:brazilNinePos] + "9" + id[brazilNinePos:], true
	default:
		return "", false
	}
}
