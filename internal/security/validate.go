package security

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	maxEmailLen    = 254
	maxUserIDLen   = 128
	maxMetadataLen = 1 << 20 // 1MB serialized
)

var (
	emailPattern  = regexp.MustCompile(`^[A-Za-z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?)+$`)
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	maxAmount = decimal.RequireFromString("999999999.99")
)

// ValidateEmail reports whether s is an RFC-5322-like address of sane length.
func ValidateEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxEmailLen {
		return false
	}
	return emailPattern.MatchString(s)
}

// ValidateUserID accepts alphanumeric, hyphen and underscore identifiers.
func ValidateUserID(s string) bool {
	if s == "" || len(s) > maxUserIDLen {
		return false
	}
	return userIDPattern.MatchString(s)
}

// ValidateAmount bounds monetary values to at most two decimal places in
// [0, 999,999,999.99].
func ValidateAmount(x decimal.Decimal) bool {
	if x.IsNegative() || x.GreaterThan(maxAmount) {
		return false
	}
	return x.Exponent() >= -2 || x.Equal(x.Round(2))
}

// SanitizeText strips control characters except newline and tab, then
// truncates to maxLen runes. Empty input yields empty output.
func SanitizeText(s string, maxLen int) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if maxLen > 0 {
		runes := []rune(out)
		if len(runes) > maxLen {
			out = string(runes[:maxLen])
		}
	}
	return out
}

// ValidateMetadata restricts metadata to JSON primitives, maps and arrays,
// serializing to at most 1MB.
func ValidateMetadata(v map[string]any) bool {
	if v == nil {
		return true
	}
	for _, value := range v {
		if !validMetadataValue(value) {
			return false
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return len(raw) <= maxMetadataLen
}

func validMetadataValue(v any) bool {
	switch cast := v.(type) {
	case nil, bool, string,
		int, int32, int64, uint, uint32, uint64,
		float32, float64, json.Number:
		return true
	case []any:
		for _, item := range cast {
			if !validMetadataValue(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range cast {
			if !validMetadataValue(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
