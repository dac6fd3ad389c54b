package security

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"a@b.com",
		"user.name+tag@example.co.uk",
		"UPPER_case-1@sub.domain.io",
	}
	for _, s := range valid {
		assert.True(t, ValidateEmail(s), s)
	}

	invalid := []string{
		"",
		"plainaddress",
		"@missing-local.com",
		"user@",
		"user@@double.com",
		"user@-dash.com",
		"user@domain",
		strings.Repeat("a", 250) + "@b.com",
	}
	for _, s := range invalid {
		assert.False(t, ValidateEmail(s), s)
	}
}

func TestValidateUserID(t *testing.T) {
	assert.True(t, ValidateUserID("user-1_A"))
	assert.True(t, ValidateUserID(strings.Repeat("x", 128)))

	assert.False(t, ValidateUserID(""))
	assert.False(t, ValidateUserID("has space"))
	assert.False(t, ValidateUserID("semi;colon"))
	assert.False(t, ValidateUserID("drop'table"))
	assert.False(t, ValidateUserID(strings.Repeat("x", 129)))
}

func TestValidateAmount(t *testing.T) {
	assert.True(t, ValidateAmount(decimal.Zero))
	assert.True(t, ValidateAmount(decimal.RequireFromString("29.99")))
	assert.True(t, ValidateAmount(decimal.RequireFromString("999999999.99")))
	assert.True(t, ValidateAmount(decimal.RequireFromString("10.990"))) // trailing zero

	assert.False(t, ValidateAmount(decimal.RequireFromString("-0.01")))
	assert.False(t, ValidateAmount(decimal.RequireFromString("1000000000")))
	assert.False(t, ValidateAmount(decimal.RequireFromString("1.999")))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "", SanitizeText("", 100))
	assert.Equal(t, "ab", SanitizeText("a\x00b\x1b", 100))
	assert.Equal(t, "line1\nline2\ttab", SanitizeText("line1\nline2\ttab", 100))
	assert.Equal(t, "abc", SanitizeText("abcdef", 3))
	// rune-safe truncation
	assert.Equal(t, "héł", SanitizeText("héłlo", 3))
}

func TestValidateMetadata(t *testing.T) {
	assert.True(t, ValidateMetadata(nil))
	assert.True(t, ValidateMetadata(map[string]any{
		"str":    "x",
		"num":    42.5,
		"bool":   true,
		"null":   nil,
		"nested": map[string]any{"list": []any{1, "two", false}},
	}))

	assert.False(t, ValidateMetadata(map[string]any{"fn": func() {}}))
	assert.False(t, ValidateMetadata(map[string]any{"ch": make(chan int)}))

	big := map[string]any{"blob": strings.Repeat("y", maxMetadataLen)}
	assert.False(t, ValidateMetadata(big))
}
