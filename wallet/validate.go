package wallet

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/jmcleod/ironwallet/protocol"
)

func validateName(name, label string) error {
	if strings.TrimSpace(name) == "" {
		return validationErrorf("%s must not be empty", label)
	}
	if len(name) > MaxNameLength {
		return validationErrorf("%s exceeds maximum length of %d", label, MaxNameLength)
	}
	if !utf8.ValidString(name) {
		return validationErrorf("%s contains invalid UTF-8", label)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return validationErrorf("%s contains control character", label)
		}
	}
	return nil
}

// sanitizeSiteName makes a page-supplied name storable: invalid UTF-8 and
// control characters are dropped and the result is cut on a rune boundary
// to at most MaxNameLength bytes.
func sanitizeSiteName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.ToValidUTF8(name, ""))
	name = strings.TrimSpace(name)
	for len(name) > MaxNameLength {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return strings.TrimSpace(name)
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return validationErrorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return validationErrorf("password exceeds maximum length of %d", MaxPasswordLength)
	}
	return nil
}

// normalizeOrigin validates an origin and returns its canonical form.
func normalizeOrigin(origin string) (string, error) {
	if origin == "" {
		return "", validationErrorf("origin must not be empty")
	}
	canonical, err := protocol.OriginFromURL(origin)
	if err != nil {
		return "", validationErrorf("invalid origin: %v", err)
	}
	return canonical, nil
}

// parseAmount parses a MINA amount. Amounts carry at most nine decimals.
func parseAmount(s, label string, allowZero bool) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, validationErrorf("%s is required", label)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, validationErrorf("%s is not a decimal number", label)
	}
	if d.IsNegative() || (!allowZero && d.IsZero()) {
		return decimal.Decimal{}, validationErrorf("%s must be positive", label)
	}
	if !d.Equal(d.Truncate(9)) {
		return decimal.Decimal{}, validationErrorf("%s has more than 9 decimal places", label)
	}
	return d, nil
}

func validateMemo(memo string) error {
	if len(memo) > MaxMemoLength {
		return validationErrorf("memo exceeds maximum length of %d bytes", MaxMemoLength)
	}
	return nil
}

// validateFields checks that every field is a non-negative integer.
func validateFields(fields []string) error {
	if len(fields) == 0 {
		return validationErrorf("fields must not be empty")
	}
	if len(fields) > MaxSignFields {
		return validationErrorf("field count %d exceeds maximum of %d", len(fields), MaxSignFields)
	}
	for i, f := range fields {
		d, err := decimal.NewFromString(f)
		if err != nil || !d.IsInteger() || d.IsNegative() || strings.ContainsAny(f, ".eE") {
			return validationErrorf("field %d is not a non-negative integer", i)
		}
	}
	return nil
}
