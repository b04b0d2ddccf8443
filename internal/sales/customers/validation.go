package customers

import (
	"strings"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// NormalizeTaxID strips the separators of a formatted NPWP
// (99.999.999.9-999.999) and checks the digit count. Both the legacy
// 15-digit and the 16-digit form are accepted.
func NormalizeTaxID(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == ' ':
		default:
			return "", shared.Validation("tax id may contain only digits, dots and dashes", nil)
		}
	}
	digits := b.String()
	if len(digits) != 15 && len(digits) != 16 {
		return "", shared.Validation("tax id must have 15 or 16 digits", nil)
	}
	return digits, nil
}
