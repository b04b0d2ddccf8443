package messaging

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// DefaultRegion is used when a number carries no country code.
const DefaultRegion = "ID"

// PhoneNormalizer checks that a number is a plausible mobile number and
// renders it in E.164 form.
type PhoneNormalizer struct {
	region string
}

// NewPhoneNormalizer parses numbers without a country code as region
// (ISO 3166-1 alpha-2).
func NewPhoneNormalizer(region string) *PhoneNormalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	return &PhoneNormalizer{region: region}
}

// Normalize returns raw as +<country><number>.
func (p *PhoneNormalizer) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", shared.Validation("phone number is empty", nil)
	}
	num, err := phonenumbers.Parse(raw, p.region)
	if err != nil {
		return "", shared.Validation("phone number "+raw+" cannot be parsed", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", shared.Validation("phone number "+raw+" is not valid", nil)
	}
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.MOBILE, phonenumbers.FIXED_LINE_OR_MOBILE:
	default:
		return "", shared.Validation("phone number "+raw+" is not a mobile number", nil)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
