package ecommerce

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// defaultPhoneRegion is used for numbers written without a country code
const defaultPhoneRegion = "TR"

// NormalizePhone formats a phone number as E.164 so that the same customer
// written as "0532 111 22 33" and "+90 532 111 2233" compares equal. Values
// that do not parse as a valid number, including masked ones, are returned
// trimmed but otherwise untouched.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = defaultPhoneRegion
	}
	num, err := libphonenumber.Parse(raw, region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
