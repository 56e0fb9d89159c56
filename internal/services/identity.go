package services

import "strings"

const localNumberLength = 10

// digitsOnly drops every non-digit character.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeIdentity turns a raw contact ("whatsapp:+91 98765-43210",
// "9876543210") into the session key: digits only, with the country prefix.
// Numbers that are neither local nor prefixed are returned as bare digits.
func NormalizeIdentity(raw, countryPrefix string) string {
	digits := digitsOnly(raw)
	if len(digits) == len(countryPrefix)+localNumberLength && strings.HasPrefix(digits, countryPrefix) {
		return digits
	}
	if len(digits) == localNumberLength {
		return countryPrefix + digits
	}
	return digits
}

// LocalNumber strips the country prefix from a normalized identity. Customer
// records store this local form.
func LocalNumber(identity, countryPrefix string) string {
	if len(identity) == len(countryPrefix)+localNumberLength && strings.HasPrefix(identity, countryPrefix) {
		return identity[len(countryPrefix):]
	}
	return identity
}
