// Package utils provides utility functions for the application.
package utils

import "strings"

// Brazilian numbering: country code 55, two-digit area code, and a ninth-digit
// mobile marker that providers add or omit inconsistently. The same real-world
// number therefore reaches us in up to four shapes, and contact matching has to
// consult all of them.

const brCountryCode = "55"

// CleanPhone strips every non-digit character from a phone string
func CleanPhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneVariations returns the set of equivalent representations of a cleaned
// (digits-only) phone string, always including the input itself. For strings
// that do not look like Brazilian numbers the input is returned alone.
func PhoneVariations(phone string) []string {
	phone = CleanPhone(phone)
	if phone == "" {
		return nil
	}

	seen := map[string]struct{}{phone: {}}
	variations := []string{phone}
	add := func(v string) {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			variations = append(variations, v)
		}
	}

	switch {
	case len(phone) == 13 && strings.HasPrefix(phone, brCountryCode):
		// 55 + DDD + 9XXXXXXXX: drop the ninth-digit marker
		if phone[4] == '9' {
			add(phone[:4] + phone[5:])
		}
	case len(phone) == 12 && strings.HasPrefix(phone, brCountryCode):
		// 55 + DDD + XXXXXXXX: insert the ninth-digit marker
		add(phone[:4] + "9" + phone[4:])
	case len(phone) == 11:
		// DDD + 9XXXXXXXX without country prefix
		add(brCountryCode + phone)
		if phone[2] == '9' {
			withoutMarker := phone[:2] + phone[3:]
			add(brCountryCode + withoutMarker)
		}
	case len(phone) == 10:
		// DDD + XXXXXXXX without country prefix
		add(brCountryCode + phone)
		add(brCountryCode + phone[:2] + "9" + phone[2:])
	}

	return variations
}

// NormalizePhone returns the canonical representation used as dedup-lock key:
// the longest country-prefixed form of the number.
func NormalizePhone(phone string) string {
	variations := PhoneVariations(phone)
	if len(variations) == 0 {
		return ""
	}
	best := variations[0]
	for _, v := range variations[1:] {
		if strings.HasPrefix(v, brCountryCode) && (!strings.HasPrefix(best, brCountryCode) || len(v) > len(best)) {
			best = v
		}
	}
	return best
}

// SamePhone reports whether two phone strings resolve to the same real-world
// number under Brazilian variation rules.
func SamePhone(a, b string) bool {
	bClean := CleanPhone(b)
	for _, v := range PhoneVariations(a) {
		if v == bClean {
			return true
		}
	}
	for _, v := range PhoneVariations(b) {
		if v == CleanPhone(a) {
			return true
		}
	}
	return false
}

// ChatIDToPhone extracts the phone portion of a WhatsApp chat reference such as
// 5511987654321@c.us. Group and broadcast references return an empty string.
func ChatIDToPhone(chatID string) string {
	at := strings.IndexByte(chatID, '@')
	if at < 0 {
		return CleanPhone(chatID)
	}
	if strings.HasSuffix(chatID, "@g.us") || strings.HasSuffix(chatID, "@broadcast") {
		return ""
	}
	return CleanPhone(chatID[:at])
}
