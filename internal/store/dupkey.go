package store

import (
	"regexp"
	"strings"
)

// DuplicateMatcher derives identity tokens from a candidate record. Two
// records with the same name and kind are duplicates when their token sets
// intersect.
type DuplicateMatcher interface {
	DuplicateKeys(e NewEntity) map[string]struct{}
}

// DetailTokenMatcher finds phone-number-like and email-like substrings in the
// free-text details and in the contact payload.
type DetailTokenMatcher struct{}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9 ().\-]{5,}[0-9]`)
)

// minPhoneDigits filters out dates and short numbers that look like phones.
const minPhoneDigits = 7

func (DetailTokenMatcher) DuplicateKeys(e NewEntity) map[string]struct{} {
	keys := make(map[string]struct{})
	addEmail := func(s string) {
		if k := emailKey(s); k != "" {
			keys["email:"+k] = struct{}{}
		}
	}
	addPhone := func(s string) {
		if k := phoneKey(s); len(k) >= minPhoneDigits {
			keys["phone:"+k] = struct{}{}
		}
	}

	for _, m := range emailPattern.FindAllString(e.Details, -1) {
		addEmail(m)
	}
	// Strip emails first so their digits are not read as phone numbers.
	rest := emailPattern.ReplaceAllString(e.Details, " ")
	for _, m := range phonePattern.FindAllString(rest, -1) {
		addPhone(m)
	}

	for _, p := range e.ContactData.PhoneNumbers {
		addPhone(p.Number)
	}
	for _, em := range e.ContactData.Emails {
		addEmail(em.Email)
	}
	return keys
}

func keysIntersect(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

func sameDetails(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
