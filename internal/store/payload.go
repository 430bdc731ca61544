package store

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// ContactData is the structured payload carried by an entity, as imported
// from a device address book.
type ContactData struct {
	PhoneNumbers []PhoneNumber `json:"phoneNumbers"`
	Emails       []Email       `json:"emails"`
	Addresses    []Address     `json:"addresses"`
	Company      string        `json:"company,omitempty"`
	JobTitle     string        `json:"jobTitle,omitempty"`
}

type PhoneNumber struct {
	Label  string `json:"label,omitempty"`
	Number string `json:"number"`
}

type Email struct {
	Label string `json:"label,omitempty"`
	Email string `json:"email"`
}

type Address struct {
	Label      string `json:"label,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Empty reports whether the payload carries no data.
func (c ContactData) Empty() bool {
	return len(c.PhoneNumbers) == 0 && len(c.Emails) == 0 && len(c.Addresses) == 0 &&
		c.Company == "" && c.JobTitle == ""
}

// normalized returns a copy with nil slices replaced by empty ones so the
// stored JSON always has the same shape.
func (c ContactData) normalized() ContactData {
	if c.PhoneNumbers == nil {
		c.PhoneNumbers = []PhoneNumber{}
	}
	if c.Emails == nil {
		c.Emails = []Email{}
	}
	if c.Addresses == nil {
		c.Addresses = []Address{}
	}
	return c
}

// encodeContactData returns the column value for a payload. An empty payload
// is stored as NULL.
func encodeContactData(c ContactData) (any, error) {
	if c.Empty() {
		return nil, nil
	}
	b, err := json.Marshal(c.normalized())
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// parseContactData decodes a stored payload. ok is false when raw is present
// but not a valid JSON object.
func parseContactData(raw string) (c ContactData, ok bool) {
	if strings.TrimSpace(raw) == "" {
		return ContactData{}.normalized(), true
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return ContactData{}.normalized(), false
	}
	return c.normalized(), true
}

// emptyContactJSON is what a corrupt payload is replaced with.
const emptyContactJSON = `{"phoneNumbers":[],"emails":[],"addresses":[]}`

// loadContactData parses the payload of an entity and repairs it in place if
// it is corrupt. Read paths never fail on a bad payload.
func (db *DB) loadContactData(ctx context.Context, q querier, entityID int64, raw string) ContactData {
	c, ok := parseContactData(raw)
	if ok {
		return c
	}

	db.log.Warn("repairing corrupt contact data",
		zap.Int64("entity_id", entityID), zap.Int("bytes", len(raw)))
	if _, err := q.ExecContext(ctx,
		"UPDATE entities SET contact_data = ? WHERE id = ?", emptyContactJSON, entityID,
	); err != nil {
		db.log.Warn("contact data repair failed", zap.Int64("entity_id", entityID), zap.Error(err))
	}
	return c
}

// MergeContactData combines two payloads. Entries from b are appended to a
// unless an equal value is already present: phone numbers compare by digits,
// emails case-insensitively, addresses by street, city, state and postal code.
func MergeContactData(a, b ContactData) ContactData {
	out := ContactData{
		PhoneNumbers: append([]PhoneNumber{}, a.PhoneNumbers...),
		Emails:       append([]Email{}, a.Emails...),
		Addresses:    append([]Address{}, a.Addresses...),
		Company:      a.Company,
		JobTitle:     a.JobTitle,
	}

	phones := make(map[string]bool)
	for _, p := range out.PhoneNumbers {
		phones[phoneKey(p.Number)] = true
	}
	for _, p := range b.PhoneNumbers {
		k := phoneKey(p.Number)
		if k == "" || phones[k] {
			continue
		}
		phones[k] = true
		out.PhoneNumbers = append(out.PhoneNumbers, p)
	}

	emails := make(map[string]bool)
	for _, e := range out.Emails {
		emails[emailKey(e.Email)] = true
	}
	for _, e := range b.Emails {
		k := emailKey(e.Email)
		if k == "" || emails[k] {
			continue
		}
		emails[k] = true
		out.Emails = append(out.Emails, e)
	}

	addrs := make(map[string]bool)
	for _, a := range out.Addresses {
		addrs[addressKey(a)] = true
	}
	for _, a := range b.Addresses {
		k := addressKey(a)
		if k == "|||" || addrs[k] {
			continue
		}
		addrs[k] = true
		out.Addresses = append(out.Addresses, a)
	}

	if out.Company == "" {
		out.Company = b.Company
	}
	if out.JobTitle == "" {
		out.JobTitle = b.JobTitle
	}
	return out.normalized()
}

func phoneKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func emailKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func addressKey(a Address) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return norm(a.Street) + "|" + norm(a.City) + "|" + norm(a.State) + "|" + norm(a.PostalCode)
}
