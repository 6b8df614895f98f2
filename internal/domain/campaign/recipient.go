// Package campaign holds the domain model and invariants for bulk SMS
// dispatch: recipients, sessions (campaigns) and outbound send attempts.
package campaign

import "strings"

// Recipient is one addressable entry from an imported list. Immutable once
// enqueued into a Session; attributes never change mid-campaign.
type Recipient struct {
	ID     string // stable within the owning session
	Phone  string // E.164-normalized
	Name   string
	Amount string
	Fields map[string]string
}

// Field performs a case-insensitive lookup of a recipient attribute,
// falling back to the common top-level aliases (Name, Phone, Amount).
func (r Recipient) Field(key string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(key))

	switch lower {
	case "name":
		if r.Name != "" {
			return r.Name, true
		}
	case "phone", "phonenumber", "mobile":
		if r.Phone != "" {
			return r.Phone, true
		}
	case "amount":
		if r.Amount != "" {
			return r.Amount, true
		}
	}

	for k, v := range r.Fields {
		if strings.ToLower(strings.TrimSpace(k)) == lower {
			return v, true
		}
	}

	return "", false
}
