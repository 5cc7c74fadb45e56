// Package contacts pulls email, phone and WhatsApp contact channels out of
// free-form chat text.
package contacts

import (
	"regexp"
	"slices"
	"strings"

	"github.com/botlode/brain/internal/leads"
)

// Contact is one contact channel found in a message.
type Contact struct {
	Type  leads.FactType `json:"type"`
	Value string         `json:"value"`
}

const (
	minDigits      = 8
	maxDigits      = 15
	minEmailLength = 5
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?@[A-Za-z0-9](?:[A-Za-z0-9.-]*[A-Za-z0-9])?\.[A-Za-z]{2,}\b`)

// Order matters only for output order; matches from every pattern are unioned.
var phonePatterns = []*regexp.Regexp{
	// Argentina: +54 9 11 1234-5678, 11 1234-5678, (011) 1234-5678
	regexp.MustCompile(`(?:\+?54\s*9?\s*)?\(?0?(?:11|15|20|23|26|29|34|35|37|38|41|42|44|46|47|48|49|5[1-9]|[6-9]\d)\)?\s*[\s\-]?\d{3,4}[\s\-]?\d{3,4}`),
	// generic international
	regexp.MustCompile(`\+?[1-9]\d{1,4}[\s\-]?\(?\d{1,4}\)?[\s\-]?\d{1,4}[\s\-]?\d{1,9}`),
	// bare digit run
	regexp.MustCompile(`\b\d{8,15}\b`),
}

// Each pattern captures the number in group 1.
var whatsAppPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:whatsapp|whats|wsp|wa)\b\s*(?:es\s+|is\s+)?:?\s*[\+\-]?(\d[\d\s\-\(\)]{7,14})`),
	regexp.MustCompile(`(?i)(\+?54\s*9?\s*\d{2,4}[\s\-]?\d{3,4}[\s\-]?\d{3,4})\s*(?:whatsapp|wsp|wa)\b`),
}

var separators = strings.NewReplacer(" ", "", "\t", "", "-", "", "(", "", ")", "", ".", "", "+", "")

// Extract returns the contacts found in text: emails, then phones, then
// WhatsApp numbers, each deduplicated. A number matched by a WhatsApp cue is
// reported only as whatsapp, never also as phone.
func Extract(text string) []Contact {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []Contact
	for _, email := range extractEmails(text) {
		out = append(out, Contact{Type: leads.FactEmail, Value: email})
	}

	whatsApp := extractWhatsApp(text)
	for _, phone := range extractPhones(text) {
		if claimedBy(phone, whatsApp) {
			continue
		}
		out = append(out, Contact{Type: leads.FactPhone, Value: phone.value})
	}
	for _, number := range whatsApp {
		out = append(out, Contact{Type: leads.FactWhatsApp, Value: number.value})
	}
	return out
}

// numberMatch is a normalized number and the byte span it was read from.
type numberMatch struct {
	value      string
	start, end int
}

func (m numberMatch) overlaps(other numberMatch) bool {
	return m.start < other.end && other.start < m.end
}

func extractEmails(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range emailPattern.FindAllString(text, -1) {
		email := strings.ToLower(m)
		if len(email) < minEmailLength {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}

// extractPhones unions every pattern's matches and resolves overlapping spans
// in favour of the longest number. Distinct spans are distinct numbers even
// when one is a substring of another.
func extractPhones(text string) []numberMatch {
	var candidates []numberMatch
	for _, pattern := range phonePatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			number, ok := normalizeNumber(text[loc[0]:loc[1]])
			if !ok {
				continue
			}
			candidates = append(candidates, numberMatch{value: number, start: loc[0], end: loc[1]})
		}
	}

	slices.SortStableFunc(candidates, func(a, b numberMatch) int {
		if len(a.value) != len(b.value) {
			return len(b.value) - len(a.value)
		}
		return a.start - b.start
	})
	var accepted []numberMatch
	for _, c := range candidates {
		if !slices.ContainsFunc(accepted, c.overlaps) {
			accepted = append(accepted, c)
		}
	}
	slices.SortFunc(accepted, func(a, b numberMatch) int { return a.start - b.start })
	return dedupeNumbers(accepted)
}

func extractWhatsApp(text string) []numberMatch {
	var found []numberMatch
	for _, pattern := range whatsAppPatterns {
		for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
			if loc[2] < 0 {
				continue
			}
			number, ok := normalizeNumber(text[loc[2]:loc[3]])
			if !ok {
				continue
			}
			found = append(found, numberMatch{value: number, start: loc[2], end: loc[3]})
		}
	}
	return dedupeNumbers(found)
}

func dedupeNumbers(matches []numberMatch) []numberMatch {
	seen := make(map[string]struct{}, len(matches))
	out := matches[:0:0]
	for _, m := range matches {
		if _, dup := seen[m.value]; dup {
			continue
		}
		seen[m.value] = struct{}{}
		out = append(out, m)
	}
	return out
}

// normalizeNumber strips separators and keeps purely numeric 8-15 digit results.
func normalizeNumber(raw string) (string, bool) {
	cleaned := separators.Replace(strings.TrimSpace(raw))
	if len(cleaned) < minDigits || len(cleaned) > maxDigits {
		return "", false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return cleaned, true
}

// claimedBy reports whether phone was read from a WhatsApp span or repeats a
// WhatsApp number given elsewhere in the message.
func claimedBy(phone numberMatch, whatsApp []numberMatch) bool {
	for _, w := range whatsApp {
		if phone.value == w.value || phone.overlaps(w) {
			return true
		}
	}
	return false
}

// HasContact reports whether any contact channel is present.
func HasContact(found []Contact) bool {
	for _, c := range found {
		if c.Type.IsContact() {
			return true
		}
	}
	return false
}

// ToFacts converts contacts into session facts.
func ToFacts(found []Contact, sessionID, botID string) []leads.Fact {
	facts := make([]leads.Fact, 0, len(found))
	for _, c := range found {
		facts = append(facts, leads.Fact{SessionID: sessionID, BotID: botID, Type: c.Type, Value: c.Value})
	}
	return facts
}
