package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/botlode/brain/internal/sentiment"
)

// Heuristic guards over the oracle's draft reply. They are keyword filters
// over accent-folded text and can miss creative phrasing.

var (
	contactNoun     = regexp.MustCompile(`\b(e-?mail|mail|correo|telefono|numero|whatsapp|wsp|celular|cel|contacto|datos)\b`)
	contactRequest  = regexp.MustCompile(`\b(dejame|dejanos|deja|pasame|pasanos|pasas|dejas|compartime|compartis|compartir|enviame|mandame|escribime|podes dejar|podrias dejar|podrias pasar|cual es tu|me das|necesito tu|necesitamos tu|share|send me|leave)\b`)
	contactContinue = regexp.MustCompile(`\b(tambien|ademas|otro|otra|alternativ[oa]|adicional|also|another|other|additional)\b`)
	contactConfirm  = regexp.MustCompile(`\b(ya tengo tu|ya tenemos tu|ya registre|registramos tu|quedo registrad[oa]|quedo agendad[oa]|queda agendad[oa]|quedo confirmad[oa]|te va a contactar|te vamos a contactar|se va a comunicar|se comunicara|te contactara|nos pondremos en contacto|te escribimos|got your|we'll be in touch|will contact you)\b`)
)

// replyAlreadyRequestsContact reports whether the draft already asks the user
// for a contact channel.
func replyAlreadyRequestsContact(reply string) bool {
	for _, s := range splitSentences(reply) {
		if sentenceRequestsContact(s) {
			return true
		}
	}
	return false
}

// replyAlreadyConfirmsContact reports whether the draft already acknowledges
// receiving the user's contact. Sentences that also request contact do not count.
func replyAlreadyConfirmsContact(reply string) bool {
	for _, s := range splitSentences(reply) {
		folded := sentiment.Fold(s)
		if sentenceRequestsContact(s) {
			continue
		}
		if contactConfirm.MatchString(folded) {
			return true
		}
	}
	return false
}

// replyAsksForAnotherContact reports whether the draft asks for a second
// contact channel ("¿tenés también un teléfono?").
func replyAsksForAnotherContact(reply string) bool {
	for _, s := range splitSentences(reply) {
		if sentenceAsksForAnotherContact(s) {
			return true
		}
	}
	return false
}

func sentenceRequestsContact(s string) bool {
	folded := sentiment.Fold(s)
	if !contactNoun.MatchString(folded) {
		return false
	}
	return contactRequest.MatchString(folded) || strings.Contains(folded, "?")
}

func sentenceAsksForAnotherContact(s string) bool {
	folded := sentiment.Fold(s)
	return contactNoun.MatchString(folded) && contactContinue.MatchString(folded)
}

// stripContactRequests removes every sentence that asks for contact details.
// The result is empty when the draft was nothing but such requests.
func stripContactRequests(reply string) (string, bool) {
	if !replyAlreadyRequestsContact(reply) && !replyAsksForAnotherContact(reply) {
		return reply, false
	}
	var kept []string
	for _, s := range splitSentences(reply) {
		if sentenceRequestsContact(s) || sentenceAsksForAnotherContact(s) {
			continue
		}
		kept = append(kept, s)
	}
	return strings.Join(kept, " "), true
}

// splitSentences splits on terminal punctuation followed by whitespace or the
// end of text, keeping the punctuation. Dots inside emails and numbers stay.
func splitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var out []string
	start := 0
	for i, r := range runes {
		terminal := r == '.' || r == '!' || r == '?' || r == '\n'
		if !terminal {
			continue
		}
		if r != '\n' && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// appendSentence joins extra onto reply with a single space.
func appendSentence(reply, extra string) string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return extra
	}
	return reply + " " + extra
}
