// Package sentiment detects rejection and disinterest in user messages and
// uses it to override the oracle's self-reported intent score.
package sentiment

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var tracer = otel.Tracer("botlode.internal.sentiment")

// Category names a family of negative phrases.
type Category string

const (
	CategoryNone              Category = ""
	CategoryStrongRejection   Category = "strong_rejection"
	CategoryPriceRejection    Category = "price_rejection"
	CategoryModerateRejection Category = "moderate_rejection"
	CategoryMildDisinterest   Category = "mild_disinterest"
	CategoryFarewell          Category = "negative_farewell"
)

// Rule maps one phrase pattern to a category and signal strength.
// Patterns run against lower-cased, accent-folded text.
type Rule struct {
	Category Category
	Strength int
	Pattern  *regexp.Regexp
}

// Signal is the outcome of analysing one message.
type Signal struct {
	Category Category
	Farewell bool
	Strength int
	Matched  []string
}

// Detector evaluates a prioritized rule table. Rules are checked in table
// order; the first non-farewell category to match is the only one counted,
// while a farewell match always stacks on top.
type Detector struct {
	rules []Rule
}

// NewDetector builds a detector over rules. Nil rules selects DefaultRules.
func NewDetector(rules []Rule) *Detector {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Detector{rules: rules}
}

func rule(c Category, strength int, pattern string) Rule {
	return Rule{Category: c, Strength: strength, Pattern: regexp.MustCompile(pattern)}
}

// DefaultRules returns the Spanish and English phrase table, highest priority first.
func DefaultRules() []Rule {
	return []Rule{
		rule(CategoryStrongRejection, 3, `\bno me interesa(n)? (para )?(nada|en absoluto)\b`),
		rule(CategoryStrongRejection, 3, `\bno quiero (nada|saber nada)\b`),
		rule(CategoryStrongRejection, 3, `\b(dejame|deja) (en paz|tranquil[oa])\b`),
		rule(CategoryStrongRejection, 3, `\b(deja|dejen|basta) de (escribir(me)?|molestar(me)?|insistir)\b`),
		rule(CategoryStrongRejection, 3, `\bno (me )?(escribas|molestes|contactes) mas\b`),
		rule(CategoryStrongRejection, 3, `\b(estafa|estafadores|chanta|chantas|basura)\b`),
		rule(CategoryStrongRejection, 3, `\bnot interested at all\b`),
		rule(CategoryStrongRejection, 3, `\b(leave me alone|stop (messaging|texting|writing)( me)?)\b`),

		rule(CategoryPriceRejection, 2, `\b(muy|re|demasiado|super|bastante) car[oa]s?\b`),
		rule(CategoryPriceRejection, 2, `\bcarisim[oa]s?\b`),
		rule(CategoryPriceRejection, 2, `\bno (me )?alcanza (el )?(presupuesto|plata|dinero)\b`),
		rule(CategoryPriceRejection, 2, `\bno tengo (el )?(presupuesto|plata|dinero)\b`),
		rule(CategoryPriceRejection, 2, `\bfuera de (mi )?presupuesto\b`),
		rule(CategoryPriceRejection, 2, `\b(too|very|way too) expensive\b`),
		rule(CategoryPriceRejection, 2, `\bcan'?t afford\b`),

		rule(CategoryModerateRejection, 2, `\bno me interesa(n)?\b`),
		rule(CategoryModerateRejection, 2, `\bno estoy interesad[oa]\b`),
		rule(CategoryModerateRejection, 2, `\bno,? gracias\b`),
		rule(CategoryModerateRejection, 2, `\bno (lo )?(necesito|quiero)(,|\.|!|$)`),
		rule(CategoryModerateRejection, 2, `\b(not interested|no thanks)\b`),

		rule(CategoryMildDisinterest, 1, `\b(tal vez|quizas|capaz) (despues|mas adelante|otro dia)\b`),
		rule(CategoryMildDisinterest, 1, `\b(lo (voy a )?pienso|lo pensare|lo voy a pensar|lo tengo que pensar)\b`),
		rule(CategoryMildDisinterest, 1, `\b(por )?ahora no(,|\.|!|$)`),
		rule(CategoryMildDisinterest, 1, `\bno estoy segur[oa]\b`),
		rule(CategoryMildDisinterest, 1, `\bsolo (estoy )?mirando\b`),
		rule(CategoryMildDisinterest, 1, `\b(maybe later|not sure|just looking)\b`),

		rule(CategoryFarewell, 1, `\b(adios|chau|chao|hasta luego|nos vemos|bye|goodbye)\b`),
	}
}

// Analyze returns the negativity signal carried by text.
func (d *Detector) Analyze(ctx context.Context, text string) Signal {
	_, span := tracer.Start(ctx, "sentiment.analyze")
	defer span.End()

	folded := Fold(text)
	if folded == "" {
		return Signal{}
	}

	var sig Signal
	for _, r := range d.rules {
		if r.Category == CategoryFarewell {
			if !sig.Farewell && r.Pattern.MatchString(folded) {
				sig.Farewell = true
				sig.Strength += r.Strength
				sig.Matched = append(sig.Matched, r.Pattern.FindString(folded))
			}
			continue
		}
		if sig.Category != CategoryNone {
			continue
		}
		if m := r.Pattern.FindString(folded); m != "" {
			sig.Category = r.Category
			sig.Strength += r.Strength
			sig.Matched = append(sig.Matched, m)
		}
	}

	span.SetAttributes(
		attribute.String("sentiment.category", string(sig.Category)),
		attribute.Bool("sentiment.farewell", sig.Farewell),
		attribute.Int("sentiment.strength", sig.Strength),
	)
	return sig
}

// Adjust applies the negativity override to the oracle score.
func (d *Detector) Adjust(ctx context.Context, text string, score int) int {
	return ApplySignal(d.Analyze(ctx, text), score)
}

// ApplySignal moves score according to the accumulated signal strength.
func ApplySignal(sig Signal, score int) int {
	score = clamp(score, 0, 100)
	switch {
	case sig.Strength >= 3:
		return clamp(score, 10, 15)
	case sig.Strength == 2:
		return clamp(score, 15, 20)
	case sig.Strength == 1:
		if score <= 10 {
			return score
		}
		step := int(math.Round(float64(score) * 0.10))
		if step < 5 {
			step = 5
		}
		if score-step < 10 {
			return 10
		}
		return score - step
	default:
		return score
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Fold lower-cases text and strips diacritics so "Adiós" matches "adios".
func Fold(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return ""
	}
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(folder, text)
	if err != nil {
		return text
	}
	return out
}
