package conversation

import (
	"regexp"
	"strings"
)

var vendorFirstNames = []string{
	"Manuel", "Juan", "Carlos", "Pedro", "Luis", "Diego", "Andrés", "Sergio", "Miguel",
	"Roberto", "Fernando", "Ricardo", "Daniel", "Alejandro", "Javier", "Francisco",
	"Antonio", "José", "David", "Pablo", "María", "Ana", "Laura", "Carmen", "Sofía",
	"Elena", "Isabel", "Patricia", "Mónica", "Claudia", "Andrea", "Natalia", "Valentina",
	"Camila", "Gabriela", "Lucía", "Martina", "Emma", "Olivia", "Sara", "Julia",
	"Gonzalo", "Matías", "Nicolás", "Facundo", "Agustín", "Tomás", "Santiago", "Benjamín",
	"Martín", "Ignacio", "Joaquín", "Sebastián", "Emiliano", "Thiago", "Dante", "Bautista",
}

var (
	vendorNameAlt = func() string {
		quoted := make([]string, len(vendorFirstNames))
		for i, n := range vendorFirstNames {
			quoted[i] = regexp.QuoteMeta(n)
		}
		return strings.Join(quoted, "|")
	}()
	// RE2's \b is ASCII-only, so letter boundaries are spelled out for accented names.
	vendorNamePattern  = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(` + vendorNameAlt + `)(?:[^\p{L}]|$)`)
	vendorIntroPattern = regexp.MustCompile(`(?i)(?:soy|me llamo|contactar con|hablar con|llamar a|escribir a)\s+(` + vendorNameAlt + `)(?:[^\p{L}]|$)`)
)

// ExtractVendorName finds the human contact person named in a bot persona.
// A name introduced by "soy", "me llamo", "hablar con" and similar cues wins;
// otherwise the first known name is used. Empty when none is found.
func ExtractVendorName(persona string) string {
	if strings.TrimSpace(persona) == "" {
		return ""
	}
	if m := vendorIntroPattern.FindStringSubmatch(persona); m != nil {
		return canonicalVendorName(m[1])
	}
	if m := vendorNamePattern.FindStringSubmatch(persona); m != nil {
		return canonicalVendorName(m[1])
	}
	return ""
}

func canonicalVendorName(found string) string {
	for _, n := range vendorFirstNames {
		if strings.EqualFold(n, found) {
			return n
		}
	}
	return found
}
