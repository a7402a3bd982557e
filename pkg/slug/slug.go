// Package slug turns product names into URL path segments.
package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var spanish = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
	"ü", "u", "ñ", "n", "à", "a", "è", "e", "ç", "c",
)

// Generate lowercases name, transliterates Spanish accents and joins the
// remaining alphanumeric runs with single hyphens.
//
//	"Café de Origen Huila" -> "cafe-de-origen-huila"
//	"Piña  Colada!!"       -> "pina-colada"
func Generate(name string) string {
	s := spanish.Replace(strings.ToLower(strings.TrimSpace(name)))
	return strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-")
}
