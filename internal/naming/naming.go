// Package naming converts native identifiers into Go identifiers.
package naming

import (
	"go/token"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	title = cases.Title(language.English, cases.NoLower)
	lower = cases.Lower(language.English)
)

// Split breaks a native identifier into words on '_', '-', '.', ':' and spaces.
func Split(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ':' || unicode.IsSpace(r)
	})
}

// GoName converts a snake_case or kebab-case identifier into a Go
// identifier: "g_strsplit" becomes "GStrsplit" when exported and
// "gStrsplit" otherwise. Unexported results that collide with a Go keyword
// get a trailing underscore.
func GoName(s string, exported bool) string {
	words := Split(s)
	if len(words) == 0 {
		return "_"
	}
	var b strings.Builder
	for i, w := range words {
		if i == 0 && !exported {
			b.WriteString(lower.String(w))
			continue
		}
		b.WriteString(title.String(w))
	}
	name := b.String()
	if r := []rune(name)[0]; unicode.IsDigit(r) {
		name = "_" + name
	}
	if token.IsKeyword(name) || predeclared[name] {
		name += "_"
	}
	return name
}

// predeclared identifiers that generated locals must not shadow.
var predeclared = map[string]bool{
	"len": true, "cap": true, "new": true, "make": true, "error": true,
	"string": true, "copy": true, "append": true, "nil": true, "true": true, "false": true,
}
