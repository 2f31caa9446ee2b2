package scaffold

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titler = cases.Title(language.English, cases.NoLower)

// ActionClassName derives the TypeScript class name for a generated
// action, e.g. ("StableBase", "openSafe") → "StableBaseOpenSafeAction".
func ActionClassName(contract, function string) string {
	return pascal(contract) + pascal(function) + "Action"
}

// ActionFileName derives the generated action file path relative to the
// harness root, e.g. "actions/stable_base_open_safe.ts".
func ActionFileName(contract, function string) string {
	return "actions/" + snake(contract) + "_" + snake(function) + ".ts"
}

// SnapshotFileName is the single generated snapshot provider file.
const SnapshotFileName = "snapshots/snapshot.ts"

// DeployScriptFileName is the generated deployment script file.
const DeployScriptFileName = "deploy/deploy.ts"

// ActorIdent derives a TypeScript identifier for an actor name, e.g.
// "Liquidity Provider" → "LiquidityProvider".
func ActorIdent(name string) string {
	return pascal(name)
}

func pascal(s string) string {
	words := splitWords(s)
	for i, w := range words {
		words[i] = titler.String(strings.ToLower(w))
	}
	return strings.Join(words, "")
}

func snake(s string) string {
	words := splitWords(s)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, "_")
}

// splitWords splits on delimiters and camelCase boundaries.
func splitWords(s string) []string {
	var words []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r):
			// Boundary before an upper rune following a lower rune or digit,
			// or starting a new word at the end of an acronym (HTTPServer).
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				flush()
			}
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
