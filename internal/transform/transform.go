package transform

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseKeyStyle maps a textual style to a KeyStyle. An empty string selects StyleDash.
func ParseKeyStyle(raw string) (KeyStyle, error) {
	switch KeyStyle(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StyleDash:
		return StyleDash, nil
	case StyleSnake:
		return StyleSnake, nil
	default:
		return "", fmt.Errorf("unknown key style %q", raw)
	}
}

// LeafName returns the final slash-delimited segment of name.
func LeafName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// RelativeName strips the "<parent>/variables/" prefix from name. A name
// under a different parent falls back to the text after its last
// "/variables/" segment; names without one are returned unchanged.
func RelativeName(name, parent string) string {
	if parent != "" {
		if rel, ok := strings.CutPrefix(name, parent+"/variables/"); ok {
			return rel
		}
	}
	if idx := strings.LastIndex(name, "/variables/"); idx >= 0 {
		return name[idx+len("/variables/"):]
	}
	return name
}

// Value returns the string value of raw. Text wins when non-empty; a variable
// carrying neither text nor value yields the empty string.
func Value(raw RawVariable) string {
	if raw.Text != "" {
		return raw.Text
	}
	return string(raw.Value)
}

// NormalizeKey converts a leaf name into an environment variable key. Every
// separator rune maps to exactly one underscore in both styles.
func NormalizeKey(leaf string, style KeyStyle) string {
	if style == StyleSnake {
		return strings.Join(splitWords(leaf), "_")
	}
	return strings.ReplaceAll(strings.ToUpper(leaf), "-", "_")
}

// Transform maps raw into its canonical form. The boolean is false when the
// leaf name normalizes to an empty key.
func Transform(raw RawVariable, style KeyStyle) (CanonicalVariable, bool) {
	key := NormalizeKey(LeafName(raw.Name), style)
	if key == "" {
		return CanonicalVariable{}, false
	}
	return CanonicalVariable{Key: key, Value: Value(raw)}, true
}

// splitWords breaks s into upper-cased words. Each rune that is neither a
// letter nor a digit ends a word, so adjacent, leading and trailing separators
// produce empty words. Within a run of letters and digits a lower-to-upper
// transition and the last capital of an acronym followed by a lower-case
// letter also split ("HTTPServer" -> HTTP, SERVER). Digits stay attached to the
// preceding word.
func splitWords(s string) []string {
	var words []string
	for {
		idx := strings.IndexFunc(s, isSeparator)
		if idx < 0 {
			return append(words, splitCase(s)...)
		}
		words = append(words, splitCase(s[:idx])...)
		_, size := utf8.DecodeRuneInString(s[idx:])
		s = s[idx+size:]
	}
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// splitCase splits a separator-free run on case boundaries. An empty run is a
// single empty word.
func splitCase(s string) []string {
	runes := []rune(s)
	words := []string{}
	start := 0
	for i := 1; i < len(runes); i++ {
		r, prev := runes[i], runes[i-1]
		if !unicode.IsUpper(r) {
			continue
		}
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if unicode.IsLower(prev) || (unicode.IsDigit(prev) || unicode.IsUpper(prev)) && nextLower {
			words = append(words, strings.ToUpper(string(runes[start:i])))
			start = i
		}
	}
	return append(words, strings.ToUpper(string(runes[start:])))
}
