package romname

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reTrailingExt = regexp.MustCompile(`\.[a-zA-Z0-9]{1,5}$`)
	reParenTag    = regexp.MustCompile(`\([^)]*\)`)
	reBracketTag  = regexp.MustCompile(`\[[^\]]*\]`)
	reNonAlnum    = regexp.MustCompile(`[^A-Za-z0-9 ]+`)
	reMultiSpace  = regexp.MustCompile(`\s+`)
)

// stripDiacritics removes combining marks after NFD decomposition.
func stripDiacritics(s string) string {
	decomp := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomp))
	for _, r := range decomp {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize reduces a raw filename or catalog title to its canonical
// comparison form: trailing extension stripped, parenthesized and bracketed
// tags removed, punctuation folded to spaces, lowercased, whitespace
// collapsed. Two names that denote the same title normalize identically;
// the mapping is not collision free and callers must not assume it is.
func Normalize(s string) string {
	// Trailing extension-like suffix (.nds, .7z, ...); no-op on plain titles.
	s = reTrailingExt.ReplaceAllString(s, "")

	// Region/language/version tags.
	s = reParenTag.ReplaceAllString(s, "")
	s = reBracketTag.ReplaceAllString(s, "")

	// Unicode normalization (NFKC) to fold width/compatibility forms,
	// then drop diacritics (é -> e, ō -> o) so the ASCII pass keeps them.
	s = norm.NFKC.String(s)
	s = stripDiacritics(s)

	s = reNonAlnum.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	s = reMultiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Key is the index/matching key for a raw local filename or remote title:
// cleanup first, then normalization, so both sides of a comparison pass
// through the same pipeline.
func Key(s string) string {
	return Normalize(Clean(s))
}
