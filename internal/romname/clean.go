package romname

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Dump-naming artifact: three digits, four digits, then underscore/space/hyphen
// filler (e.g. "005 4426__Some_Game").
var reDumpPrefix = regexp.MustCompile(`^\d{3}\s*\d{4}[_\s-]*`)

// Tags that appear bare in dump names, without parentheses or brackets.
var reLooseTag = regexp.MustCompile(`(?i)\bNDSi\s+Enhanced\b`)

// Acronyms and platform codes that stay fully uppercase.
var forceUpper = map[string]struct{}{
	"LEGO": {}, "USA": {}, "EU": {}, "UK": {}, "DS": {},
	"III": {}, "II": {}, "I": {},
	"NES": {}, "SNES": {}, "GBA": {}, "GBC": {}, "PSP": {},
	"PS1": {}, "PS2": {}, "PS3": {}, "N64": {}, "GC": {},
}

// Stop words kept lowercase unless they open the title.
var forceLower = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {},
	"of": {}, "to": {}, "in": {}, "on": {},
}

var titleCaser = cases.Title(language.English)

// Clean rewrites a raw local filename into a presentable title, keeping the
// extension: dump-number prefixes stripped, underscores turned into spaces,
// parenthesized/bracketed tags removed, and casing lightly repaired. Remote
// titles are already clean, so running them through Clean is a near no-op;
// local filenames often are not, and the matcher's recall depends on both
// sides being cleaned before normalization.
func Clean(filename string) string {
	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)

	name = reDumpPrefix.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "_", " ")
	name = reParenTag.ReplaceAllString(name, " ")
	name = reBracketTag.ReplaceAllString(name, " ")
	name = reLooseTag.ReplaceAllString(name, " ")
	name = reMultiSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	words := strings.Fields(name)
	for i, w := range words {
		upper := strings.ToUpper(w)
		if _, ok := forceUpper[upper]; ok {
			words[i] = upper
			continue
		}
		if _, ok := forceLower[strings.ToLower(w)]; ok && i > 0 {
			words[i] = strings.ToLower(w)
			continue
		}
		// Long shouty words are usually mangled titles, not acronyms.
		if len(w) > 3 && isUpper(w) {
			words[i] = titleCaser.String(strings.ToLower(w))
		}
	}
	name = strings.Join(words, " ")
	name = strings.ReplaceAll(name, "111", "III")

	return name + ext
}

func isUpper(s string) bool {
	return s == strings.ToUpper(s) && s != strings.ToLower(s)
}
