package oov

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxKeyLengthForStem is the longest key that is stemmed.
const MaxKeyLengthForStem = 150

// Shrink2 collapses runs of three or more identical characters to two.
// Runs of '<' are kept.
func Shrink2(s string) string { return shrink(s, 2) }

// Shrink1 collapses runs of identical characters to one. Runs of '<' are kept.
func Shrink1(s string) string { return shrink(s, 1) }

func shrink(s string, keep int) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	run := 0
	for i, r := range s {
		if i > 0 && r == prev && r != '<' {
			run++
		} else {
			run = 1
		}
		prev = r
		if run <= keep {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CharNgrams returns all character n-grams of s for n in [beg, end], shorter
// n first, each in order of position.
func CharNgrams(s string, beg, end int) []string {
	runes := []rune(s)
	top := min(len(runes), end)
	var out []string
	for n := max(beg, 1); n <= top; n++ {
		for i := 0; i+n <= len(runes); i++ {
			out = append(out, string(runes[i:i+n]))
		}
	}
	return out
}

var englishPrefixes = affixes([]string{
	"counter", "electro", "circum", "contra", "contro", "crypto", "deuter",
	"franco", "hetero", "megalo", "preter", "pseudo", "after", "under",
	"amphi", "anglo", "astro", "extra", "hydro", "hyper", "infra", "inter",
	"intra", "micro", "multi", "ortho", "paleo", "photo", "proto", "quasi",
	"retro", "socio", "super", "supra", "trans", "ultra", "anti", "back",
	"down", "fore", "hind", "midi", "mini", "over", "post", "self", "step",
	"with", "afro", "ambi", "ante", "arch", "auto", "cryo", "demi", "demo",
	"euro", "gyro", "hemi", "homo", "hypo", "ideo", "idio", "indo", "macr",
	"maxi", "mega", "meta", "mono", "mult", "omni", "para", "peri", "pleo",
	"poly", "pros", "pyro", "semi", "tele", "vice", "dis", "mid", "mis",
	"off", "out", "pre", "pro", "twi", "ana", "apo", "bio", "cis", "con",
	"com", "col", "cor", "dia", "dif", "duo", "eco", "epi", "geo", "im ",
	"iso", "mal", "mon", "neo", "non", "pan", "ped", "per", "pod", "sub",
	"sup", "sur", "syn", "syl", "sym", "tri", "uni", "be", "by", "co", "de",
	"en", "em", "ex", "on", "re", "un", "up", "an", "ap", "bi", "di", "du",
	"el", "ep", "in", "il", "ir", "sy", "a",
}, func(p string) string { return p + "-" })

var englishSuffixes = affixes([]string{
	"ification", "ologist", "ology", "able", "ible", "hood", "ness", "less",
	"ment", "tion", "logy", "like", "ise", "ize", "ful", "ess", "ism", "ist",
	"ish", "ity", "ant", "oid", "ory", "ing", "fy", "ly", "al",
}, func(s string) string { return "-" + s })

// affixes adds the hyphenated variant of every affix and orders the list by
// length, longest first.
func affixes(list []string, hyphenate func(string) string) [][]rune {
	out := make([][]rune, 0, 2*len(list))
	for _, a := range list {
		out = append(out, []rune(hyphenate(a)), []rune(a))
	}
	slices.SortStableFunc(out, func(a, b []rune) int { return cmp.Compare(len(b), len(a)) })
	return out
}

// Stem strips recognized prefixes and suffixes of the given language. Only
// English is supported; other languages and overly long keys are returned
// unchanged.
func Stem(key, language string) string {
	if language != "en" || utf8.RuneCountInString(key) > MaxKeyLengthForStem {
		return key
	}
	return stemEnglish([]rune(key))
}

func stemEnglish(key []rune) string {
	lower := make([]rune, len(key))
	for i, r := range key {
		lower[i] = unicode.ToLower(r)
	}

	start, end := 0, 0
	for _, p := range englishPrefixes {
		if hasRunePrefix(lower, p) {
			start = len(p)
			break
		}
	}
	for _, s := range englishSuffixes {
		if hasRuneSuffix(lower, s) {
			end = len(s)
			break
		}
	}
	// Only the longer of the two matches is stripped; a tie strips both.
	if start < end {
		start = 0
	} else if end < start {
		end = 0
	}

	if start > len(key)-end {
		return string(key)
	}
	stripped := key[start : len(key)-end]
	switch {
	case len(stripped) < 4:
		return string(key)
	case len(stripped) != len(key):
		return stemEnglish(stripped)
	default:
		return string(stripped)
	}
}

func hasRunePrefix(s, p []rune) bool {
	return len(s) >= len(p) && slices.Equal(s[:len(p)], p)
}

func hasRuneSuffix(s, p []rune) bool {
	return len(s) >= len(p) && slices.Equal(s[len(s)-len(p):], p)
}
