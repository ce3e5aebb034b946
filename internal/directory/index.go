package directory

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "the": true, "this": true,
	"to": true, "with": true,
}

// index maps a keyword to the keys of the forums that contain it.
type index map[string]map[string]struct{}

// keywords splits text into folded words with accents stripped and stop
// words dropped.
func keywords(text string) []string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), cases.Fold())
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = strings.ToLower(text)
	}
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func (ix index) add(k string, texts ...string) {
	for _, text := range texts {
		for _, w := range keywords(text) {
			set, ok := ix[w]
			if !ok {
				set = make(map[string]struct{})
				ix[w] = set
			}
			set[k] = struct{}{}
		}
	}
}

func (ix index) remove(k string) {
	for w, set := range ix {
		delete(set, k)
		if len(set) == 0 {
			delete(ix, w)
		}
	}
}

// search returns the keys matching every word of text, or nil when text
// has no searchable words.
func (ix index) search(text string) map[string]struct{} {
	words := keywords(text)
	if len(words) == 0 {
		return nil
	}
	var result map[string]struct{}
	for i, w := range words {
		matched := make(map[string]struct{})
		if i == len(words)-1 {
			for kw, set := range ix {
				if strings.HasPrefix(kw, w) {
					union(matched, set)
				}
			}
		} else {
			union(matched, ix[w])
		}
		if result == nil {
			result = matched
			continue
		}
		for k := range result {
			if _, ok := matched[k]; !ok {
				delete(result, k)
			}
		}
	}
	return result
}

func union(dst, src map[string]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}
