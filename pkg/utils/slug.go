package utils

import (
	"github.com/gosimple/slug"
)

// NormalizeSlug creates a URL-friendly slug using the gosimple/slug library.
// Accented and non-Latin characters are transliterated.
func NormalizeSlug(text string) string {
	if text == "" {
		return ""
	}
	return slug.Make(text)
}

// NormalizeTag turns a free-form job tag into its canonical form, so that
// "Nightly Batch", "nightly-batch" and "NIGHTLY  batch" compare equal.
func NormalizeTag(tag string) string {
	return NormalizeSlug(tag)
}

// NormalizeTags normalizes every tag, dropping empties and duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// AnyTagMatches reports whether any of want appears in have. Both sides are
// normalized first; an empty want matches everything.
func AnyTagMatches(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range NormalizeTags(have) {
		set[h] = struct{}{}
	}
	for _, w := range NormalizeTags(want) {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
