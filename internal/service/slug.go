package service

import (
	"strings"
)

// Slugify normalizes a product name into its URL-safe form: lowercase,
// every run of non-alphanumeric characters collapsed into a single hyphen,
// no leading or trailing hyphen.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	return strings.TrimRight(b.String(), "-")
}

// slugBase is the starting candidate for slug assignment. Names with no
// alphanumeric characters slugify to the empty string, which would collide
// for every such product; those fall back to a generic token and let the
// probe loop disambiguate.
func slugBase(name string) string {
	if base := Slugify(name); base != "" {
		return base
	}

	return "product"
}
