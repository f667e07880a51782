package domain

import (
	"regexp"
	"strings"
)

const (
	minSlugLength = 3
	maxSlugLength = 63
	slugPadding   = "env"
)

var (
	slugExpr      = regexp.MustCompile(`[^a-z0-9-]+`)
	validSlugExpr = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)
)

// Slugify derives a lowercase, hyphenated slug of 3-63 characters from a name.
// Names that normalize to fewer than three characters are padded with "-env".
func Slugify(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	base = strings.ReplaceAll(base, "_", "-")
	base = slugExpr.ReplaceAllString(base, "-")
	for strings.Contains(base, "--") {
		base = strings.ReplaceAll(base, "--", "-")
	}
	base = strings.Trim(base, "-")
	if len(base) > maxSlugLength {
		base = strings.TrimRight(base[:maxSlugLength], "-")
	}
	switch {
	case base == "":
		return slugPadding
	case len(base) < minSlugLength:
		return base + "-" + slugPadding
	}
	return base
}

// ValidSlug reports whether s already satisfies the slug rules.
func ValidSlug(s string) bool {
	return validSlugExpr.MatchString(s)
}
