package scrape

import (
	"regexp"
	"strings"
)

// Layout identifies which generation of the course profile site holds an
// offering's assessment table.
type Layout int

const (
	// LayoutLegacy is the archived report page: a flat run of centred cells,
	// four per assessment row.
	LayoutLegacy Layout = iota
	// LayoutModern is the current profile page with a headed assessment table.
	LayoutModern
)

// Offerings before Semester 2 2023 were published on the legacy site.
const (
	cutoverYear     = 2023
	cutoverSemester = 2
)

var (
	legacySection = regexp.MustCompile(`^\d+$`)
	modernSection = regexp.MustCompile(`^([A-Z]{4}\d{4})-\d+-\d+$`)
)

// LayoutFor returns the page layout used by the given offering.
func LayoutFor(year, semester int) Layout {
	if year < cutoverYear || (year == cutoverYear && semester < cutoverSemester) {
		return LayoutLegacy
	}
	return LayoutModern
}

func (l Layout) String() string {
	if l == LayoutLegacy {
		return "legacy"
	}
	return "modern"
}

// accepts reports whether section has the identifier shape this layout
// uses. Modern identifiers embed the course code, which must match code.
func (l Layout) accepts(section, code string) bool {
	switch l {
	case LayoutLegacy:
		return legacySection.MatchString(section)
	default:
		m := modernSection.FindStringSubmatch(strings.ToUpper(section))
		return m != nil && m[1] == code
	}
}
