package importer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDate      = regexp.MustCompile(`(\d{4})-\d{2}-\d{2}`)
	trailingYear = regexp.MustCompile(`(\d{4})$`)
)

var dateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"January 2006",
	"2006/01/02",
	"01/02/2006",
}

// PublicationYear extracts a four digit year from a free-form date. It
// returns "" when nothing matches.
func PublicationYear(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := isoDate.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := trailingYear.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return strconv.Itoa(t.Year())
		}
	}
	return ""
}
