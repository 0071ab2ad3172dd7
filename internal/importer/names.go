package importer

import (
	"strings"

	"bookcircle/internal/catalog"
)

var particles = map[string]bool{"de": true, "du": true, "von": true, "di": true}

// NormalizeAuthor splits a display name into surname and given names.
// "Jane de Winter" becomes ("de Winter", "Jane"); a single token is kept
// whole as the surname.
func NormalizeAuthor(name string) catalog.Author {
	parts := strings.Fields(name)
	switch {
	case len(parts) == 0:
		return catalog.Author{}
	case len(parts) == 1:
		return catalog.Author{Last: parts[0]}
	case len(parts) == 2:
		return catalog.Author{Last: parts[1], First: parts[0]}
	case len(parts) == 3 && particles[strings.ToLower(parts[1])]:
		return catalog.Author{Last: parts[1] + " " + parts[2], First: parts[0]}
	default:
		last := len(parts) - 1
		return catalog.Author{Last: parts[last], First: strings.Join(parts[:last], " ")}
	}
}

// NormalizeAuthors normalizes names in order, skipping blank ones.
func NormalizeAuthors(names []string) catalog.Authors {
	authors := catalog.Authors{}
	for _, name := range names {
		if a := NormalizeAuthor(name); a.Last != "" {
			authors = append(authors, a)
		}
	}
	return authors
}
