package world

import "strings"

// Genre selects which variant shapes and prompt templates apply to a world.
type Genre string

const (
	Fantasy Genre = "Fantasy"
	Romance Genre = "Romance"
	Mystery Genre = "Mystery"
)

// Genres returns the closed set of supported genres in display order.
func Genres() []Genre {
	return []Genre{Fantasy, Romance, Mystery}
}

// LookupGenre matches tag case-insensitively and reports whether it names a
// supported genre.
func LookupGenre(tag string) (Genre, bool) {
	for _, g := range Genres() {
		if strings.EqualFold(strings.TrimSpace(tag), string(g)) {
			return g, true
		}
	}
	return Fantasy, false
}

// ParseGenre is LookupGenre with unknown tags resolved to Fantasy.
func ParseGenre(tag string) Genre {
	g, _ := LookupGenre(tag)
	return g
}

// Stage names one step of the world generation graph.
type Stage string

const (
	StageWorld      Stage = "world"
	StageLocations  Stage = "locations"
	StageCharacters Stage = "characters"
)
