package world

import (
	"encoding/json"
	"fmt"
	"strings"
)

// World is the assembled output of a successful generation run. Locations is
// nil for genres without a locations stage and is omitted from JSON.
type World struct {
	ID         int64       `json:"id"`
	Genre      Genre       `json:"genre"`
	Setting    Setting     `json:"setting"`
	Locations  []Location  `json:"locations,omitempty"`
	Characters []Character `json:"characters"`
}

func (w *World) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         int64           `json:"id"`
		Genre      Genre           `json:"genre"`
		Setting    json.RawMessage `json:"setting"`
		Locations  json.RawMessage `json:"locations"`
		Characters json.RawMessage `json:"characters"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	genre := SchemaFor(raw.Genre).Genre

	setting, err := decodeSetting(genre, raw.Setting)
	if err != nil {
		return fmt.Errorf("decode setting: %w", err)
	}
	locations, err := decodeLocations(genre, raw.Locations)
	if err != nil {
		return fmt.Errorf("decode locations: %w", err)
	}
	characters, err := decodeCharacters(genre, raw.Characters)
	if err != nil {
		return fmt.Errorf("decode characters: %w", err)
	}

	*w = World{
		ID:         raw.ID,
		Genre:      genre,
		Setting:    setting,
		Locations:  locations,
		Characters: characters,
	}
	return nil
}

// Validate checks the structural invariants of an assembled world.
func (w *World) Validate() error {
	if w.Setting == nil {
		return invalid("world has no setting")
	}
	if w.Setting.Genre() != w.Genre {
		return invalid("setting genre %s does not match world genre %s", w.Setting.Genre(), w.Genre)
	}
	if err := checkContent(w.Setting); err != nil {
		return err
	}
	hasLocations := SchemaFor(w.Genre).HasLocations()
	if hasLocations && len(w.Locations) == 0 {
		return invalid("%s world has no locations", w.Genre)
	}
	if !hasLocations && w.Locations != nil {
		return invalid("%s world must not have locations", w.Genre)
	}
	for _, l := range w.Locations {
		if err := checkContent(l); err != nil {
			return err
		}
	}
	return validateCast(w.Genre, w.Characters)
}

func (w *World) Name() string {
	if w.Setting == nil {
		return ""
	}
	return w.Setting.Basics().Name
}

func (w *World) Protagonist() (CharacterBase, bool) {
	for _, c := range w.Characters {
		if b := c.Basics(); b.IsProtagonist {
			return b, true
		}
	}
	return CharacterBase{}, false
}

// Summary renders the fields a game master needs to open a session.
func (w *World) Summary() string {
	var sb strings.Builder
	base := w.Setting.Basics()
	fmt.Fprintf(&sb, "Genre: %s\nWorld: %s\n%s\n", w.Genre, base.Name, base.Description)

	switch s := w.Setting.(type) {
	case FantasySetting:
		for _, ps := range s.PowerSystems {
			fmt.Fprintf(&sb, "Power system %s: %s\n", ps.Name, ps.Description)
		}
	case RomanceSetting:
		fmt.Fprintf(&sb, "Time period: %s\nPlace: %s\nTone: %s\nSocietal norms: %s\n", s.TimePeriod, s.Location, s.Tone, s.SocietalNorms)
	case MysterySetting:
		fmt.Fprintf(&sb, "Mystery type: %s\nTime period: %s\nPlace: %s\nCrime: %s\n", s.Type, s.TimePeriod, s.Location, s.Crime)
	}

	if len(w.Locations) > 0 {
		names := make([]string, 0, len(w.Locations))
		for _, l := range w.Locations {
			names = append(names, l.Basics().Name)
		}
		fmt.Fprintf(&sb, "Locations: %s\n", strings.Join(names, ", "))
	}
	if p, ok := w.Protagonist(); ok {
		fmt.Fprintf(&sb, "Protagonist: %s, %s. %s\n", p.Name, p.Occupation, p.Personality)
	}
	others := make([]string, 0, len(w.Characters))
	for _, c := range w.Characters {
		if b := c.Basics(); !b.IsProtagonist {
			others = append(others, b.Name)
		}
	}
	if len(others) > 0 {
		fmt.Fprintf(&sb, "Other characters: %s\n", strings.Join(others, ", "))
	}
	return strings.TrimSpace(sb.String())
}
