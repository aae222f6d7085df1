package world

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
)

// Schema describes everything the generation pipeline needs for one genre.
// Location is nil for genres that never produce locations; callers must skip
// the locations stage entirely in that case.
type Schema struct {
	Genre     Genre
	World     *genai.Schema
	Location  *genai.Schema
	Character *genai.Schema
	Prompts   Prompts
}

var registry = map[Genre]Schema{
	Fantasy: {
		Genre:     Fantasy,
		World:     fantasyWorldSchema,
		Location:  fantasyLocationsSchema,
		Character: fantasyCharactersSchema,
		Prompts: Prompts{
			System:    systemTemplate,
			World:     mustParse("fantasy_world", fantasyWorldPromptText),
			Location:  mustParse("fantasy_locations", fantasyLocationPromptText),
			Character: mustParse("fantasy_characters", fantasyCharacterPromptText),
		},
	},
	Romance: {
		Genre:     Romance,
		World:     romanceWorldSchema,
		Character: romanceCharactersSchema,
		Prompts: Prompts{
			System:    systemTemplate,
			World:     mustParse("romance_world", worldPromptText),
			Character: mustParse("romance_characters", romanceCharacterPromptText),
		},
	},
	Mystery: {
		Genre:     Mystery,
		World:     mysteryWorldSchema,
		Location:  mysteryLocationsSchema,
		Character: mysteryCharactersSchema,
		Prompts: Prompts{
			System:    systemTemplate,
			World:     mustParse("mystery_world", worldPromptText),
			Location:  mustParse("mystery_locations", mysteryLocationPromptText),
			Character: mustParse("mystery_characters", mysteryCharacterPromptText),
		},
	},
}

// SchemaFor returns the schema set for g. Unknown genres get Fantasy's.
func SchemaFor(g Genre) Schema {
	if s, ok := registry[g]; ok {
		return s
	}
	return registry[Fantasy]
}

func (s Schema) HasLocations() bool {
	return s.Location != nil
}

// Render executes the prompt template for the given stage.
func (s Schema) Render(stage Stage, vars PromptVars) (string, error) {
	var tmpl *template.Template
	switch stage {
	case StageWorld:
		tmpl = s.Prompts.World
	case StageLocations:
		tmpl = s.Prompts.Location
	case StageCharacters:
		tmpl = s.Prompts.Character
	}
	if tmpl == nil {
		return "", fmt.Errorf("genre %s has no %s prompt", s.Genre, stage)
	}
	return execute(tmpl, vars)
}

func (s Schema) SystemPrompt() (string, error) {
	return execute(s.Prompts.System, PromptVars{Genre: s.Genre})
}

func execute(tmpl *template.Template, vars PromptVars) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ParseSetting decodes structured output of the world stage and validates it.
func (s Schema) ParseSetting(data []byte) (Setting, error) {
	setting, err := decodeSetting(s.Genre, data)
	if err != nil {
		return nil, err
	}
	if err := checkContent(setting); err != nil {
		return nil, err
	}
	return setting, nil
}

// ParseLocations decodes the locations stage output. An empty list is invalid.
func (s Schema) ParseLocations(data []byte) ([]Location, error) {
	if !s.HasLocations() {
		return nil, fmt.Errorf("genre %s does not produce locations", s.Genre)
	}
	var envelope struct {
		Locations json.RawMessage `json:"locations"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	locations, err := decodeLocations(s.Genre, envelope.Locations)
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, invalid("no locations generated")
	}
	for _, l := range locations {
		if err := checkContent(l); err != nil {
			return nil, err
		}
	}
	return locations, nil
}

// ParseCharacters decodes the characters stage output and applies the genre's cast rules.
func (s Schema) ParseCharacters(data []byte) ([]Character, error) {
	var envelope struct {
		Characters json.RawMessage `json:"characters"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	characters, err := decodeCharacters(s.Genre, envelope.Characters)
	if err != nil {
		return nil, err
	}
	if err := validateCast(s.Genre, characters); err != nil {
		return nil, err
	}
	return characters, nil
}

const fantasyCastSize = 9

// validateCast checks each character's fields and the rules that span the
// whole cast. Fantasy casts have a fixed size and exactly one protagonist;
// Mystery casts need a suspect carrying both a motive and an alibi.
func validateCast(g Genre, characters []Character) error {
	if len(characters) == 0 {
		return invalid("no characters generated")
	}
	protagonists := 0
	for _, c := range characters {
		if err := checkContent(c); err != nil {
			return err
		}
		if c.Basics().IsProtagonist {
			protagonists++
		}
	}

	switch g {
	case Fantasy:
		if len(characters) != fantasyCastSize {
			return invalid("expected %d characters, got %d", fantasyCastSize, len(characters))
		}
		if protagonists != 1 {
			return invalid("expected exactly one protagonist, got %d", protagonists)
		}
	case Mystery:
		for _, c := range characters {
			if mc, ok := c.(MysteryCharacter); ok && mc.Motive != "" && mc.Alibi != "" {
				return nil
			}
		}
		return invalid("no suspect with both motive and alibi")
	}
	return nil
}

func decodeSetting(g Genre, data []byte) (Setting, error) {
	var (
		setting Setting
		err     error
	)
	switch g {
	case Romance:
		var v RomanceSetting
		err = json.Unmarshal(data, &v)
		setting = v
	case Mystery:
		var v MysterySetting
		err = json.Unmarshal(data, &v)
		setting = v
	default:
		var v FantasySetting
		err = json.Unmarshal(data, &v)
		setting = v
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return setting, nil
}

func decodeLocations(g Genre, data []byte) ([]Location, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var out []Location
	switch g {
	case Mystery:
		var v []MysteryLocation
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
		for _, l := range v {
			out = append(out, l)
		}
	case Romance:
		return nil, fmt.Errorf("%w: romance worlds have no locations", ErrInvalidContent)
	default:
		var v []FantasyLocation
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
		for _, l := range v {
			out = append(out, l)
		}
	}
	return out, nil
}

func decodeCharacters(g Genre, data []byte) ([]Character, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var out []Character
	var err error
	switch g {
	case Romance:
		var v []RomanceCharacter
		err = json.Unmarshal(data, &v)
		for _, c := range v {
			out = append(out, c)
		}
	case Mystery:
		var v []MysteryCharacter
		err = json.Unmarshal(data, &v)
		for _, c := range v {
			out = append(out, c)
		}
	default:
		var v []FantasyCharacter
		err = json.Unmarshal(data, &v)
		for _, c := range v {
			out = append(out, c)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return out, nil
}
