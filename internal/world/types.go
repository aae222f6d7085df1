package world

import (
	"errors"
	"fmt"

	"storyforge.io/server/internal/validation"
)

var ErrInvalidContent = errors.New("generated content failed validation")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidContent, fmt.Sprintf(format, args...))
}

// checkContent runs the `validate` tags of a generated value.
func checkContent(v any) error {
	if err := validation.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return nil
}

// Setting is the genre-specific world setting. Every variant carries a name and description.
type Setting interface {
	Genre() Genre
	Basics() SettingBase
}

type SettingBase struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
}

func (b SettingBase) Basics() SettingBase { return b }

type PowerSystem struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Rules       []string `json:"rules" validate:"len=3"`
	Limitations []string `json:"limitations" validate:"len=3"`
	Abilities   []string `json:"abilities"`
}

type FantasySetting struct {
	SettingBase
	PowerSystems []PowerSystem `json:"power_systems" validate:"len=3,dive"`
}

func (FantasySetting) Genre() Genre { return Fantasy }

type RomanceSetting struct {
	SettingBase
	TimePeriod    string `json:"time_period" validate:"required"`
	Location      string `json:"location" validate:"required"`
	Tone          string `json:"tone" validate:"required"`
	SocietalNorms string `json:"societal_norms"`
}

func (RomanceSetting) Genre() Genre { return Romance }

type MysterySetting struct {
	SettingBase
	Type       string   `json:"type"`
	TimePeriod string   `json:"time_period"`
	Location   string   `json:"location"`
	Crime      string   `json:"crime" validate:"required"`
	Events     []string `json:"events" validate:"required,min=1"`
}

func (MysterySetting) Genre() Genre { return Mystery }

// Location is a genre-specific place inside a world. Romance worlds have none.
type Location interface {
	Basics() LocationBase
}

type LocationBase struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (b LocationBase) Basics() LocationBase { return b }

type FantasyLocation struct {
	LocationBase
	Type           string `json:"type"`
	GovernmentType string `json:"government_type"`
}

type MysteryLocation struct {
	LocationBase
	Type  string   `json:"type"`
	Clues []string `json:"clues" validate:"required,min=1"`
}

// Character is a genre-specific cast member.
type Character interface {
	Basics() CharacterBase
}

type CharacterBase struct {
	Name          string `json:"name" validate:"required"`
	Personality   string `json:"personality"`
	Backstory     string `json:"backstory"`
	Age           int    `json:"age" validate:"gte=0"`
	Appearance    string `json:"appearance"`
	Occupation    string `json:"occupation"`
	Race          string `json:"race"`
	Gender        string `json:"gender"`
	IsProtagonist bool   `json:"is_protagonist"`
}

func (b CharacterBase) Basics() CharacterBase { return b }

type FantasyCharacter struct {
	CharacterBase
	Abilities []string `json:"abilities"`
}

type RomanceCharacter struct {
	CharacterBase
	IsLoveInterest bool `json:"is_love_interest"`
}

type MysteryCharacter struct {
	CharacterBase
	Alibi              string   `json:"alibi"`
	Motive             string   `json:"motive"`
	ConnectionToVictim string   `json:"connection_to_victim"`
	Secrets            []string `json:"secrets"`
}
