package world

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func romanceWorld() *World {
	return &World{
		ID:    7,
		Genre: Romance,
		Setting: RomanceSetting{
			SettingBase: SettingBase{Name: "Bath", Description: "Regency spa town."},
			TimePeriod:  "1811",
			Location:    "Bath",
			Tone:        "Wistful",
		},
		Characters: []Character{
			RomanceCharacter{CharacterBase: CharacterBase{Name: "Anne", IsProtagonist: true}},
			RomanceCharacter{CharacterBase: CharacterBase{Name: "Frederick"}, IsLoveInterest: true},
		},
	}
}

func TestWorld_RomanceOmitsLocationsKey(t *testing.T) {
	w := romanceWorld()
	require.NoError(t, w.Validate())

	data, err := json.Marshal(w)
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &keys))
	assert.NotContains(t, keys, "locations")

	var decoded World
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded.Locations)
	assert.Equal(t, w.Setting, decoded.Setting)
	assert.Equal(t, w.Characters, decoded.Characters)
}

func TestWorld_DecodesGenreVariants(t *testing.T) {
	w := &World{
		Genre:   Fantasy,
		Setting: fantasySetting(),
		Locations: []Location{
			FantasyLocation{LocationBase: LocationBase{Name: "Skyreach"}, Type: "city", GovernmentType: "council"},
		},
	}
	for _, c := range fantasyCast(9) {
		w.Characters = append(w.Characters, c)
	}
	require.NoError(t, w.Validate())

	data, err := json.Marshal(w)
	require.NoError(t, err)

	var decoded World
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Locations, 1)
	loc, ok := decoded.Locations[0].(FantasyLocation)
	require.True(t, ok)
	assert.Equal(t, "council", loc.GovernmentType)
	_, ok = decoded.Characters[0].(FantasyCharacter)
	assert.True(t, ok)
}

func TestWorld_ValidateRejectsLocationsForRomance(t *testing.T) {
	w := romanceWorld()
	w.Locations = []Location{}
	assert.ErrorIs(t, w.Validate(), ErrInvalidContent)
}

func TestWorld_Summary(t *testing.T) {
	summary := romanceWorld().Summary()
	assert.Contains(t, summary, "Genre: Romance")
	assert.Contains(t, summary, "Protagonist: Anne")
	assert.Contains(t, summary, "Other characters: Frederick")
	assert.NotContains(t, summary, "Locations:")
}
