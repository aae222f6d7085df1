package world

import "text/template"

// PromptVars are the template variables available to every stage prompt.
type PromptVars struct {
	Genre         Genre
	Prompt        string
	WorldData     string
	LocationsData string
}

const systemPromptText = `Your job is to help create interesting {{.Genre}} worlds that
players would love to play in.
Instructions:
- Only generate in plain text without formatting.
- Use simple clear language without being flowery.
- You must stay below 3-5 sentences for each description.`

const worldPromptText = `Generate a creative description for a unique {{.Genre}} world based on this prompt: {{.Prompt}}`

const fantasyWorldPromptText = worldPromptText + `
The world must have exactly 3 power systems, each with exactly 3 rules and exactly 3 limitations.`

const fantasyLocationPromptText = `Create 3 different locations for a fantasy world.
For each location generate a description based on the world it's in.
Describe important leaders, cultures, history of the location.
If a location is low in the hierarchy, like a city, ensure its country or state is also generated.
For a location high in the hierarchy you may generate between 1-3 additional lower hierarchy locations.
world data: {{.WorldData}}`

const mysteryLocationPromptText = `Create 3 different locations for a mystery world.
For each location generate a description based on the world it's in.
For each location generate a list of clues or evidence left by either the criminal or another suspect.
world data: {{.WorldData}}`

const fantasyCharacterPromptText = `Create exactly 9 characters for a fantasy world.
Exactly one of them is the protagonist the player controls.
Give each character abilities that follow the rules and limitations of the world's power systems.
world data: {{.WorldData}}
{{- if .LocationsData}}
locations data: {{.LocationsData}}{{end}}`

const romanceCharacterPromptText = `Create between 4 and 6 characters for a romance world.
Exactly one of them is the protagonist the player controls and at least one is a love interest.
Their backstories must fit the time period and societal norms of the world.
world data: {{.WorldData}}`

const mysteryCharacterPromptText = `Create between 5 and 8 characters for a mystery world.
Exactly one of them is the protagonist who investigates the crime.
The others are suspects or witnesses; every suspect needs an alibi and a motive.
world data: {{.WorldData}}
{{- if .LocationsData}}
locations data: {{.LocationsData}}{{end}}`

// Prompts holds the parsed templates for one genre. Location is nil when the
// genre has no locations stage.
type Prompts struct {
	System    *template.Template
	World     *template.Template
	Location  *template.Template
	Character *template.Template
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

var systemTemplate = mustParse("system", systemPromptText)
