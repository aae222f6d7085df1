package world

import "github.com/google/generative-ai-go/genai"

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func strList(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Description: desc, Items: &genai.Schema{Type: genai.TypeString}}
}

func object(desc string, props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Description: desc, Properties: props, Required: required}
}

func listOf(desc string, item *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Description: desc, Items: item}
}

// withBase returns props merged with the name/description pair shared by settings and locations.
func withBase(props map[string]*genai.Schema) map[string]*genai.Schema {
	out := map[string]*genai.Schema{
		"name":        str("Name"),
		"description": str("Short plain-text description, 3-5 sentences"),
	}
	for k, v := range props {
		out[k] = v
	}
	return out
}

func characterProps(extra map[string]*genai.Schema) map[string]*genai.Schema {
	out := map[string]*genai.Schema{
		"name":           str("Full name"),
		"personality":    str("Personality traits"),
		"backstory":      str("Backstory"),
		"age":            {Type: genai.TypeInteger, Description: "Age in years"},
		"appearance":     str("Physical appearance"),
		"occupation":     str("Occupation or role"),
		"race":           str("Race or species"),
		"gender":         str("Gender"),
		"is_protagonist": {Type: genai.TypeBoolean, Description: "True for exactly one character, the player's character"},
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var characterRequired = []string{"name", "personality", "backstory", "age", "appearance", "occupation", "race", "gender", "is_protagonist"}

var (
	powerSystemSchema = object("A system of magic or power", map[string]*genai.Schema{
		"name":        str("Name of the power system"),
		"description": str("How the power works"),
		"rules":       strList("Exactly 3 rules"),
		"limitations": strList("Exactly 3 limitations"),
		"abilities":   strList("Abilities it grants"),
	}, "name", "description", "rules", "limitations", "abilities")

	fantasyWorldSchema = object("A fantasy world setting", withBase(map[string]*genai.Schema{
		"power_systems": listOf("Exactly 3 power systems", powerSystemSchema),
	}), "name", "description", "power_systems")

	romanceWorldSchema = object("A romance world setting", withBase(map[string]*genai.Schema{
		"time_period":    str("Historical or fictional time period"),
		"location":       str("Where the story takes place"),
		"tone":           str("Overall tone of the romance"),
		"societal_norms": str("Social norms that shape relationships"),
	}), "name", "description", "time_period", "location", "tone", "societal_norms")

	mysteryWorldSchema = object("A mystery world setting", withBase(map[string]*genai.Schema{
		"type":        str("Kind of mystery, e.g. murder, heist"),
		"time_period": str("Time period"),
		"location":    str("Where the crime happened"),
		"crime":       str("The crime to be solved"),
		"events":      strList("Events leading up to and following the crime"),
	}), "name", "description", "type", "time_period", "location", "crime", "events")

	fantasyLocationsSchema = object("Locations in the world", map[string]*genai.Schema{
		"locations": listOf("Locations", object("A fantasy location", withBase(map[string]*genai.Schema{
			"type":            str("Kind of place, e.g. kingdom, city, forest"),
			"government_type": str("How the location is governed"),
		}), "name", "description", "type", "government_type")),
	}, "locations")

	mysteryLocationsSchema = object("Locations in the world", map[string]*genai.Schema{
		"locations": listOf("Locations", object("A mystery location", withBase(map[string]*genai.Schema{
			"type":  str("Kind of place"),
			"clues": strList("Clues or evidence left by the criminal or another suspect"),
		}), "name", "description", "type", "clues")),
	}, "locations")

	fantasyCharactersSchema = object("Cast of the world", map[string]*genai.Schema{
		"characters": listOf("Exactly 9 characters, exactly one protagonist", object("A fantasy character",
			characterProps(map[string]*genai.Schema{"abilities": strList("Abilities drawn from the world's power systems")}),
			append(characterRequired, "abilities")...)),
	}, "characters")

	romanceCharactersSchema = object("Cast of the world", map[string]*genai.Schema{
		"characters": listOf("Characters, exactly one protagonist", object("A romance character",
			characterProps(map[string]*genai.Schema{"is_love_interest": {Type: genai.TypeBoolean, Description: "True if a potential love interest"}}),
			append(characterRequired, "is_love_interest")...)),
	}, "characters")

	mysteryCharactersSchema = object("Cast of the world", map[string]*genai.Schema{
		"characters": listOf("Characters, exactly one protagonist who investigates", object("A mystery character",
			characterProps(map[string]*genai.Schema{
				"alibi":                str("Alibi for the time of the crime"),
				"motive":               str("Motive, if any"),
				"connection_to_victim": str("Connection to the victim"),
				"secrets":              strList("Secrets the character hides"),
			}),
			append(characterRequired, "alibi", "motive", "connection_to_victim", "secrets")...)),
	}, "characters")
)
