package core

import (
	"fmt"
	"strings"

	"storyforge.io/server/internal/store"
)

const (
	gameMasterSystemPrompt = "You are the game master of an interactive story. Narrate in second person to the player, " +
		"who controls the protagonist. Stay inside the world you are given and never mention that you are an AI. " +
		"Describe what happens and how other characters react, but never decide the protagonist's actions. " +
		"Keep each reply to at most three short paragraphs."

	introductionRequest = "Generate an introduction that sets the opening scene for the protagonist and ends by inviting the player to act."
)

func introductionPrompt(worldSummary string) string {
	return fmt.Sprintf("--- WORLD START ---\n%s\n--- WORLD END ---\n\n%s", worldSummary, introductionRequest)
}

// turnPrompt composes the single prompt for a chat turn. The short-term window
// and retrieved history are concatenated as-is; overlap between them is kept.
func turnPrompt(retrieved *RetrievedContext, recent []store.ChatMessage, content string) string {
	var sb strings.Builder
	if len(retrieved.Settings) > 0 {
		sb.WriteString("--- STORY SETTINGS ---\n")
		for _, s := range retrieved.Settings {
			sb.WriteString(s)
			sb.WriteString("\n\n")
		}
	}
	if len(retrieved.History) > 0 {
		sb.WriteString("--- RELEVANT EARLIER CONVERSATION ---\n")
		for _, h := range retrieved.History {
			sb.WriteString("- ")
			sb.WriteString(h)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if len(recent) > 0 {
		sb.WriteString("--- RECENT CONVERSATION ---\n")
		// recent is newest first; render it in reading order.
		for i := len(recent) - 1; i >= 0; i-- {
			fmt.Fprintf(&sb, "%s: %s\n", speaker(recent[i].Role), recent[i].Content)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("--- PLAYER ---\n")
	sb.WriteString(content)
	return sb.String()
}

func speaker(role store.Role) string {
	if role == store.RoleAI {
		return "Game master"
	}
	return "Player"
}
