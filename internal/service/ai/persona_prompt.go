package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/critter-studio/backend/internal/model/voice"
)

// BuildImagePrompt wraps a description in the fixed illustration style.
func BuildImagePrompt(description string) string {
	return fmt.Sprintf(
		"A concept art illustration of a new Pokemon. "+
			"Description: %s. "+
			"Style: Official Ken Sugimori art style, 2D vector, watercolor texture, "+
			"white background, creature design, anime style.",
		strings.TrimSpace(description),
	)
}

// buildClassifierInstruction 列出可选声音，要求模型只输出其中一个标识。
func buildClassifierInstruction() string {
	var builder strings.Builder
	builder.WriteString("You pick a text-to-speech voice for a newly designed creature. ")
	builder.WriteString("Choose the voice that best fits how the creature described by the user would sound.\n\n")
	builder.WriteString("Available voices:\n")
	for _, entry := range voice.Catalog() {
		builder.WriteString(fmt.Sprintf("- %s: %s\n", entry.Profile, entry.Description))
	}
	builder.WriteString("\nAnswer with exactly one voice identifier from the list and nothing else.")
	return builder.String()
}

// buildClassifierQuery 构建分类请求的用户消息。
func buildClassifierQuery(description string) string {
	return "Creature description: " + strings.TrimSpace(description)
}
