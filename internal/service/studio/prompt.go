package studio

import (
	"fmt"

	"github.com/zhouzirui/critter-studio/backend/internal/model/chat"
)

// personaAcknowledgment is replayed as the character's first turn on every chat call.
const personaAcknowledgment = "Pika! (I understand, I am ready to chat!)"

// voiceMessagePlaceholder stands in the transcript for a user turn sent as audio only.
const voiceMessagePlaceholder = "🎤 (voice message)"

// audioOnlyPrompt accompanies an audio-only user turn so the model knows to listen.
const audioOnlyPrompt = "(The trainer sent you a voice message. Listen and reply in character.)"

// buildPersonaInstruction 构建角色设定指令，随图片一起发送。
func buildPersonaInstruction(description string) string {
	return fmt.Sprintf(
		"You are a Pokemon. Your appearance is defined by the attached image. "+
			"Your description is: %s. "+
			"Adopt a persona based on your looks (e.g., if you look scary, be spooky; if cute, be playful). "+
			"Only answer as the Pokemon. Do not break character. Keep responses concise and fun.",
		description,
	)
}

// chatFailureContent is the character turn recorded when the chat collaborator fails.
func chatFailureContent(err error) string {
	return fmt.Sprintf("*(The Pokemon looks confused... Error: %v)*", err)
}

// Greeting is shown by the presentation layer while an active conversation has no turns yet.
func Greeting(s chat.Session) string {
	if s.Phase != chat.PhaseActive || len(s.Transcript) > 0 {
		return ""
	}
	return fmt.Sprintf("Go ahead, say hello to your new %s!", s.Description)
}

// ComposeConversation builds the chat collaborator input in its fixed order:
// persona instruction with the artifact, the acknowledgment, the prior transcript, then the new turn.
func ComposeConversation(s chat.Session, in chat.UserInput) []chat.Message {
	messages := make([]chat.Message, 0, len(s.Transcript)+3)

	persona := []chat.Part{chat.TextPart(buildPersonaInstruction(s.Description))}
	if s.Artifact != nil {
		persona = append(persona, chat.InlinePart(s.Artifact.Data, artifactMIME(s.Artifact)))
	}
	messages = append(messages,
		chat.Message{Role: chat.RoleUser, Parts: persona},
		chat.Message{Role: chat.RoleModel, Parts: []chat.Part{chat.TextPart(personaAcknowledgment)}},
	)

	for _, turn := range s.Transcript {
		role := chat.RoleUser
		if turn.Speaker == chat.SpeakerCharacter {
			role = chat.RoleModel
		}
		messages = append(messages, chat.Message{Role: role, Parts: []chat.Part{chat.TextPart(turn.Content)}})
	}

	return append(messages, chat.Message{Role: chat.RoleUser, Parts: userParts(in)})
}

func userParts(in chat.UserInput) []chat.Part {
	var parts []chat.Part
	hasAudio := in.Audio != nil && len(in.Audio.Data) > 0

	switch {
	case in.Text != "":
		parts = append(parts, chat.TextPart(in.Text))
	case hasAudio:
		parts = append(parts, chat.TextPart(audioOnlyPrompt))
	}
	if hasAudio {
		parts = append(parts, chat.InlinePart(in.Audio.Data, in.Audio.MIMEType))
	}
	return parts
}

func artifactMIME(a *chat.Artifact) string {
	if a.MIMEType == "" {
		return "image/png"
	}
	return a.MIMEType
}
