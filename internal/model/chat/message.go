package chat

import "strings"

// Role tags a prompt message for the chat collaborator.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one piece of a prompt message: text, or inline binary data with its MIME type.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// IsInline reports whether the part carries binary data rather than text.
func (p Part) IsInline() bool {
	return len(p.Data) > 0
}

// IsImage reports whether the part is an inline image.
func (p Part) IsImage() bool {
	return p.IsInline() && strings.HasPrefix(p.MIMEType, "image/")
}

// IsAudio reports whether the part is an inline audio clip.
func (p Part) IsAudio() bool {
	return p.IsInline() && strings.HasPrefix(p.MIMEType, "audio/")
}

// Message is a provider-neutral chat turn sent to the chat collaborator.
type Message struct {
	Role  Role
	Parts []Part
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// InlinePart builds a binary part.
func InlinePart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// UserInput is what the user submits for one conversational turn.
type UserInput struct {
	Text  string
	Audio *Audio
}

// IsEmpty reports whether the input carries neither text nor audio.
func (in UserInput) IsEmpty() bool {
	return strings.TrimSpace(in.Text) == "" && (in.Audio == nil || len(in.Audio.Data) == 0)
}
