package studio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/critter-studio/backend/internal/model/chat"
	"github.com/zhouzirui/critter-studio/backend/internal/model/speech"
	"github.com/zhouzirui/critter-studio/backend/internal/model/voice"
)

// ImageGenerator turns a description into a character image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, description string) (*chat.Artifact, error)
}

// VoiceClassifier picks a voice identifier for a description. The answer is validated by the machine.
type VoiceClassifier interface {
	ClassifyVoice(ctx context.Context, description string) (string, error)
}

// Chatter produces the character's reply to a composed conversation.
type Chatter interface {
	Reply(ctx context.Context, messages []chat.Message) (string, error)
}

// Synthesizer renders reply text to a fully buffered audio payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Collaborators groups the external services the machine drives. Speech may be nil.
type Collaborators struct {
	Images ImageGenerator
	Voices VoiceClassifier
	Chat   Chatter
	Speech Synthesizer
}

// Machine applies session transitions. It holds no session state of its own;
// every transition takes the current Session and returns the next one.
type Machine struct {
	images ImageGenerator
	voices VoiceClassifier
	chat   Chatter
	speech Synthesizer
}

// NewMachine wires the collaborators into a state machine.
func NewMachine(c Collaborators) *Machine {
	return &Machine{
		images: c.Images,
		voices: c.Voices,
		chat:   c.Chat,
		speech: c.Speech,
	}
}

// SpeechEnabled reports whether character replies are voiced.
func (m *Machine) SpeechEnabled() bool {
	return m.speech != nil
}

// Submit generates the first artifact for a description: EMPTY -> DRAFT.
func (m *Machine) Submit(ctx context.Context, s chat.Session, description string) (chat.Session, error) {
	if s.Phase != chat.PhaseEmpty {
		return s, illegal("submit", s.Phase)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return s, ErrEmptyInput
	}

	artifact, err := m.generate(ctx, description)
	if err != nil {
		return s, err
	}

	next := chat.NewSession()
	next.Phase = chat.PhaseDraft
	next.Artifact = artifact
	next.Description = description
	return next, nil
}

// Regenerate replaces the draft artifact using a revised description: DRAFT -> DRAFT.
func (m *Machine) Regenerate(ctx context.Context, s chat.Session, description string) (chat.Session, error) {
	if s.Phase != chat.PhaseDraft {
		return s, illegal("regenerate", s.Phase)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return s, ErrEmptyInput
	}

	artifact, err := m.generate(ctx, description)
	if err != nil {
		return s, err
	}

	next := s.Clone()
	next.Artifact = artifact
	next.Description = description
	return next, nil
}

// Accept approves the draft and fixes the voice profile: DRAFT -> ACTIVE.
// Classifier failures and unknown answers both fall back to voice.Default.
func (m *Machine) Accept(ctx context.Context, s chat.Session) (chat.Session, error) {
	if s.Phase != chat.PhaseDraft {
		return s, illegal("accept", s.Phase)
	}

	next := s.Clone()
	next.Phase = chat.PhaseActive
	next.VoiceProfile = m.classify(ctx, s.Description)
	next.Transcript = nil
	return next, nil
}

// Send runs one conversational turn: ACTIVE -> ACTIVE.
//
// A chat failure still records the user turn and an error turn, and the error is returned
// alongside the updated session. A speech failure only drops the audio of the reply.
func (m *Machine) Send(ctx context.Context, s chat.Session, in chat.UserInput) (chat.Session, error) {
	if s.Phase != chat.PhaseActive {
		return s, illegal("send", s.Phase)
	}
	if in.IsEmpty() {
		return s, ErrEmptyInput
	}
	in.Text = strings.TrimSpace(in.Text)

	messages := ComposeConversation(s, in)

	next := s.Clone()
	next.Transcript = append(next.Transcript, chat.Turn{
		Speaker: chat.SpeakerUser,
		Content: userTurnContent(in),
	})

	reply, err := m.reply(ctx, messages)
	if err != nil {
		log.Printf("[studio] chat turn failed: %v", err)
		next.Transcript = append(next.Transcript, chat.Turn{
			Speaker: chat.SpeakerCharacter,
			Content: chatFailureContent(err),
		})
		return next, collaboratorError("chat", err)
	}

	next.Transcript = append(next.Transcript, chat.Turn{
		Speaker: chat.SpeakerCharacter,
		Content: reply,
		Audio:   m.speak(ctx, s.VoiceProfile, reply),
	})
	return next, nil
}

// Reset discards everything and returns the initial session. It is accepted from every phase.
func (m *Machine) Reset(_ chat.Session) chat.Session {
	return chat.NewSession()
}

func (m *Machine) generate(ctx context.Context, description string) (*chat.Artifact, error) {
	if m.images == nil {
		return nil, collaboratorError("image generation", errors.New("image generator not configured"))
	}

	artifact, err := m.images.GenerateImage(ctx, description)
	if err != nil {
		return nil, collaboratorError("image generation", err)
	}
	if artifact == nil || len(artifact.Data) == 0 {
		return nil, collaboratorError("image generation", errors.New("no image returned"))
	}

	if artifact.MIMEType == "" {
		artifact.MIMEType = "image/png"
	}
	return artifact, nil
}

func (m *Machine) classify(ctx context.Context, description string) voice.Profile {
	if m.voices == nil {
		return voice.Default
	}

	raw, err := m.voices.ClassifyVoice(ctx, description)
	if err != nil {
		log.Printf("[studio] voice classification failed, using %s: %v", voice.Default, err)
		return voice.Default
	}

	profile, ok := voice.Parse(raw)
	if !ok {
		log.Printf("[studio] classifier answered unknown voice %q, using %s", raw, voice.Default)
		return voice.Default
	}
	return profile
}

func (m *Machine) reply(ctx context.Context, messages []chat.Message) (string, error) {
	if m.chat == nil {
		return "", errors.New("chat collaborator not configured")
	}

	reply, err := m.chat.Reply(ctx, messages)
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errors.New("empty reply")
	}
	return reply, nil
}

func (m *Machine) speak(ctx context.Context, profile voice.Profile, text string) *chat.Audio {
	if m.speech == nil {
		return nil
	}

	prosody := profile.Prosody()
	resp, err := m.speech.Synthesize(ctx, &speech.TTSRequest{
		Text:  speechText(text),
		Voice: string(profile),
		Rate:  prosody.Rate,
		Pitch: prosody.Pitch,
	})
	if err != nil {
		log.Printf("[studio] speech synthesis failed, reply kept without audio: %v", err)
		return nil
	}
	if resp == nil || len(resp.AudioData) == 0 {
		return nil
	}

	mimeType := resp.MIMEType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return &chat.Audio{Data: resp.AudioData, MIMEType: mimeType}
}

func userTurnContent(in chat.UserInput) string {
	if in.Text != "" {
		return in.Text
	}
	return voiceMessagePlaceholder
}

// speechText drops markdown emphasis so it is not read aloud.
func speechText(text string) string {
	replacer := strings.NewReplacer("*", "", "_", " ", "`", "")
	return strings.TrimSpace(replacer.Replace(text))
}

func illegal(trigger string, phase chat.Phase) error {
	return fmt.Errorf("%w: %s in %s", ErrIllegalTransition, trigger, phase)
}
