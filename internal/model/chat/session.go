package chat

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/critter-studio/backend/internal/model/voice"
)

// Phase 标识会话当前所处的阶段。
type Phase string

const (
	// PhaseEmpty 尚未生成角色图片。
	PhaseEmpty Phase = "empty"
	// PhaseDraft 图片已生成，等待用户确认。
	PhaseDraft Phase = "draft"
	// PhaseActive 已确认角色，进入对话模式。
	PhaseActive Phase = "active"
)

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerCharacter Speaker = "character"
)

// Artifact is the generated character image.
type Artifact struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// Audio is a fully buffered audio payload.
type Audio struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// Turn is one entry of the conversation transcript. Audio is only ever set on character turns.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Content string  `json:"content"`
	Audio   *Audio  `json:"audio,omitempty"`
}

// Session captures the state of one interactive run.
//
// Artifact and Description are both set in DRAFT and ACTIVE, VoiceProfile only in ACTIVE,
// and Transcript stays empty outside ACTIVE. The zero value is the initial EMPTY session.
type Session struct {
	Phase        Phase         `json:"phase"`
	Artifact     *Artifact     `json:"artifact,omitempty"`
	Description  string        `json:"description,omitempty"`
	VoiceProfile voice.Profile `json:"voiceProfile,omitempty"`
	Transcript   []Turn        `json:"transcript,omitempty"`
}

// NewSession returns the initial EMPTY session.
func NewSession() Session {
	return Session{Phase: PhaseEmpty}
}

// IsInitial reports whether s carries nothing beyond the initial EMPTY values.
func (s Session) IsInitial() bool {
	return s.Phase == PhaseEmpty &&
		s.Artifact == nil &&
		s.Description == "" &&
		s.VoiceProfile == "" &&
		len(s.Transcript) == 0
}

// Clone returns a copy whose transcript can be appended to without touching s.
func (s Session) Clone() Session {
	out := s
	if s.Transcript != nil {
		out.Transcript = make([]Turn, len(s.Transcript), len(s.Transcript)+2)
		copy(out.Transcript, s.Transcript)
	}
	return out
}

var errInvariant = errors.New("session invariant violated")

// Validate checks the phase-dependent presence rules of the session fields.
func (s Session) Validate() error {
	hasArtifact := s.Artifact != nil && len(s.Artifact.Data) > 0
	hasDescription := s.Description != ""

	if hasArtifact != hasDescription {
		return fmt.Errorf("%w: artifact present=%t but description present=%t", errInvariant, hasArtifact, hasDescription)
	}

	switch s.Phase {
	case PhaseEmpty:
		if hasArtifact {
			return fmt.Errorf("%w: artifact set in %s", errInvariant, s.Phase)
		}
	case PhaseDraft, PhaseActive:
		if !hasArtifact {
			return fmt.Errorf("%w: artifact missing in %s", errInvariant, s.Phase)
		}
	default:
		return fmt.Errorf("%w: unknown phase %q", errInvariant, s.Phase)
	}

	if (s.VoiceProfile != "") != (s.Phase == PhaseActive) {
		return fmt.Errorf("%w: voice profile %q in %s", errInvariant, s.VoiceProfile, s.Phase)
	}
	if s.Phase != PhaseActive && len(s.Transcript) > 0 {
		return fmt.Errorf("%w: transcript not empty in %s", errInvariant, s.Phase)
	}

	for i, turn := range s.Transcript {
		if turn.Speaker == SpeakerUser && turn.Audio != nil {
			return fmt.Errorf("%w: user turn %d carries audio", errInvariant, i)
		}
	}
	return nil
}
