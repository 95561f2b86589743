package chat

import (
	"fmt"

	"github.com/zhouzirui/critter-studio/backend/internal/model/chat"
	"github.com/zhouzirui/critter-studio/backend/internal/service/studio"
)

// sessionView 是会话对外展示的结构，二进制内容只给出下载地址。
type sessionView struct {
	ID            string     `json:"id"`
	Phase         chat.Phase `json:"phase"`
	Description   string     `json:"description,omitempty"`
	VoiceProfile  string     `json:"voiceProfile,omitempty"`
	HasArtifact   bool       `json:"hasArtifact"`
	ArtifactURL   string     `json:"artifactUrl,omitempty"`
	Transcript    []turnView `json:"transcript"`
	Greeting      string     `json:"greeting,omitempty"`
	SpeechEnabled bool       `json:"speechEnabled"`
}

type turnView struct {
	Index    int          `json:"index"`
	Speaker  chat.Speaker `json:"speaker"`
	Content  string       `json:"content"`
	HasAudio bool         `json:"hasAudio"`
	AudioURL string       `json:"audioUrl,omitempty"`
}

func newSessionView(id string, s chat.Session, speechEnabled bool) sessionView {
	view := sessionView{
		ID:            id,
		Phase:         s.Phase,
		Description:   s.Description,
		VoiceProfile:  string(s.VoiceProfile),
		HasArtifact:   s.Artifact != nil && len(s.Artifact.Data) > 0,
		Transcript:    make([]turnView, 0, len(s.Transcript)),
		Greeting:      studio.Greeting(s),
		SpeechEnabled: speechEnabled,
	}
	if view.HasArtifact {
		view.ArtifactURL = fmt.Sprintf("/api/sessions/%s/artifact", id)
	}

	for i, turn := range s.Transcript {
		tv := turnView{
			Index:    i,
			Speaker:  turn.Speaker,
			Content:  turn.Content,
			HasAudio: turn.Audio != nil && len(turn.Audio.Data) > 0,
		}
		if tv.HasAudio {
			tv.AudioURL = fmt.Sprintf("/api/sessions/%s/turns/%d/audio", id, i)
		}
		view.Transcript = append(view.Transcript, tv)
	}
	return view
}

// artifactFilename 下载文件名沿用 new_pokemon，扩展名随图片类型变化。
func artifactFilename(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "new_pokemon.jpg"
	case "image/webp":
		return "new_pokemon.webp"
	default:
		return "new_pokemon.png"
	}
}
