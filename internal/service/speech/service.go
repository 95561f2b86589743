package speech

import (
	"context"
	"fmt"

	"github.com/zhouzirui/critter-studio/backend/internal/model/speech"
	"github.com/zhouzirui/critter-studio/backend/internal/model/voice"
)

// Service 语音服务核心业务逻辑
type Service struct {
	config    *speech.SpeechConfig
	ttsClient *EdgeTTSClient
}

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig) (*Service, error) {
	client, err := NewEdgeTTSClient(config, DefaultConnectionOptions())
	if err != nil {
		return nil, err
	}

	return &Service{
		config:    config,
		ttsClient: client,
	}, nil
}

// Synthesize 文字转语音，音频完整缓冲后返回。
func (s *Service) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("TTS request is nil")
	}
	return s.ttsClient.SynthesizeSpeechWS(ctx, req)
}

// SynthesizeWithProfile 使用声音档案自带的语速与音调合成文本。
func (s *Service) SynthesizeWithProfile(ctx context.Context, sessionID, text string, profile voice.Profile) (*speech.TTSResponse, error) {
	if !profile.Valid() {
		return nil, fmt.Errorf("unknown voice profile %q", profile)
	}

	prosody := profile.Prosody()
	return s.Synthesize(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     string(profile),
		Rate:      prosody.Rate,
		Pitch:     prosody.Pitch,
	})
}
