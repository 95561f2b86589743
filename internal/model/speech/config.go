package speech

import "time"

// SpeechConfig 语音合成服务配置
type SpeechConfig struct {
	Endpoint     string        `json:"endpoint"`     // Edge 朗读 WebSocket 地址
	ClientToken  string        `json:"-"`            // TrustedClientToken
	OutputFormat string        `json:"outputFormat"` // 例如 audio-24khz-48kbitrate-mono-mp3
	Volume       string        `json:"volume"`       // SSML 音量，例如 +0%
	Timeout      time.Duration `json:"timeout"`
}
