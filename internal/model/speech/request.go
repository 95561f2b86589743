package speech

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`  // 声音标识，例如 en-US-AriaNeural
	Rate      string `json:"rate"`   // SSML 语速，例如 -10%
	Pitch     string `json:"pitch"`  // SSML 音调，例如 -10Hz
	Volume    string `json:"volume"` // SSML 音量，例如 +0%
	Format    string `json:"format"` // 输出格式，留空使用配置
}
