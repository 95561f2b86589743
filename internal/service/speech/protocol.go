package speech

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Path 取值，标识每个帧的用途。
const (
	PathSpeechConfig  = "speech.config"
	PathSSML          = "ssml"
	PathTurnStart     = "turn.start"
	PathTurnEnd       = "turn.end"
	PathResponse      = "response"
	PathAudio         = "audio"
	PathAudioMetadata = "audio.metadata"
)

const headerSeparator = "\r\n\r\n"

// Message 表示一帧已解码的朗读协议消息：头部键值与负载。
type Message struct {
	Headers map[string]string
	Payload []byte
}

// Path 返回帧头中的 Path 字段。
func (m *Message) Path() string {
	return m.Headers["Path"]
}

// header 保持帧头书写顺序。
type header struct {
	key   string
	value string
}

// EncodeTextMessage 按 "Key:Value\r\n...\r\n\r\nbody" 的格式拼装文本帧。
func EncodeTextMessage(headers []header, body string) string {
	var builder strings.Builder
	for _, h := range headers {
		builder.WriteString(h.key)
		builder.WriteString(":")
		builder.WriteString(h.value)
		builder.WriteString("\r\n")
	}
	builder.WriteString("\r\n")
	builder.WriteString(body)
	return builder.String()
}

// CreateSpeechConfigMessage 构建首帧，声明输出格式与元数据选项。
func CreateSpeechConfigMessage(timestamp, outputFormat string) string {
	body := `{"context":{"synthesis":{"audio":{"metadataoptions":{` +
		`"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"true"},` +
		`"outputFormat":` + quoteJSON(outputFormat) + `}}}}`

	return EncodeTextMessage([]header{
		{"X-Timestamp", timestamp},
		{"Content-Type", "application/json; charset=utf-8"},
		{"Path", PathSpeechConfig},
	}, body)
}

// CreateSSMLMessage 构建合成请求帧。
func CreateSSMLMessage(requestID, timestamp, ssml string) string {
	return EncodeTextMessage([]header{
		{"X-RequestId", requestID},
		{"Content-Type", "application/ssml+xml"},
		{"X-Timestamp", timestamp + "Z"},
		{"Path", PathSSML},
	}, ssml)
}

// DecodeTextMessage 解析文本帧。
func DecodeTextMessage(data []byte) (*Message, error) {
	idx := bytes.Index(data, []byte(headerSeparator))
	if idx < 0 {
		return nil, fmt.Errorf("text frame has no header separator")
	}

	return &Message{
		Headers: parseHeaders(data[:idx]),
		Payload: data[idx+len(headerSeparator):],
	}, nil
}

// DecodeBinaryMessage 解析二进制帧：2 字节大端头长度、头部文本、音频负载。
func DecodeBinaryMessage(data []byte) (*Message, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("binary frame too short: %d bytes", len(data))
	}

	headerLen := int(binary.BigEndian.Uint16(data[:2]))
	if 2+headerLen > len(data) {
		return nil, fmt.Errorf("binary frame header length %d exceeds frame size %d", headerLen, len(data))
	}

	return &Message{
		Headers: parseHeaders(data[2 : 2+headerLen]),
		Payload: data[2+headerLen:],
	}, nil
}

func parseHeaders(raw []byte) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(string(raw), "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers
}

// formatTimestamp 生成服务端要求的 JavaScript Date 风格时间戳。
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

func quoteJSON(value string) string {
	out, err := json.Marshal(value)
	if err != nil {
		return `""`
	}
	return string(out)
}
