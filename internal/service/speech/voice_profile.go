package speech

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/zhouzirui/critter-studio/backend/internal/model/voice"
)

// maxSSMLTextBytes 是单次请求可携带的转义后文本上限。
const maxSSMLTextBytes = 4096

// ErrInvalidRequest 表示合成参数不合法，请求不会发往服务端。
var ErrInvalidRequest = errors.New("invalid speech request")

var (
	prosodyPattern   = regexp.MustCompile(`^[+-]\d{1,3}(%|Hz)$`)
	voiceNamePattern = regexp.MustCompile(`^Microsoft Server Speech Text to Speech Voice \([a-z]{2,3}-[A-Z]{2}, [A-Za-z]+Neural\)$`)
)

// SupportedOutputFormats 是允许请求的输出格式。
var SupportedOutputFormats = []string{
	"audio-24khz-48kbitrate-mono-mp3",
	"audio-24khz-96kbitrate-mono-mp3",
	"audio-48khz-96kbitrate-mono-mp3",
	"webm-24khz-16bit-mono-opus",
	"ogg-24khz-16bit-mono-opus",
	"riff-24khz-16bit-mono-pcm",
}

// ValidProsody 校验 SSML 语速、音调或音量取值，例如 +0%、-10Hz。
func ValidProsody(value string) bool {
	return prosodyPattern.MatchString(value)
}

// ValidOutputFormat 判断输出格式是否受支持。
func ValidOutputFormat(format string) bool {
	return slices.Contains(SupportedOutputFormats, format)
}

// validateSynthesis 在拼装 SSML 之前检查所有会写入属性或配置帧的取值。
func validateSynthesis(voiceName, rate, pitch, volume, format string) error {
	if !voiceNamePattern.MatchString(voiceName) {
		return fmt.Errorf("%w: voice %q", ErrInvalidRequest, voiceName)
	}
	for _, v := range []struct{ name, value string }{{"rate", rate}, {"pitch", pitch}, {"volume", volume}} {
		if !ValidProsody(v.value) {
			return fmt.Errorf("%w: %s %q", ErrInvalidRequest, v.name, v.value)
		}
	}
	if !ValidOutputFormat(format) {
		return fmt.Errorf("%w: output format %q", ErrInvalidRequest, format)
	}
	return nil
}

// resolveVoiceName 把短标识 en-US-AriaNeural 展开为服务端要求的完整名称。
func resolveVoiceName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = string(voice.Default)
	}
	if strings.HasPrefix(raw, "Microsoft Server Speech") {
		return raw
	}

	profile := voice.Profile(raw)
	return fmt.Sprintf("Microsoft Server Speech Text to Speech Voice (%s, %s)", profile.Locale(), profile.ShortName())
}

// BuildSSML 生成单段合成请求的 SSML。text 必须已经转义，属性值在这里转义。
func BuildSSML(voiceName, rate, pitch, volume, escapedText string) string {
	return "<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>" +
		"<voice name='" + escapeAttr(voiceName) + "'>" +
		"<prosody pitch='" + escapeAttr(pitch) + "' rate='" + escapeAttr(rate) + "' volume='" + escapeAttr(volume) + "'>" +
		escapedText +
		"</prosody></voice></speak>"
}

// escapeText 去掉服务端不接受的控制字符并做 XML 转义。
func escapeText(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return ' '
		case r < 0x20:
			return ' '
		}
		return r
	}, text)

	var buf bytes.Buffer
	// bytes.Buffer 写入不会失败。
	_ = xml.EscapeText(&buf, []byte(cleaned))
	return buf.String()
}

func escapeAttr(value string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(value))
	return buf.String()
}

// splitText 把转义后的文本切成不超过 limit 字节的片段，尽量在空白处断开，且不拆开 UTF-8 字符或实体。
func splitText(escaped string, limit int) []string {
	var chunks []string
	for len(escaped) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(escaped[cut]) {
			cut--
		}
		if amp := strings.LastIndexByte(escaped[:cut], '&'); amp >= 0 && !strings.Contains(escaped[amp:cut], ";") {
			cut = amp
		}
		if space := strings.LastIndexByte(escaped[:cut], ' '); space > 0 {
			cut = space
		}
		if cut <= 0 {
			cut = limit
		}

		if chunk := strings.TrimSpace(escaped[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		escaped = escaped[cut:]
	}

	if chunk := strings.TrimSpace(escaped); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// mimeTypeForFormat 由输出格式名推断 MIME 类型。
func mimeTypeForFormat(format string) string {
	switch {
	case strings.HasSuffix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "webm"):
		return "audio/webm"
	case strings.HasPrefix(format, "ogg"):
		return "audio/ogg"
	case strings.HasPrefix(format, "riff"):
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
