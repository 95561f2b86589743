package speech

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zhouzirui/critter-studio/backend/internal/model/speech"
)

// EdgeTTSClient 朗读服务 WebSocket 客户端，每段文本使用一条新连接并完整缓冲音频。
type EdgeTTSClient struct {
	config    *speech.SpeechConfig
	connector *Connector
	now       func() time.Time
}

// NewEdgeTTSClient 创建朗读客户端
func NewEdgeTTSClient(config *speech.SpeechConfig, options *ConnectionOptions) (*EdgeTTSClient, error) {
	token, err := resolveClientToken(config)
	if err != nil {
		return nil, err
	}
	if !ValidOutputFormat(config.OutputFormat) {
		return nil, fmt.Errorf("unsupported speech output format %q", config.OutputFormat)
	}
	if config.Volume != "" && !ValidProsody(config.Volume) {
		return nil, fmt.Errorf("invalid speech volume %q", config.Volume)
	}

	return &EdgeTTSClient{
		config:    config,
		connector: NewConnector(config.Endpoint, token, options),
		now:       time.Now,
	}, nil
}

// SynthesizeSpeechWS 合成整段文本并返回完整音频。
func (c *EdgeTTSClient) SynthesizeSpeechWS(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	escaped := escapeText(strings.TrimSpace(req.Text))
	if strings.TrimSpace(escaped) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	format := strings.TrimSpace(req.Format)
	if format == "" {
		format = c.config.OutputFormat
	}

	voiceName := resolveVoiceName(req.Voice)
	rate := defaultString(req.Rate, "+0%")
	pitch := defaultString(req.Pitch, "+0Hz")
	volume := defaultString(req.Volume, defaultString(c.config.Volume, "+0%"))
	if err := validateSynthesis(voiceName, rate, pitch, volume, format); err != nil {
		return nil, err
	}

	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")

	var audio bytes.Buffer
	chunks := splitText(escaped, maxSSMLTextBytes)
	for _, chunk := range chunks {
		ssml := BuildSSML(voiceName, rate, pitch, volume, chunk)
		data, err := c.synthesizeChunk(ctx, requestID, format, ssml)
		if err != nil {
			return nil, err
		}
		audio.Write(data)
	}

	log.Printf("[TTS] synthesized voice=%s chunks=%d bytes=%d", req.Voice, len(chunks), audio.Len())

	return &speech.TTSResponse{
		SessionID: req.SessionID,
		AudioData: audio.Bytes(),
		MIMEType:  mimeTypeForFormat(format),
		Format:    format,
		RequestID: requestID,
		CreatedAt: c.now(),
	}, nil
}

func (c *EdgeTTSClient) synthesizeChunk(ctx context.Context, requestID, format, ssml string) ([]byte, error) {
	conn, err := c.connector.ConnectWithRetry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	// ReadMessage 不感知 context，取消时直接关闭连接让读取返回。
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	timestamp := formatTimestamp(c.now())
	if err := conn.WriteMessage(websocket.TextMessage, []byte(CreateSpeechConfigMessage(timestamp, format))); err != nil {
		return nil, fmt.Errorf("failed to send speech config: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(CreateSSMLMessage(requestID, timestamp, ssml))); err != nil {
		return nil, fmt.Errorf("failed to send SSML request: %w", err)
	}

	var audio bytes.Buffer
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			msg, err := DecodeTextMessage(data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode TTS text frame: %w", err)
			}

			switch msg.Path() {
			case PathTurnEnd:
				if audio.Len() == 0 {
					return nil, fmt.Errorf("TTS audio is empty")
				}
				return audio.Bytes(), nil
			case PathTurnStart, PathResponse, PathAudioMetadata:
			default:
				log.Printf("[TTS] unexpected text frame path: %s", msg.Path())
			}

		case websocket.BinaryMessage:
			msg, err := DecodeBinaryMessage(data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode TTS audio frame: %w", err)
			}
			if msg.Path() != PathAudio {
				log.Printf("[TTS] unexpected binary frame path: %s", msg.Path())
				continue
			}
			audio.Write(msg.Payload)
		}
	}
}

func defaultString(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
