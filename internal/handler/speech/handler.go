package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/critter-studio/backend/internal/model/speech"
	"github.com/zhouzirui/critter-studio/backend/internal/model/voice"
	speechsvc "github.com/zhouzirui/critter-studio/backend/internal/service/speech"
	"github.com/zhouzirui/critter-studio/backend/pkg/utils"
)

// previewText 试听时未指定文本使用的默认台词
const previewText = "Hi there! I'm so happy to meet you. Let's be friends!"

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
	SynthesizeWithProfile(ctx context.Context, sessionID, text string, profile voice.Profile) (*speech.TTSResponse, error)
}

// Handler 声音目录与语音合成的HTTP处理器
type Handler struct {
	speechSvc SpeechService
}

// New 创建语音处理器，speechSvc 为 nil 时合成接口返回 503。
func New(speechSvc SpeechService) *Handler {
	return &Handler{speechSvc: speechSvc}
}

// RegisterRoutes 注册声音与语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/voices", func(vr chi.Router) {
		vr.Get("/", h.handleListVoices)
		vr.Post("/{voice}/preview", h.handlePreview)
	})

	r.Route("/speech", func(sr chi.Router) {
		sr.Post("/synthesize", h.handleSynthesize)
		sr.Get("/health", h.handleHealth)
	})
}

// handleListVoices 列出全部声音档案
func (h *Handler) handleListVoices(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"default": voice.Default,
		"voices":  voice.Catalog(),
	})
}

// handlePreview 用指定声音档案朗读一段试听文本
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	profile, ok := voice.Parse(chi.URLParam(r, "voice"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "unknown voice profile")
		return
	}
	if h.speechSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech synthesis disabled")
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		text = previewText
	}

	resp, err := h.speechSvc.SynthesizeWithProfile(r.Context(), "preview", text, profile)
	if err != nil {
		log.Printf("[speech] preview %s failed: %v", profile, err)
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	respondAudio(w, resp)
}

// handleSynthesize 处理文本转语音请求，voice 为空时使用默认声音。
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if h.speechSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech synthesis disabled")
		return
	}

	var req speech.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if strings.TrimSpace(req.Voice) != "" {
		if _, ok := voice.Parse(req.Voice); !ok {
			utils.RespondError(w, http.StatusBadRequest, "unknown voice profile")
			return
		}
	}
	if msg := invalidSynthesisField(&req); msg != "" {
		utils.RespondError(w, http.StatusBadRequest, msg)
		return
	}
	profile := voice.ParseOrDefault(req.Voice)
	req.Voice = string(profile)
	if req.Rate == "" && req.Pitch == "" {
		prosody := profile.Prosody()
		req.Rate, req.Pitch = prosody.Rate, prosody.Pitch
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), &req)
	if errors.Is(err, speechsvc.ErrInvalidRequest) {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("[speech] TTS error: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	respondAudio(w, resp)
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.speechSvc == nil {
		status = "disabled"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "speech",
	})
}

// invalidSynthesisField 校验会写入 SSML 属性或配置帧的可选字段，返回错误提示。
func invalidSynthesisField(req *speech.TTSRequest) string {
	req.Rate = strings.TrimSpace(req.Rate)
	req.Pitch = strings.TrimSpace(req.Pitch)
	req.Volume = strings.TrimSpace(req.Volume)
	req.Format = strings.TrimSpace(req.Format)

	for _, f := range []struct{ name, value string }{{"rate", req.Rate}, {"pitch", req.Pitch}, {"volume", req.Volume}} {
		if f.value != "" && !speechsvc.ValidProsody(f.value) {
			return "invalid " + f.name + ": expected a signed value such as +0% or -10Hz"
		}
	}
	if req.Format != "" && !speechsvc.ValidOutputFormat(req.Format) {
		return "unsupported format, expected one of: " + strings.Join(speechsvc.SupportedOutputFormats, ", ")
	}
	return ""
}

func respondAudio(w http.ResponseWriter, resp *speech.TTSResponse) {
	if resp == nil || len(resp.AudioData) == 0 {
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis returned no audio")
		return
	}
	mimeType := resp.MIMEType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	utils.RespondBinary(w, mimeType, "", resp.AudioData)
}
