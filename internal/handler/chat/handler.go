package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/critter-studio/backend/internal/config"
	"github.com/zhouzirui/critter-studio/backend/internal/model/chat"
	chatService "github.com/zhouzirui/critter-studio/backend/internal/service/chat"
	"github.com/zhouzirui/critter-studio/backend/internal/service/studio"
	"github.com/zhouzirui/critter-studio/backend/pkg/utils"
)

const (
	maxUploadBytes = 32 << 20
	maxAudioBytes  = 10 << 20
)

// 长耗时操作在 SSE 模式下先推送的状态提示。
const (
	statusSummoning = "Summoning pixel data..."
	statusVoicing   = "Finding the right voice..."
	statusThinking  = "The Pokemon is thinking..."
)

type transition func(ctx context.Context, s chat.Session) (chat.Session, error)

// Handler 会话状态机的HTTP处理器
type Handler struct {
	sessions *chatService.Service
	machine  *studio.Machine
}

// New 创建会话处理器
func New(sessions *chatService.Service, machine *studio.Machine) *Handler {
	return &Handler{
		sessions: sessions,
		machine:  machine,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(sr chi.Router) {
		sr.Post("/", h.handleCreateSession)

		sr.Route("/{sessionID}", func(s chi.Router) {
			s.Get("/", h.handleGetSession)
			s.Delete("/", h.handleDeleteSession)
			s.Post("/describe", h.handleDescribe)
			s.Post("/regenerate", h.handleRegenerate)
			s.Post("/accept", h.handleAccept)
			s.Post("/turns", h.handleSendTurn)
			s.Post("/reset", h.handleReset)
			s.Get("/artifact", h.handleArtifact)
			s.Get("/turns/{index}/audio", h.handleTurnAudio)
		})
	})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, session := h.sessions.CreateSession(r.Context())
	log.Printf("[http] created session=%s", id)
	utils.RespondJSON(w, http.StatusCreated, h.view(id, session))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		h.respondFailure(w, id, session, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.view(id, session))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.sessions.DeleteSession(r.Context(), id); err != nil {
		h.respondFailure(w, id, chat.Session{}, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDescribe EMPTY -> DRAFT
func (h *Handler) handleDescribe(w http.ResponseWriter, r *http.Request) {
	description, ok := decodeDescription(w, r)
	if !ok {
		return
	}
	h.runTransition(w, r, statusSummoning, func(ctx context.Context, s chat.Session) (chat.Session, error) {
		return h.machine.Submit(ctx, s, description)
	})
}

// handleRegenerate DRAFT -> DRAFT
func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	description, ok := decodeDescription(w, r)
	if !ok {
		return
	}
	h.runTransition(w, r, statusSummoning, func(ctx context.Context, s chat.Session) (chat.Session, error) {
		return h.machine.Regenerate(ctx, s, description)
	})
}

// handleAccept DRAFT -> ACTIVE
func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, statusVoicing, h.machine.Accept)
}

// handleSendTurn ACTIVE -> ACTIVE，支持 JSON 文本或 multipart 文本加录音。
func (h *Handler) handleSendTurn(w http.ResponseWriter, r *http.Request) {
	input, err := decodeUserInput(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.runTransition(w, r, statusThinking, func(ctx context.Context, s chat.Session) (chat.Session, error) {
		return h.machine.Send(ctx, s, input)
	})
}

// handleReset 任意阶段 -> EMPTY
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, "", func(_ context.Context, s chat.Session) (chat.Session, error) {
		return h.machine.Reset(s), nil
	})
}

// handleArtifact 下载角色图片
func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		h.respondFailure(w, id, session, err)
		return
	}
	if session.Artifact == nil || len(session.Artifact.Data) == 0 {
		utils.RespondError(w, http.StatusNotFound, "session has no artifact")
		return
	}

	utils.RespondBinary(w, session.Artifact.MIMEType, artifactFilename(session.Artifact.MIMEType), session.Artifact.Data)
}

// handleTurnAudio 返回某条角色回复的语音
func (h *Handler) handleTurnAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		h.respondFailure(w, id, session, err)
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= len(session.Transcript) {
		utils.RespondError(w, http.StatusNotFound, "turn not found")
		return
	}

	audio := session.Transcript[index].Audio
	if audio == nil || len(audio.Data) == 0 {
		utils.RespondError(w, http.StatusNotFound, "turn has no audio")
		return
	}

	utils.RespondBinary(w, audio.MIMEType, "", audio.Data)
}

// runTransition 串行执行一次状态迁移，客户端请求 SSE 时先推送状态提示再推送结果。
func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, status string, fn transition) {
	id := chi.URLParam(r, "sessionID")

	flusher, streaming := w.(http.Flusher)
	if !streaming || status == "" || !utils.WantsEventStream(r) {
		session, err := h.sessions.Update(r.Context(), id, fn)
		if err != nil {
			h.respondFailure(w, id, session, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, h.view(id, session))
		return
	}

	if _, err := h.sessions.GetSession(r.Context(), id); err != nil {
		h.respondFailure(w, id, chat.Session{}, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	utils.SendSSEEvent(w, flusher, "status", map[string]string{"message": status})

	session, err := h.sessions.Update(r.Context(), id, fn)
	if err != nil {
		payload := h.failurePayload(id, session, err)
		payload["status"] = statusFor(err)
		utils.SendSSEEvent(w, flusher, "error", payload)
		return
	}
	utils.SendSSEEvent(w, flusher, "session", h.view(id, session))
}

func (h *Handler) view(id string, s chat.Session) sessionView {
	return newSessionView(id, s, h.machine.SpeechEnabled())
}

// respondFailure 按错误类别映射状态码，会话存在时附带当前会话。
func (h *Handler) respondFailure(w http.ResponseWriter, id string, s chat.Session, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[http] session=%s request failed: %v", id, err)
	}
	utils.RespondJSON(w, status, h.failurePayload(id, s, err))
}

func (h *Handler) failurePayload(id string, s chat.Session, err error) map[string]any {
	payload := map[string]any{"error": err.Error()}
	if !errors.Is(err, chatService.ErrSessionNotFound) && s.Phase != "" {
		payload["session"] = h.view(id, s)
	}
	return payload
}

func statusFor(err error) int {
	var collabErr *studio.CollaboratorError
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, studio.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, studio.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, config.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.As(err, &collabErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeDescription(w http.ResponseWriter, r *http.Request) (string, bool) {
	var payload struct {
		Description string `json:"description"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return payload.Description, true
}

func decodeUserInput(r *http.Request) (chat.UserInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return chat.UserInput{}, errors.New("invalid request body")
		}
		return chat.UserInput{Text: payload.Text}, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return chat.UserInput{}, errors.New("failed to parse multipart form: " + err.Error())
	}
	defer r.MultipartForm.RemoveAll()

	input := chat.UserInput{Text: r.FormValue("text")}

	file, header, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return input, nil
	}
	if err != nil {
		return chat.UserInput{}, errors.New("invalid audio file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		return chat.UserInput{}, errors.New("failed to read audio file")
	}
	if len(data) > maxAudioBytes {
		return chat.UserInput{}, errors.New("audio file too large")
	}
	if len(data) == 0 {
		return input, nil
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = inferAudioMIME(header.Filename)
	}
	input.Audio = &chat.Audio{Data: data, MIMEType: mimeType}
	return input, nil
}

// inferAudioMIME 从文件名推断音频类型
func inferAudioMIME(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	case ".m4a", ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}
