package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/zhouzirui/critter-studio/backend/internal/config"
	"github.com/zhouzirui/critter-studio/backend/internal/model/chat"
	"github.com/zhouzirui/critter-studio/backend/internal/model/voice"
)

// ErrNoImage reports an image response that carried no inline image data.
var ErrNoImage = errors.New("no image found in the response")

// GeminiService generates character images, chat replies and voice choices with the Gemini API.
// A service built without a key keeps working but every call reports config.ErrMissingCredential.
type GeminiService struct {
	client *genai.Client
	cfg    config.GeminiConfig
}

// NewGeminiService creates the Gemini client. It only fails when a configured key cannot build a client.
func NewGeminiService(ctx context.Context, cfg config.GeminiConfig) (*GeminiService, error) {
	svc := &GeminiService{cfg: cfg}
	if !cfg.Enabled() {
		log.Printf("[ai] gemini key not configured, image and chat calls will fail")
		return svc, nil
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	svc.client = client
	return svc, nil
}

// Enabled reports whether a key was configured.
func (s *GeminiService) Enabled() bool {
	return s != nil && s.client != nil
}

// GenerateImage asks the image model for a single illustration of description.
func (s *GeminiService) GenerateImage(ctx context.Context, description string) (*chat.Artifact, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.cfg.ImageModel, genai.Text(BuildImagePrompt(description)), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini image request: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoImage
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mimeType := part.InlineData.MIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		log.Printf("[ai] generated image model=%s bytes=%d", s.cfg.ImageModel, len(part.InlineData.Data))
		return &chat.Artifact{Data: part.InlineData.Data, MIMEType: mimeType}, nil
	}
	return nil, ErrNoImage
}

// Reply sends the composed conversation to the chat model and returns its text.
func (s *GeminiService) Reply(ctx context.Context, messages []chat.Message) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.cfg.ChatModel, toGeminiContents(messages), nil)
	if err != nil {
		return "", fmt.Errorf("gemini chat request: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini chat returned no text")
	}
	log.Printf("[ai] generated reply model=%s turns=%d length=%d", s.cfg.ChatModel, len(messages), len(text))
	return text, nil
}

// ClassifyVoice asks the classifier model to choose one catalog voice. The answer is constrained
// to the catalog by an enum schema but is still returned raw for the caller to validate.
func (s *GeminiService) ClassifyVoice(ctx context.Context, description string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	temperature := float32(0)
	resp, err := s.client.Models.GenerateContent(ctx, s.cfg.ClassifierModel, genai.Text(buildClassifierQuery(description)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(buildClassifierInstruction(), genai.RoleUser),
		Temperature:       &temperature,
		ResponseMIMEType:  "text/x.enum",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeString,
			Enum: voice.Identifiers(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini classifier request: %w", err)
	}

	return strings.TrimSpace(resp.Text()), nil
}

func (s *GeminiService) ready() error {
	if !s.Enabled() {
		return fmt.Errorf("gemini: %w: set GEMINI_API_KEY or GOOGLE_API_KEY", config.ErrMissingCredential)
	}
	return nil
}

func toGeminiContents(messages []chat.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		parts := make([]*genai.Part, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			if p.IsInline() {
				parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
				continue
			}
			parts = append(parts, genai.NewPartFromText(p.Text))
		}

		role := genai.Role(genai.RoleUser)
		if msg.Role == chat.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}
