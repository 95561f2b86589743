package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/critter-studio/backend/internal/model/chat"
)

// Service runs chat replies and voice classification through eino chains, used when CHAT_PROVIDER=ark.
type Service struct {
	chain      compose.Runnable[map[string]any, *schema.Message]
	classifier compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the chat and classifier chains on top of chatModel.
func NewService(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	chatTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("conversation", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(chatTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	classifierTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(buildClassifierInstruction()),
		schema.UserMessage("{query}"),
	)

	classifierChain := compose.NewChain[map[string]any, *schema.Message]()
	classifierChain.AppendChatTemplate(classifierTemplate)
	classifierChain.AppendChatModel(chatModel)

	classifier, err := classifierChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile voice classifier chain: %w", err)
	}

	return &Service{
		chain:      runnable,
		classifier: classifier,
	}, nil
}

// Reply runs the composed conversation through the chat chain.
func (s *Service) Reply(ctx context.Context, messages []chat.Message) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"conversation": toSchemaMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("AI chain returned an empty reply")
	}

	log.Printf("[ai] generated reply turns=%d length=%d", len(messages), len(response.Content))
	return strings.TrimSpace(response.Content), nil
}

// ClassifyVoice asks the classifier chain for a voice identifier. The raw answer is returned unvalidated.
func (s *Service) ClassifyVoice(ctx context.Context, description string) (string, error) {
	msg, err := s.classifier.Invoke(ctx, map[string]any{
		"query": buildClassifierQuery(description),
	})
	if err != nil {
		return "", fmt.Errorf("failed to run voice classifier chain: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return strings.TrimSpace(msg.Content), nil
}

func toSchemaMessages(messages []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		role := schema.User
		if msg.Role == chat.RoleModel {
			role = schema.Assistant
		}

		if !hasInline(msg) {
			out = append(out, &schema.Message{Role: role, Content: joinText(msg.Parts)})
			continue
		}

		parts := make([]schema.ChatMessagePart, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			switch {
			case p.IsImage():
				parts = append(parts, schema.ChatMessagePart{
					Type:     schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{URL: dataURL(p), MIMEType: p.MIMEType},
				})
			case p.IsAudio():
				parts = append(parts, schema.ChatMessagePart{
					Type:     schema.ChatMessagePartTypeAudioURL,
					AudioURL: &schema.ChatMessageAudioURL{URL: dataURL(p), MIMEType: p.MIMEType},
				})
			case !p.IsInline():
				parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: p.Text})
			}
		}
		out = append(out, &schema.Message{Role: role, MultiContent: parts})
	}
	return out
}

func hasInline(msg chat.Message) bool {
	for _, p := range msg.Parts {
		if p.IsInline() {
			return true
		}
	}
	return false
}

func joinText(parts []chat.Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func dataURL(p chat.Part) string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}
