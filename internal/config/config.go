package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// ErrMissingCredential 表示外部服务所需的密钥未配置。
var ErrMissingCredential = errors.New("missing credential")

// Chat providers accepted by CHAT_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server       ServerConfig
	Gemini       GeminiConfig
	Ark          ArkConfig
	Speech       SpeechConfig
	Session      SessionConfig
	ChatProvider string `env:"CHAT_PROVIDER" envDefault:"gemini"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string `env:"-"`
}

// GeminiConfig 描述 Gemini 图像、对话与分类模型配置。
type GeminiConfig struct {
	APIKey          string `env:"GEMINI_API_KEY"`
	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`
	ImageModel      string `env:"GEMINI_IMAGE_MODEL" envDefault:"gemini-2.5-flash-image"`
	ChatModel       string `env:"GEMINI_CHAT_MODEL" envDefault:"gemini-2.0-flash"`
	ClassifierModel string `env:"GEMINI_CLASSIFIER_MODEL" envDefault:"gemini-2.0-flash"`
	BaseURL         string `env:"GEMINI_BASE_URL"`
}

// ArkConfig 描述火山方舟大模型配置，作为对话与声音分类的备选后端。
type ArkConfig struct {
	APIKey      string  `env:"ARK_API_KEY"`
	AccessKey   string  `env:"ARK_ACCESS_KEY"`
	SecretKey   string  `env:"ARK_SECRET_KEY"`
	Model       string  `env:"ARK_MODEL"`
	BaseURL     string  `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string  `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature float32 `env:"ARK_TEMPERATURE" envDefault:"0.8"`
	MaxTokens   int     `env:"ARK_MAX_TOKENS"`
}

// SpeechConfig 描述语音合成配置。
type SpeechConfig struct {
	Enabled      bool          `env:"SPEECH_ENABLED" envDefault:"true"`
	Endpoint     string        `env:"SPEECH_ENDPOINT" envDefault:"wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"`
	ClientToken  string        `env:"SPEECH_CLIENT_TOKEN" envDefault:"6A5AA1D4EAFF4E9FB37E23D68491D6F4"`
	OutputFormat string        `env:"SPEECH_OUTPUT_FORMAT" envDefault:"audio-24khz-48kbitrate-mono-mp3"`
	Volume       string        `env:"SPEECH_VOLUME" envDefault:"+0%"`
	Timeout      time.Duration `env:"SPEECH_TIMEOUT" envDefault:"30s"`
}

// SessionConfig 描述内存会话的保留策略。
type SessionConfig struct {
	IdleTTL       time.Duration `env:"SESSION_IDLE_TTL" envDefault:"2h"`
	PruneInterval time.Duration `env:"SESSION_PRUNE_INTERVAL" envDefault:"10m"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom 使用给定的环境变量集合加载配置，便于测试。
func LoadFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.Gemini.APIKey = strings.TrimSpace(cfg.Gemini.APIKey)
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = strings.TrimSpace(cfg.Gemini.GoogleAPIKey)
	}

	cfg.ChatProvider = strings.ToLower(strings.TrimSpace(cfg.ChatProvider))
	switch cfg.ChatProvider {
	case ProviderGemini, ProviderArk:
	default:
		return nil, fmt.Errorf("invalid CHAT_PROVIDER value: %q", cfg.ChatProvider)
	}

	if cfg.Speech.Timeout <= 0 {
		return nil, fmt.Errorf("invalid SPEECH_TIMEOUT value: %s", cfg.Speech.Timeout)
	}

	if cfg.Session.IdleTTL <= 0 || cfg.Session.PruneInterval <= 0 {
		return nil, fmt.Errorf("invalid session retention: ttl=%s interval=%s", cfg.Session.IdleTTL, cfg.Session.PruneInterval)
	}

	return cfg, nil
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	return ":" + port, nil
}

// Enabled 表示是否提供了 Gemini 密钥。
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}

// Enabled 表示是否提供了必需的方舟密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个方舟模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark: %w: provide ARK_MODEL with ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY", ErrMissingCredential)
	}

	temperature := c.Temperature

	var maxTokens *int
	if c.MaxTokens > 0 {
		val := c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}
