package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/critter-studio/backend/internal/config"
	"github.com/zhouzirui/critter-studio/backend/internal/handler"
	speechHandler "github.com/zhouzirui/critter-studio/backend/internal/handler/speech"
	speechModel "github.com/zhouzirui/critter-studio/backend/internal/model/speech"
	"github.com/zhouzirui/critter-studio/backend/internal/service/ai"
	"github.com/zhouzirui/critter-studio/backend/internal/service/chat"
	"github.com/zhouzirui/critter-studio/backend/internal/service/speech"
	"github.com/zhouzirui/critter-studio/backend/internal/service/studio"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Gemini 负责生图，默认也负责对话与声音分类
	gemini, err := ai.NewGeminiService(ctx, cfg.Gemini)
	if err != nil {
		log.Fatalf("failed to initialize Gemini client: %v", err)
	}
	collaborators := studio.Collaborators{
		Images: gemini,
		Voices: gemini,
		Chat:   gemini,
	}

	if cfg.ChatProvider == config.ProviderArk {
		aiService, err := newArkService(ctx, cfg.Ark)
		if err != nil {
			log.Printf("warning: failed to initialize Ark chat: %v", err)
			log.Println("continuing with Gemini chat - 请检查 Ark 模型相关环境变量")
		} else {
			collaborators.Chat = aiService
			collaborators.Voices = aiService
			log.Println("Ark chat model initialized successfully")
		}
	}

	// speechService 保持接口类型，未启用时为 nil 接口
	var speechService speechHandler.SpeechService
	if cfg.Speech.Enabled {
		svc, err := speech.NewService(&speechModel.SpeechConfig{
			Endpoint:     cfg.Speech.Endpoint,
			ClientToken:  cfg.Speech.ClientToken,
			OutputFormat: cfg.Speech.OutputFormat,
			Volume:       cfg.Speech.Volume,
			Timeout:      cfg.Speech.Timeout,
		})
		if err != nil {
			log.Printf("warning: failed to initialize speech service: %v", err)
			log.Println("continuing without voiced replies")
		} else {
			speechService = svc
			collaborators.Speech = svc
			log.Println("Speech service initialized successfully")
		}
	} else {
		log.Println("语音合成已禁用，角色回复不带语音")
	}

	sessions := chat.NewService()
	machine := studio.NewMachine(collaborators)
	go pruneSessions(ctx, sessions, cfg.Session)

	router := handler.NewRouter(sessions, machine, speechService)

	startServer(ctx, cfg.Server, router)
}

func newArkService(ctx context.Context, arkCfg config.ArkConfig) (*ai.Service, error) {
	chatModel, err := arkCfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return ai.NewService(ctx, chatModel)
}

// pruneSessions 定期清理长时间无操作的会话
func pruneSessions(ctx context.Context, sessions *chat.Service, sessionCfg config.SessionConfig) {
	ticker := time.NewTicker(sessionCfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.PruneIdle(sessionCfg.IdleTTL); n > 0 {
				log.Printf("[session] pruned %d idle sessions, %d remaining", n, sessions.Len())
			}
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Critter Studio backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
