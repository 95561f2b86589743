package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/critter-studio/backend/internal/handler/chat"
	"github.com/zhouzirui/critter-studio/backend/internal/handler/speech"
	middlewarePkg "github.com/zhouzirui/critter-studio/backend/internal/middleware"
	chatService "github.com/zhouzirui/critter-studio/backend/internal/service/chat"
	"github.com/zhouzirui/critter-studio/backend/internal/service/studio"
	"github.com/zhouzirui/critter-studio/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. speechSvc may be nil when synthesis is disabled.
func NewRouter(sessions *chatService.Service, machine *studio.Machine, speechSvc speech.SpeechService) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(sessions, machine)
	speechHandler := speech.New(speechSvc)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":   "ok",
				"sessions": sessions.Len(),
				"speech":   machine.SpeechEnabled(),
			})
		})

		chatHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
	})

	return r
}
