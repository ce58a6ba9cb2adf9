package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/voice-agent/backend/internal/handler/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/handler/persona"
	"github.com/zhouzirui/voice-agent/backend/internal/handler/voice"
	"github.com/zhouzirui/voice-agent/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/voice-agent/backend/internal/middleware"
	personaModel "github.com/zhouzirui/voice-agent/backend/internal/model/persona"
	chatService "github.com/zhouzirui/voice-agent/backend/internal/service/chat"
	speechService "github.com/zhouzirui/voice-agent/backend/internal/service/speech"
	"github.com/zhouzirui/voice-agent/backend/pkg/utils"
)

// Deps bundles what the router needs.
type Deps struct {
	Personas      personaModel.Store
	ActivePersona string
	Sessions      *chatService.Service
	Turns         voice.Turns
	Renderer      *speechService.Renderer
	Metrics       *metrics.Metrics
	// TwilioAuthToken enables webhook signature checks when set.
	TwilioAuthToken string
	PublicBaseURL   string
	Logger          *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Voice order assistant is running."))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Twilio webhooks
	r.Group(func(hooks chi.Router) {
		if deps.TwilioAuthToken != "" {
			hooks.Use(middlewarePkg.TwilioSignature(deps.TwilioAuthToken, deps.PublicBaseURL, logger))
		} else {
			logger.Warn("TWILIO_AUTH_TOKEN not set, webhook signatures are not verified")
		}
		voice.New(deps.Turns, deps.Renderer, logger).RegisterRoutes(hooks)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.CORS)

		if deps.Personas != nil {
			persona.New(deps.Personas, deps.ActivePersona).RegisterRoutes(api)
		}
		chat.New(deps.Sessions).RegisterRoutes(api)
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	return r
}
