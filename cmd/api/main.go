package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/voice-agent/backend/internal/config"
	"github.com/zhouzirui/voice-agent/backend/internal/handler"
	"github.com/zhouzirui/voice-agent/backend/internal/metrics"
	"github.com/zhouzirui/voice-agent/backend/internal/model/persona"
	speechModel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
	"github.com/zhouzirui/voice-agent/backend/internal/service/agent"
	"github.com/zhouzirui/voice-agent/backend/internal/service/ai"
	"github.com/zhouzirui/voice-agent/backend/internal/service/call"
	"github.com/zhouzirui/voice-agent/backend/internal/service/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/service/crm"
	"github.com/zhouzirui/voice-agent/backend/internal/service/speech"
	"github.com/zhouzirui/voice-agent/backend/internal/service/tools"
)

func main() {
	if err := run(); err != nil {
		slog.Error("voice order assistant stopped", "error", err)
		os.Exit(1)
	}
}

// run 完成所有初始化并阻塞到服务退出，返回前会关闭存储
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := cfg.Log.NewLogger(os.Stdout)
	if err != nil {
		return fmt.Errorf("log configuration: %w", err)
	}
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file loaded, using system environment only", "error", envErr)
	}

	// CRM client; without credentials the assistant runs with no cached orders
	var crmClient *crm.Client
	var orders chat.OrderFetcher
	if cfg.CRM.Enabled() {
		crmClient = crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.AccessToken, cfg.CRM.Timeout, crm.WithLogger(logger))
		orders = crmClient
		logger.Info("CRM client configured", "base_url", cfg.CRM.BaseURL)
	} else {
		crmClient = crm.NewClient("", "", cfg.CRM.Timeout, crm.WithLogger(logger))
		logger.Warn("SF_BASE_URL / SF_ACCESS_TOKEN not set, CRM lookups disabled")
	}

	m := metrics.New("voice_agent")

	// Persona and prompts
	personaStore := persona.NewMemoryStore(persona.Seed())
	prompts, err := ai.NewService(personaStore, cfg.Agent.PersonaID)
	if err != nil {
		return fmt.Errorf("initialise prompts: %w", err)
	}

	// Session store
	store, closeStore, err := newSessionStore(cfg.Session, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer closeStore()

	sessions := chat.NewService(store, orders,
		chat.WithTTL(cfg.Session.TTL),
		chat.WithHistoryLimit(cfg.Session.HistoryLimit),
		chat.WithLogger(logger),
	)
	var janitor sync.WaitGroup
	sessions.RunJanitor(ctx, cfg.Session.PurgeInterval, &janitor)

	// Tool-calling agent
	var executor call.Agent
	if cfg.AI.Enabled() {
		executor, err = newExecutor(ctx, cfg, crmClient, m, logger)
		if err != nil {
			logger.Warn("failed to initialise AI agent, continuing with local answers only", "error", err)
			executor = nil
		} else {
			logger.Info("AI agent initialised", "model", cfg.AI.Model, "max_rounds", cfg.Agent.MaxRounds)
		}
	} else {
		logger.Warn("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	turns := call.NewService(sessions, prompts, executor,
		call.WithTurnTimeout(cfg.Agent.TurnTimeout),
		call.WithMetrics(m),
		call.WithLogger(logger),
	)

	renderer := speech.NewRenderer(speechModel.VoiceSettings{
		Voice:       cfg.Voice.Name,
		Language:    cfg.Voice.Language,
		SpeechModel: cfg.Voice.SpeechModel,
		Enhanced:    cfg.Voice.Enhanced,
		BaseURL:     cfg.Server.PublicBaseURL,
	})

	router := handler.NewRouter(handler.Deps{
		Personas:        personaStore,
		ActivePersona:   prompts.Persona().ID,
		Sessions:        sessions,
		Turns:           turns,
		Renderer:        renderer,
		Metrics:         m,
		TwilioAuthToken: cfg.Server.TwilioAuthToken,
		PublicBaseURL:   cfg.Server.PublicBaseURL,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return serve(ctx, srv, stop, &janitor, logger)
}

func newExecutor(ctx context.Context, cfg *config.Config, backend tools.CRM, m *metrics.Metrics, logger *slog.Logger) (call.Agent, error) {
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewDefaultRegistry(backend)
	if err != nil {
		return nil, err
	}

	executor, err := agent.NewExecutor(chatModel, registry,
		agent.WithMaxRounds(cfg.Agent.MaxRounds),
		agent.WithObserver(m),
		agent.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return executor, nil
}

func newSessionStore(cfg config.SessionConfig, logger *slog.Logger) (chat.Store, func(), error) {
	if cfg.DBPath == "" {
		logger.Info("using in-memory session store", "ttl", cfg.TTL)
		return chat.NewMemoryStore(cfg.TTL), func() {}, nil
	}

	store, err := chat.NewSQLiteStore(cfg.DBPath, cfg.TTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using sqlite session store", "path", cfg.DBPath, "ttl", cfg.TTL)
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing session store", "error", err)
		}
	}, nil
}

// serve runs srv until ctx ends or the listener fails, then stops the
// background workers and waits for them before reporting the server error.
func serve(ctx context.Context, srv *http.Server, stop context.CancelFunc, workers *sync.WaitGroup, logger *slog.Logger) error {
	logger.Info("voice order assistant listening", "addr", srv.Addr)
	err := runServer(ctx, srv)
	stop()
	workers.Wait()
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
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
