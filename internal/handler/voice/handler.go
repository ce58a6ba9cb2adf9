package voice

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	speechmodel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
	"github.com/zhouzirui/voice-agent/backend/internal/service/call"
	"github.com/zhouzirui/voice-agent/backend/internal/service/speech"
	"github.com/zhouzirui/voice-agent/backend/pkg/utils"
)

// Turns is the orchestration surface used by the webhooks.
type Turns interface {
	Greet(ctx context.Context, req speechmodel.WebhookRequest) (*call.Reply, error)
	Respond(ctx context.Context, req speechmodel.WebhookRequest) (*call.Reply, error)
}

// Handler 语音 webhook 的 HTTP 处理器
type Handler struct {
	turns    Turns
	renderer *speech.Renderer
	logger   *slog.Logger
}

// New 创建语音处理器
func New(turns Turns, renderer *speech.Renderer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{turns: turns, renderer: renderer, logger: logger}
}

// RegisterRoutes 注册 webhook 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/incoming-call", h.handleIncomingCall)
	r.Post("/respond", h.handleRespond)
}

func (h *Handler) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.turns.Greet)
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.turns.Respond)
}

type turnFunc func(ctx context.Context, req speechmodel.WebhookRequest) (*call.Reply, error)

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, run turnFunc) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("invalid webhook form", "path", r.URL.Path, "error", err)
		h.write(w, r, call.FallbackMessage, "")
		return
	}

	req := speechmodel.ParseWebhook(r.PostForm, r.URL.Query())
	reply, err := run(r.Context(), req)
	if err != nil {
		// Twilio 需要合法的 TwiML，出错时也播报兜底话术
		h.logger.Error("turn failed", "path", r.URL.Path, "call_sid", req.CallSid, "request_id", middleware.GetReqID(r.Context()), "error", err)
		h.write(w, r, call.FallbackMessage, req.SessionKey())
		return
	}

	h.logger.Debug("turn completed", "path", r.URL.Path, "session", reply.SessionKey, "answer_path", reply.Path)
	h.write(w, r, reply.Text, reply.SessionKey)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, text, sessionKey string) {
	body, err := h.renderer.Render(text, sessionKey)
	if err != nil {
		h.logger.Error("render twiml failed", "path", r.URL.Path, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	utils.RespondXML(w, http.StatusOK, speech.ContentType, body)
}
