package chat

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/model/order"
	chatService "github.com/zhouzirui/voice-agent/backend/internal/service/chat"
	"github.com/zhouzirui/voice-agent/backend/pkg/utils"
)

// Handler 会话查询与重置的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建会话处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{key}", h.handleGetSession)
	r.Delete("/sessions/{key}", h.handleResetSession)
}

type sessionView struct {
	Key          string         `json:"key"`
	CustomerName string         `json:"customerName,omitempty"`
	Orders       []order.Record `json:"orders"`
	Messages     []chat.Message `json:"messages"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Version      int64          `json:"version"`
}

// handleGetSession 返回会话记录
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	session, err := h.chatSvc.Get(r.Context(), key)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	view := sessionView{
		Key:          session.Key,
		CustomerName: session.CustomerName,
		Orders:       session.Orders,
		Messages:     session.Messages,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
		Version:      session.Version,
	}
	if view.Orders == nil {
		view.Orders = []order.Record{}
	}
	if view.Messages == nil {
		view.Messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

// handleResetSession 删除会话，下一次来电重新问候
func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := h.chatSvc.Reset(r.Context(), key); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, chatService.ErrSessionNotFound) {
		status = http.StatusNotFound
	}
	utils.RespondError(w, status, err.Error())
}
