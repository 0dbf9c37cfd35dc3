package message

import (
	"context"
	"strconv"

	"groupchat-gateway/internal/apperr"
	"groupchat-gateway/internal/chat"
	"groupchat-gateway/internal/httputil"
	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

const msgInvalidFormat = "Format de requête invalide"

// Service 處理器依賴的聊天服務.
type Service interface {
	Send(ctx context.Context, in chat.SendInput) (*chat.MessageView, error)
	Edit(ctx context.Context, in chat.EditInput) (*chat.MessageView, error)
	Delete(ctx context.Context, messageID, userID string) (*chat.DeleteResult, error)
	AddReaction(ctx context.Context, messageID, userID, emoji string) (*chat.ReactionChange, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) (*chat.ReactionChange, error)
	ListMessages(ctx context.Context, in chat.ListInput) (*chat.MessagePage, error)
	LastMessages(ctx context.Context, userID string) ([]chat.LastMessage, []chat.EnrichmentError, error)
	Share(ctx context.Context, in chat.ShareInput) (*chat.MessageView, error)
	HideConversation(ctx context.Context, groupID, userID string) (*chat.GroupView, error)
	DeleteHistory(ctx context.Context, groupID, userID string) (*chat.GroupView, error)
}

// AccessAuditor 記錄被拒絕的寫入操作.
type AccessAuditor interface {
	LogAccessDenied(ctx context.Context, userID, groupID, action, reason string)
}

// MessageHandler message 處理器.
type MessageHandler struct {
	svc     Service
	auditor AccessAuditor
}

// NewMessageHandler 創建新的 message 處理器，auditor 可為 nil.
func NewMessageHandler(svc Service, auditor AccessAuditor) *MessageHandler {
	return &MessageHandler{
		svc:     svc,
		auditor: auditor,
	}
}

// RouteLimits 個別端點的限流中間件，nil 表示不限流.
type RouteLimits struct {
	Messages  gin.HandlerFunc
	Reactions gin.HandlerFunc
}

// RegisterRoutes 註冊 /messages 與 /groups 路由.
func (h *MessageHandler) RegisterRoutes(rg *gin.RouterGroup, limits RouteLimits) {
	messageID := middleware.RequireObjectIDParams("id")

	messages := rg.Group("/messages")
	{
		messages.GET("/group/:groupId", middleware.RequireObjectIDParams("groupId"), h.ListByGroup)
		messages.GET("/last-messages", h.LastMessages)

		messages.POST("", handlers(limits.Messages, h.Create)...)
		messages.POST("/share-post", handlers(limits.Messages, h.share(chat.SharedPost))...)
		messages.POST("/share-folder", handlers(limits.Messages, h.share(chat.SharedFolder))...)
		messages.POST("/share-pdf", handlers(limits.Messages, h.share(chat.SharedPdf))...)

		messages.PUT("/:id", handlers(messageID, limits.Messages, h.Update)...)
		messages.DELETE("/:id", messageID, h.Delete)

		messages.POST("/:id/reactions", handlers(messageID, limits.Reactions, h.AddReaction)...)
		messages.DELETE("/:id/reactions/:emoji", handlers(messageID, limits.Reactions, h.RemoveReaction)...)
	}

	groups := rg.Group("/groups/:groupId", middleware.RequireObjectIDParams("groupId"))
	{
		groups.POST("/hide", h.HideConversation)
		groups.POST("/history/delete", h.DeleteHistory)
	}
}

// handlers 過濾掉未設定的中間件
func handlers(fns ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(fns))
	for _, fn := range fns {
		if fn != nil {
			out = append(out, fn)
		}
	}
	return out
}

// ListByGroup 分頁列出群組消息.
func (h *MessageHandler) ListByGroup(c *gin.Context) {
	var q ListMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		// 非數字的分頁參數退回預設值
		q = ListMessagesQuery{Page: atoiOrZero(c.Query("page")), Limit: atoiOrZero(c.Query("limit"))}
	}

	page, err := h.svc.ListMessages(c.Request.Context(), chat.ListInput{
		GroupID: c.Param("groupId"),
		UserID:  middleware.GetUserID(c),
		Page:    q.Page,
		Limit:   q.Limit,
	})
	if err != nil {
		httputil.RespondError(c, err)
		return
	}

	httputil.OKWithWarnings(c, page.Messages, page.Pagination, chat.WarningSteps(page.Warnings))
}

// LastMessages 每個群組的最後一則消息.
func (h *MessageHandler) LastMessages(c *gin.Context) {
	items, warnings, err := h.svc.LastMessages(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		httputil.RespondError(c, err)
		return
	}
	if items == nil {
		items = []chat.LastMessage{}
	}
	httputil.OKWithWarnings(c, items, nil, chat.WarningSteps(warnings))
}

// Create 發送消息.
func (h *MessageHandler) Create(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, msgInvalidFormat)
		return
	}
	if err := ValidateSendMessageRequest(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	view, err := h.svc.Send(c.Request.Context(), chat.SendInput{
		GroupID:   req.GroupID,
		AuthorID:  middleware.GetUserID(c),
		Content:   req.Content,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		h.respondDenied(c, err, req.GroupID, "message.send")
		return
	}
	httputil.Created(c, view)
}

// Update 修改消息內容，僅作者可修改.
func (h *MessageHandler) Update(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, msgInvalidFormat)
		return
	}

	view, err := h.svc.Edit(c.Request.Context(), chat.EditInput{
		MessageID: c.Param("id"),
		UserID:    middleware.GetUserID(c),
		Content:   middleware.SanitizeInput(req.Content),
	})
	if err != nil {
		h.respondDenied(c, err, "", "message.edit")
		return
	}
	httputil.OK(c, view)
}

// Delete 軟刪除消息.
func (h *MessageHandler) Delete(c *gin.Context) {
	result, err := h.svc.Delete(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		h.respondDenied(c, err, "", "message.delete")
		return
	}
	httputil.OK(c, result)
}

// AddReaction 新增或替換表情.
func (h *MessageHandler) AddReaction(c *gin.Context) {
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, msgInvalidFormat)
		return
	}
	if err := ValidateReactionRequest(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	change, err := h.svc.AddReaction(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Emoji)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}
	httputil.OK(c, change)
}

// RemoveReaction 移除表情.
func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	req := ReactionRequest{Emoji: c.Param("emoji")}
	if err := ValidateReactionRequest(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	change, err := h.svc.RemoveReaction(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Emoji)
	if err != nil {
		httputil.RespondError(c, err)
		return
	}
	httputil.OK(c, change)
}

// share 分享貼文、資料夾或 PDF.
func (h *MessageHandler) share(kind chat.SharedKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ShareRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BadRequest(c, msgInvalidFormat)
			return
		}
		if err := ValidateShareRequest(&req); err != nil {
			httputil.BadRequest(c, err.Error())
			return
		}

		view, err := h.svc.Share(c.Request.Context(), chat.ShareInput{
			Kind:    kind,
			GroupID: req.GroupID,
			UserID:  middleware.GetUserID(c),
			ItemID:  req.ItemID,
			Content: req.Content,
		})
		if err != nil {
			h.respondDenied(c, err, req.GroupID, "message.share_"+string(kind))
			return
		}
		httputil.Created(c, view)
	}
}

// HideConversation 對自己隱藏對話.
func (h *MessageHandler) HideConversation(c *gin.Context) {
	view, err := h.svc.HideConversation(c.Request.Context(), c.Param("groupId"), middleware.GetUserID(c))
	if err != nil {
		httputil.RespondError(c, err)
		return
	}
	httputil.OK(c, view)
}

// DeleteHistory 清除自己看到的歷史消息.
func (h *MessageHandler) DeleteHistory(c *gin.Context) {
	view, err := h.svc.DeleteHistory(c.Request.Context(), c.Param("groupId"), middleware.GetUserID(c))
	if err != nil {
		httputil.RespondError(c, err)
		return
	}
	httputil.OK(c, view)
}

// respondDenied 權限錯誤寫入審計後再回應.
func (h *MessageHandler) respondDenied(c *gin.Context, err error, groupID, action string) {
	if h.auditor != nil && apperr.Is(err, apperr.KindForbidden) {
		h.auditor.LogAccessDenied(c.Request.Context(), middleware.GetUserID(c), groupID, action, err.Error())
		logger.Warning(c.Request.Context(), "拒絕寫入操作",
			logger.WithUserID(middleware.GetUserID(c)),
			logger.WithAction(action))
	}
	httputil.RespondError(c, err)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
