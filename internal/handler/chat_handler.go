package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"edusocial/internal/domain"
	"edusocial/internal/transport/httpdto"
)

type ChatHandler struct {
	store ChatStore
}

func NewChatHandler(store ChatStore) *ChatHandler {
	return &ChatHandler{store: store}
}

func (h *ChatHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(h.store.Snapshot()))
}

func (h *ChatHandler) Conversations(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
		"conversations":          snap.Conversations,
		"active_conversation_id": snap.ActiveConversationID,
		"group_count":            snap.GroupCount,
		"loading":                snap.LoadingConversations,
	}))
}

func (h *ChatHandler) Refresh(c *gin.Context) {
	if err := h.store.FetchConversations(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	h.Conversations(c)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	if err := h.store.MarkConversationAsRead(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"conversation_id": c.Param("id")}))
}

func (h *ChatHandler) Delete(c *gin.Context) {
	if err := h.store.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"conversation_id": c.Param("id")}))
}

func (h *ChatHandler) SetActive(c *gin.Context) {
	var req httpdto.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", httpdto.CodeInvalidRequest))
		return
	}
	h.store.SetActiveConversation(req.ConversationID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"active_conversation_id": req.ConversationID}))
}

func (h *ChatHandler) StartChat(c *gin.Context) {
	var req httpdto.StartChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid friend_id", httpdto.CodeInvalidRequest))
		return
	}
	id, err := h.store.StartChat(c.Request.Context(), req.FriendID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.StartChatResponse{ConversationID: id}))
}

func (h *ChatHandler) Messages(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
		"conversation_id":       snap.ActiveConversationID,
		"messages":              snap.Messages,
		"last_read_message_ids": snap.LastReadMessageIDs,
		"loading":               snap.LoadingMessages,
	}))
}

func (h *ChatHandler) LoadMessages(c *gin.Context) {
	if err := h.store.LoadMessages(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	h.Messages(c)
}

func (h *ChatHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", httpdto.CodeInvalidRequest))
		return
	}
	var file *domain.Attachment
	if req.FileAttachment != nil && req.FileAttachment.URL != "" {
		file = req.FileAttachment
	}
	if err := h.store.SendMessage(c.Request.Context(), req.Content, file); err != nil {
		_ = c.Error(err)
		return
	}
	h.Messages(c)
}
