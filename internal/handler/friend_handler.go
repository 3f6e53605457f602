package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"edusocial/internal/transport/httpdto"
)

type FriendHandler struct {
	store FriendStore
}

func NewFriendHandler(store FriendStore) *FriendHandler {
	return &FriendHandler{store: store}
}

func (h *FriendHandler) Contacts(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
		"contacts": snap.Contacts,
		"loading":  snap.LoadingContacts,
	}))
}

// Refresh re-fetches contacts, requests and blocks; the first failure wins.
func (h *FriendHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	for _, fetch := range []func() error{
		func() error { return h.store.FetchContacts(ctx) },
		func() error { return h.store.FetchFriendRequests(ctx) },
		func() error { return h.store.FetchBlockedUsers(ctx) },
	} {
		if err := fetch(); err != nil {
			_ = c.Error(err)
			return
		}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(h.store.Snapshot()))
}

func (h *FriendHandler) Requests(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"requests": h.store.Snapshot().FriendRequests}))
}

func (h *FriendHandler) ReceivedRequests(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"requests": h.store.ReceivedFriendRequests()}))
}

func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req httpdto.FriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid addressee_id", httpdto.CodeInvalidRequest))
		return
	}
	created, err := h.store.SendFriendRequest(c.Request.Context(), req.AddresseeID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(created))
}

func (h *FriendHandler) Blocks(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
		"blocked_user_ids":    snap.BlockedUserIDs,
		"blocked_by_user_ids": snap.BlockedByUserIDs,
		"blocked_users":       snap.BlockedUsers,
	}))
}

// BlockStatus reports both directions of the block relationship with one
// user, which is what a chat view needs to disable its input.
func (h *FriendHandler) BlockStatus(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
		"user_id":    id,
		"blocked":    h.store.IsBlocked(id),
		"blocked_by": h.store.IsBlockedBy(id),
	}))
}

func (h *FriendHandler) Block(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.store.BlockUser(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	h.Blocks(c)
}

func (h *FriendHandler) Unblock(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.store.UnblockUser(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	h.Blocks(c)
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := parseInt64(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", httpdto.CodeInvalidRequest))
		return 0, false
	}
	return id, true
}
