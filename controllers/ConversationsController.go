package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"alumni-chat/middlewares"
	"alumni-chat/models"
	"alumni-chat/utils"
)

type ConversationService interface {
	GetOrCreateConversation(ctx context.Context, requesterID, recipientID string) (*models.ConversationView, error)
	ListConversations(ctx context.Context, userID string) ([]models.ConversationView, error)
	DeactivateConversation(ctx context.Context, conversationID, userID string) error
}

type ConversationController struct {
	conversations ConversationService
}

func NewConversationController(conversations ConversationService) *ConversationController {
	return &ConversationController{conversations: conversations}
}

// GetConversation lists the caller's conversations that already have messages.
func (ctl *ConversationController) GetConversation(c *gin.Context) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized")
		return
	}

	conversations, err := ctl.conversations.ListConversations(c.Request.Context(), user.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, conversations, nil)
}

// CreateConversationHandler opens or returns the conversation with recipient_id.
func (ctl *ConversationController) CreateConversationHandler(c *gin.Context) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized")
		return
	}

	var input struct {
		RecipientID string `json:"recipient_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, "Recipient ID is required")
		return
	}

	conversation, err := ctl.conversations.GetOrCreateConversation(c.Request.Context(), user.ID, input.RecipientID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, conversation, nil)
}

// DeleteConversation hides the conversation until it is opened again.
func (ctl *ConversationController) DeleteConversation(c *gin.Context) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized")
		return
	}

	conversationID := c.Param("conversation_id")
	if err := ctl.conversations.DeactivateConversation(c.Request.Context(), conversationID, user.ID); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"conversation_id": conversationID, "is_active": false}, nil)
}
