package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"alumni-chat/middlewares"
	"alumni-chat/models"
	"alumni-chat/utils"
)

type MessageService interface {
	ListMessages(ctx context.Context, conversationID, requesterID string) ([]models.MessageView, error)
	SendMessage(ctx context.Context, conversationID, senderID, text string) (*models.MessageView, error)
}

type MessageController struct {
	messages MessageService
}

func NewMessageController(messages MessageService) *MessageController {
	return &MessageController{messages: messages}
}

// SendMessage appends a message and answers 201 with the stored message.
func (ctl *MessageController) SendMessage(c *gin.Context) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized")
		return
	}

	var input struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	message, err := ctl.messages.SendMessage(c.Request.Context(), c.Param("conversation_id"), user.ID, input.Text)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccessWithStatus(c, http.StatusCreated, message, nil)
}

// GetMessagesByConversationID returns the conversation history oldest first.
func (ctl *MessageController) GetMessagesByConversationID(c *gin.Context) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized")
		return
	}

	messages, err := ctl.messages.ListMessages(c.Request.Context(), c.Param("conversation_id"), user.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, messages, gin.H{"count": len(messages)})
}
