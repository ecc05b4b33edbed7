package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"alumni-chat/models"
	"alumni-chat/services"
)

// RespondSuccess writes {"success":true,"data":...}. meta is added when not nil.
func RespondSuccess(c *gin.Context, data any, meta gin.H) {
	RespondSuccessWithStatus(c, http.StatusOK, data, meta)
}

func RespondSuccessWithStatus(c *gin.Context, status int, data any, meta gin.H) {
	body := gin.H{"success": true, "data": data}
	if meta != nil {
		body["meta"] = meta
	}
	c.JSON(status, body)
}

// RespondFailure writes {"success":false,"message":...} and aborts the chain.
func RespondFailure(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// RespondError maps domain errors to HTTP statuses. Anything unknown is a
// generic 500 so storage details never reach the client.
func RespondError(c *gin.Context, err error) {
	status, message := StatusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	RespondFailure(c, status, message)
}

// StatusFor returns the HTTP status and client-safe message for err.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrConversationNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, models.ErrNotParticipant):
		return http.StatusForbidden, "You are not part of this conversation"
	case errors.Is(err, models.ErrSelfConversation):
		return http.StatusForbidden, "You cannot start a conversation with yourself"
	case errors.Is(err, models.ErrEmptyMessage):
		return http.StatusBadRequest, "Message text is required"
	case errors.Is(err, models.ErrMessageTooLong):
		return http.StatusBadRequest, "Message text is too long"
	case errors.Is(err, models.ErrEmailTaken):
		return http.StatusConflict, "Email already registered"
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, services.ErrInvalidToken):
		return http.StatusUnauthorized, "Not authorized, token failed"
	default:
		return http.StatusInternalServerError, "Server error"
	}
}
