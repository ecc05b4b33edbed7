package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"alumni-chat/services"
	"alumni-chat/utils"
)

type WSController struct {
	manager *services.WSManager
}

func NewWSController(manager *services.WSManager) *WSController {
	return &WSController{manager: manager}
}

// Handle serves a websocket for the user authenticated by middlewares.WSAuth.
func (ctl *WSController) Handle(ctx *gin.Context) {
	userID := ctx.GetString("user_id")
	if userID == "" {
		utils.RespondFailure(ctx, http.StatusUnauthorized, "Not authorized, no token")
		return
	}
	ctl.manager.HandleWebSocket(ctx, userID)
}
