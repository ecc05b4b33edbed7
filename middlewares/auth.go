package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"alumni-chat/models"
	"alumni-chat/services"
	"alumni-chat/store"
	"alumni-chat/utils"
)

// UserKey is the gin context key holding the authenticated *models.User.
const UserKey = "user"

// TokenParser verifies an access token and returns its user id.
type TokenParser interface {
	ParseToken(raw string) (string, error)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// TokenAuthMiddleware authenticates the request and stores the user under UserKey.
func TokenAuthMiddleware(tokens TokenParser, users store.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := BearerToken(c)
		if raw == "" {
			utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		userID, err := tokens.ParseToken(raw)
		if err != nil {
			utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		user, err := users.FindUserByID(c.Request.Context(), userID)
		if errors.Is(err, models.ErrUserNotFound) {
			utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized, user not found")
			return
		}
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user set by TokenAuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// WSAuth is the handshake check for the websocket route. The token comes from
// the "token" query parameter or the Authorization header. A request without
// a valid token, or whose user no longer exists, is refused before upgrading.
func WSAuth(tokens TokenParser, users store.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("token")
		if raw == "" {
			raw = BearerToken(c)
		}
		userID, err := tokens.ParseToken(raw)
		if err != nil {
			recordRejectedHandshake()
			utils.RespondError(c, services.ErrInvalidToken)
			return
		}

		user, err := users.FindUserByID(c.Request.Context(), userID)
		if errors.Is(err, models.ErrUserNotFound) {
			recordRejectedHandshake()
			utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized, user not found")
			return
		}
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		c.Set(UserKey, user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}
