package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"alumni-chat/config"
	"alumni-chat/controllers"
	"alumni-chat/middlewares"
	"alumni-chat/services"
	"alumni-chat/store"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Config *config.Config
	Log    zerolog.Logger
	Store  store.Store
	Tokens *services.TokenService
	Users  *services.UserService
	Chat   *services.ChatService
	WS     *services.WSManager
}

// RegisterRoutes builds the gin engine with every route and middleware.
func RegisterRoutes(d Dependencies) *gin.Engine {
	if d.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.Tracing(d.Config.ServiceName))
	r.Use(middlewares.Metrics())
	r.Use(middlewares.CORS(d.Config.CORSAllowedOrigins))
	r.Use(middlewares.RequestLogger(d.Log))

	registerCoreRoutes(r, d)

	ws := controllers.NewWSController(d.WS)
	r.GET("/ws", middlewares.WSAuth(d.Tokens, d.Store), ws.Handle)

	users := controllers.NewUserController(d.Users, d.Tokens)
	conversations := controllers.NewConversationController(d.Chat)
	messages := controllers.NewMessageController(d.Chat)

	api := r.Group("/api", middlewares.Timeout(d.Config.RequestTimeout))
	api.POST("/register", users.Register)
	api.POST("/login", users.Login)

	protected := api.Group("", middlewares.TokenAuthMiddleware(d.Tokens, d.Store))
	{
		protected.GET("/userinfo", users.GetUserInfo)

		chat := protected.Group("/chat")
		chat.POST("/conversations", conversations.CreateConversationHandler)
		chat.GET("/conversations", conversations.GetConversation)
		chat.DELETE("/conversations/:conversation_id", conversations.DeleteConversation)
		chat.GET("/conversations/:conversation_id/messages", messages.GetMessagesByConversationID)
		chat.POST("/conversations/:conversation_id/messages", messages.SendMessage)
	}

	return r
}

func registerCoreRoutes(r *gin.Engine, d Dependencies) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := d.Store.Ping(ctx); err != nil {
			d.Log.Warn().Err(err).Msg("readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
