package http

import (
	"github.com/gin-gonic/gin"

	"documind-backend/internal/bootstrap"
	"documind-backend/internal/transport/http/handler"
	"documind-backend/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.AttachTraceContext(),
		middleware.RequestLogger(app.Log),
		middleware.CORS(app.Config.CORS.AllowOrigins),
	)

	rabbitPing := handler.Dependency{Name: "rabbitmq"}
	if app.Publisher != nil {
		rabbitPing.Ping = app.Publisher.Ping
	}
	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt,
		handler.Dependency{Name: "database", Ping: app.PingDatabase},
		handler.Dependency{Name: "redis", Ping: app.PingRedis},
		handler.Dependency{Name: "qdrant", Ping: app.Vectors.Ping},
		handler.Dependency{Name: "storage", Ping: app.Objects.Ping},
		rabbitPing,
	)
	router.GET("/healthz", healthHandler.Check)

	documentHandler := handler.NewDocumentHandler(app.Documents, app.Config.MaxUploadBytes(), app.Log)
	chatHandler := handler.NewChatHandler(app.Chat, app.Log)

	documents := router.Group("/documents")
	documents.Use(middleware.Authenticate(app.Identity, app.Log))
	documents.POST("/upload", documentHandler.Upload)
	documents.GET("/list", documentHandler.List)
	documents.GET("/:id", documentHandler.Get)
	documents.DELETE("/:id", documentHandler.Delete)
	documents.POST("/:id/reindex", documentHandler.Reindex)
	documents.POST("/chat/:id", chatHandler.Ask)
	documents.GET("/chat/:id/history", chatHandler.History)

	return router
}
