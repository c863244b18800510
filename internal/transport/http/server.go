package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "github.com/Johnnas12/chatbot-ui-galaxy/internal/app"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/bootstrap"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/cache"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/galaxy"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/localmodel"
	rabbitmqClient "github.com/Johnnas12/chatbot-ui-galaxy/internal/platform/rabbitmq"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/repository"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/transport/http/handler"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	// The SPA owns client-side routing; every app path serves the same
	// document, including the catch-all.
	for _, route := range []string{"/", "/collections", "/histories", "/galaxy-histories", "/login", "/signup"} {
		router.StaticFile(route, "web/index.html")
	}
	router.NoRoute(func(c *gin.Context) {
		c.File("web/index.html")
	})

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)

	sessionCache := cache.NewSessionCache(
		app.Redis,
		time.Duration(app.Config.Redis.SessionTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.SessionDirtyTTLSeconds)*time.Second,
	)
	galaxyStore := cache.NewGalaxyStore(app.Redis)
	publisher := rabbitmqClient.NewSessionEventPublisher(app.MQConn, app.Config.RabbitMQ.SessionEventQueue)

	modelClient := localmodel.NewClient(
		app.Config.Model.BaseURL,
		app.Config.Model.TopK,
		time.Duration(app.Config.Model.TimeoutSeconds)*time.Second,
	)
	galaxyClient := galaxy.NewClient(
		time.Duration(app.Config.Galaxy.RequestTimeoutSeconds)*time.Second,
		time.Duration(app.Config.Galaxy.DownloadTimeoutSeconds)*time.Second,
	)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(sessionRepo, publisher, sessionCache, modelClient, app.Registry, app.Logger)
	galaxyService := appsvc.NewGalaxyService(galaxyClient, galaxyStore, app.Logger)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService, app.Hub)
	galaxyHandler := handler.NewGalaxyHandler(galaxyService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/signup", authHandler.SignUp)
	authGroup.POST("/signin", authHandler.SignIn)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.POST("/sessions/:id/select", chatHandler.SelectSession)
	chatGroup.PATCH("/sessions/:id/title", chatHandler.UpdateTitle)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.POST("/messages", chatHandler.SendMessage)
	chatGroup.GET("/sessions/events", chatHandler.StreamEvents)

	galaxyGroup := v1.Group("/galaxy")
	galaxyGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	galaxyGroup.POST("/connect", galaxyHandler.Connect)
	galaxyGroup.POST("/disconnect", galaxyHandler.Disconnect)
	galaxyGroup.GET("/status", galaxyHandler.Status)
	galaxyGroup.GET("/histories", galaxyHandler.ListHistories)
	galaxyGroup.POST("/histories", galaxyHandler.CreateHistory)
	galaxyGroup.GET("/histories/:id/contents", galaxyHandler.HistoryContents)
	galaxyGroup.POST("/histories/:id/select", galaxyHandler.SelectHistory)
	galaxyGroup.POST("/histories/:id/upload-file", galaxyHandler.UploadFile)
	galaxyGroup.POST("/histories/:id/upload-collection", galaxyHandler.UploadCollection)
	galaxyGroup.GET("/download", galaxyHandler.Download)

	return router
}
