package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/theracare_telehealth/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type RouterConfig struct {
	AllowedOrigins []string
	// Metrics is served on /metrics when set.
	Metrics prometheus.Gatherer
}

func SetupRouter(
	cfg RouterConfig,
	sessionController *SessionController,
	signalController *SignalController,
	iceController *ICEController,
	userController *UserController,
) *gin.Engine {
	router := gin.Default()
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		HeaderUserID,
		HeaderUserRole,
		HeaderUserName,
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(corsConfig))
	router.Use(IdentityMiddleware())

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(cfg.Metrics)))
	}

	// Browsers cannot set headers on a WebSocket handshake, so these routes
	// admit anonymous callers.
	if signalController != nil {
		router.GET("/ws/video/:roomID", signalController.JoinRoom)
		router.GET("/api/telehealth/rooms/:roomID/ws", signalController.JoinRoom)
	}

	api := router.Group("/api")
	api.Use(RequireIdentity())

	if userController != nil {
		users := api.Group("/users")
		users.POST("", userController.CreateUser)
		users.GET("/:userID", userController.GetUser)
	}

	telehealth := api.Group("/telehealth")

	if sessionController != nil {
		sessions := telehealth.Group("/sessions")
		sessions.POST("", sessionController.CreateSession)
		sessions.GET("", sessionController.ListSessions)
		sessions.GET("/upcoming", sessionController.UpcomingSessions)
		sessions.POST("/emergency", sessionController.CreateEmergency)
		sessions.GET("/:id", sessionController.GetSession)
		sessions.PATCH("/:id/notes", sessionController.UpdateNotes)
		sessions.POST("/:id/start", sessionController.StartSession)
		sessions.POST("/:id/end", sessionController.EndSession)
		sessions.POST("/:id/cancel", sessionController.CancelSession)

		telehealth.GET("/rooms/:roomID", sessionController.GetRoom)
	}

	if iceController != nil {
		telehealth.GET("/ice-servers", iceController.GetICEServers)
	}

	return router
}
