package routes

import (
	"fitness-gateway-api/internal/handlers"
	"fitness-gateway-api/internal/middleware"
	"fitness-gateway-api/internal/offline"
	"fitness-gateway-api/internal/realtime"

	"github.com/gin-gonic/gin"
)

// Deps bundles everything the router wires together.
type Deps struct {
	Diagnostics *handlers.Diagnostics
	Controller  *offline.Controller
	Hub         *realtime.Hub
}

// Setup builds the gateway's route tree: health check, protected diagnostics
// endpoints, the event websocket and the catch-all interception route.
func Setup(deps Deps) *gin.Engine {
	// Create a new GIN Router
	ginRouter := gin.Default()

	// CORS middleware (for frontend integration)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check endpoint
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "ok",
			"lifecycle": deps.Controller.State().String(),
		})
	})

	// Event stream (cache lifecycle, sync replay outcomes)
	ginRouter.GET("/internal/events", handlers.EventsHandler(deps.Hub))

	// Protected diagnostics routes (authentication required)
	internalRoutes := ginRouter.Group("/internal")
	internalRoutes.Use(middleware.JWTAuthMiddleware())
	{
		internalRoutes.GET("/cache/stats", deps.Diagnostics.Stats)
		internalRoutes.POST("/cache/invalidate", deps.Diagnostics.Invalidate)
		internalRoutes.POST("/cache/clear", deps.Diagnostics.Clear)
		internalRoutes.POST("/sync/flush", deps.Diagnostics.SyncFlush)
	}

	// Everything else is intercepted by the offline cache controller
	ginRouter.NoRoute(deps.Controller.Handle)

	return ginRouter
}
