package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/whatsapp-billing/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "whatsapp-billing-api",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "whatsapp-billing-api",
		})
	})

	messageHandler := handler.NewMessageHandler(deps)
	contextHandler := handler.NewContextHandler(deps)
	runHandler := handler.NewRunHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		messages := v1.Group("/messages")
		{
			// GET /api/v1/messages - List message log entries
			messages.GET("", messageHandler.ListMessages)

			// GET /api/v1/messages/:message_id - Get one entry
			messages.GET("/:message_id", messageHandler.GetMessage)
		}

		contexts := v1.Group("/context")
		{
			// POST /api/v1/context/initialize - Open a conversation window
			contexts.POST("/initialize", contextHandler.InitializeWindow)

			// POST /api/v1/context/sweep - Drop expired windows
			contexts.POST("/sweep", contextHandler.SweepWindows)

			// GET /api/v1/context/:phone_number - Check a window
			contexts.GET("/:phone_number", contextHandler.CheckWindow)
		}

		harvest := v1.Group("/harvest")
		{
			// POST /api/v1/harvest/invoices - Sweep portal invoices
			harvest.POST("/invoices", runHandler.HarvestInvoices)

			// POST /api/v1/harvest/payrolls - Sweep portal payrolls
			harvest.POST("/payrolls", runHandler.HarvestPayrolls)
		}

		// POST /api/v1/deliveries/run - Drain a period's pending jobs
		v1.POST("/deliveries/run", runHandler.RunDelivery)
	}

	return r
}
