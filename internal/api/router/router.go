package router

import (
	"github.com/cuongbtq/offer-importer/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware(deps.Logger))
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	h := handler.New(deps)

	r.GET("/health", h.Health)

	// Path used by the dashboard before the v1 prefix existed.
	r.POST("/api/connections/:id/detect-fields", h.DetectFields)

	v1 := r.Group("/api/v1")
	{
		connections := v1.Group("/connections")
		{
			connections.GET("", h.ListConnections)
			connections.POST("", h.CreateConnection)
			connections.GET("/:id", h.GetConnection)
			connections.PUT("/:id", h.UpdateConnection)
			connections.DELETE("/:id", h.DeleteConnection)

			connections.POST("/:id/detect-fields", h.DetectFields)

			connections.GET("/:id/mappings", h.ListMappings)
			connections.PUT("/:id/mappings", h.ReplaceMappings)
			connections.POST("/:id/mappings/suggest", h.SuggestMappings)

			connections.POST("/:id/imports", h.CreateImport)
			connections.POST("/:id/reprocess", h.Reprocess)
		}

		v1.GET("/imports/:run_id", h.GetImportRun)

		offers := v1.Group("/offers")
		{
			offers.GET("", h.ListOffers)
			offers.POST("/status-sweep", h.StatusSweep)
		}
	}

	return r
}
