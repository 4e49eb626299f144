// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.HandleHealth)

	datasetGroup := e.Group("/api/dataset")
	datasetGroup.GET("", h.HandleGetDataset)
	datasetGroup.GET("/columns", h.HandleGetColumns)

	runGroup := e.Group("/api/run")
	runGroup.GET("/report", h.HandleGetReport)
	runGroup.GET("/aggregation", h.HandleGetAggregation)
	runGroup.POST("/refresh", h.HandleRefresh)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
}
