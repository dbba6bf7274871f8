package server

import (
	"github.com/OFFIS-RIT/crosscheck/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	apiRoutes.GET("/backends", routes.BackendsHandler)

	// Document routes
	apiRoutes.POST("/summarize", routes.SummarizeHandler)
	apiRoutes.POST("/answer", routes.AnswerHandler)
	apiRoutes.POST("/answer-all", routes.AnswerAllHandler)

	// Grounding routes
	apiRoutes.POST("/ground", routes.GroundHandler)
	apiRoutes.POST("/facts", routes.FactsHandler)
}
