package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GroundHandler extracts the entities of a text and returns the stored
// facts about them.
func GroundHandler(c echo.Context) error {
	type groundBody struct {
		Text string `json:"text" validate:"required"`
	}

	data := new(groundBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	res, err := pipelineFrom(c).Ground(c.Request().Context(), data.Text)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// FactsHandler returns the stored facts about the given entities.
func FactsHandler(c echo.Context) error {
	type factsBody struct {
		Entities []string `json:"entities" validate:"required,min=1,dive,required"`
	}

	data := new(factsBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	facts, err := pipelineFrom(c).Facts(c.Request().Context(), data.Entities)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"facts": facts})
}

// BackendsHandler lists the configured backends.
func BackendsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"backends": pipelineFrom(c).Backends()})
}
