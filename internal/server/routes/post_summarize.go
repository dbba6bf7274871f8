package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"

	"github.com/labstack/echo/v4"
)

// SummarizeHandler summarizes a document with one backend.
func SummarizeHandler(c echo.Context) error {
	type summarizeBody struct {
		documentBody
		Backend string `json:"backend" validate:"required"`
	}

	data := new(summarizeBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	doc, err := loadDocument(c, data.documentBody)
	if err != nil {
		return errorResponse(c, err)
	}

	res, err := pipelineFrom(c).Summarize(c.Request().Context(), doc, common.BackendID(data.Backend))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
