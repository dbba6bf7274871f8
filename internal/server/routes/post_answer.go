package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/pipeline"

	"github.com/labstack/echo/v4"
)

// AnswerHandler answers a question about a document with one backend.
func AnswerHandler(c echo.Context) error {
	type answerBody struct {
		documentBody
		Question string `json:"question" validate:"required"`
		Backend  string `json:"backend" validate:"required"`
	}

	data := new(answerBody)
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

	res, err := pipelineFrom(c).Answer(c.Request().Context(), doc, data.Question, common.BackendID(data.Backend))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// AnswerAllHandler asks every requested backend and returns their answers
// together with similarity scores and word diffs.
func AnswerAllHandler(c echo.Context) error {
	type answerAllBody struct {
		documentBody
		Question string   `json:"question" validate:"required"`
		Backends []string `json:"backends" validate:"omitempty,dive,required"`
		Evidence bool     `json:"evidence"`
	}

	data := new(answerAllBody)
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

	opts := pipeline.AnswerAllOptions{WithEvidence: data.Evidence}
	for _, b := range data.Backends {
		opts.Backends = append(opts.Backends, common.BackendID(b))
	}

	res, err := pipelineFrom(c).AnswerAll(c.Request().Context(), doc, data.Question, opts)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
