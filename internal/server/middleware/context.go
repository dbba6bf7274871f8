package middleware

import (
	"context"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/pipeline"

	"github.com/labstack/echo/v4"
)

// Pipeline is the part of *pipeline.Pipeline the handlers use.
type Pipeline interface {
	Backends() []common.BackendID
	Load(ctx context.Context, source string) (common.Document, error)
	Summarize(ctx context.Context, doc common.Document, backend common.BackendID) (pipeline.Response, error)
	Answer(ctx context.Context, doc common.Document, question string, backend common.BackendID) (pipeline.Response, error)
	AnswerAll(ctx context.Context, doc common.Document, question string, opts pipeline.AnswerAllOptions) (pipeline.Consensus, error)
	Ground(ctx context.Context, text string) (pipeline.Grounding, error)
	Facts(ctx context.Context, entities []string) ([]common.Triple, error)
}

type App struct {
	Pipeline Pipeline
}

type AppContext struct {
	echo.Context
	App *App
}

// AppContextMiddleware makes app available to handlers through AppContext.
func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
