// Package api serves the HTTP control surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/shotpost/internal/controller"
	"github.com/dgnsrekt/shotpost/internal/logsink"
	"github.com/dgnsrekt/shotpost/internal/session"
)

type Service interface {
	BrowserHealth(ctx context.Context) (controller.BrowserHealth, error)
	Counters(ctx context.Context) (controller.CounterValues, error)
	ListTasks(ctx context.Context) (controller.TaskList, error)
	GetTask(ctx context.Context, id string) (controller.TaskDetail, error)
	SubmitUpload(ctx context.Context, path string, instagramOnly bool) (controller.Submission, error)
	Logs(ctx context.Context, limit int) ([]logsink.Entry, error)
}

// NewServer routes the control API. A nil logger uses slog.Default.
func NewServer(svc Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("shotpost control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	registerMiscHandlers(api, svc)
	registerUploadHandlers(api, svc)
	router.Get("/docs", docsHandler(api, logger))

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *controller.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case controller.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case controller.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case controller.CodeBrowserUnavailable:
			return huma.Error503ServiceUnavailable(coded.Message)
		case controller.CodeRateLimited:
			return huma.Error429TooManyRequests(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	var sessErr *session.CodedError
	if errors.As(err, &sessErr) {
		switch sessErr.Code {
		case session.CodeTimeout:
			return huma.Error504GatewayTimeout(sessErr.Message)
		default:
			return huma.Error502BadGateway(fmt.Sprintf("%s: %s", sessErr.Code, sessErr.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
