package api

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/shotpost/internal/controller"
	"github.com/dgnsrekt/shotpost/internal/logsink"
)

func registerMiscHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type browserHealthOutput struct {
		Body controller.BrowserHealth
	}
	huma.Register(api, huma.Operation{OperationID: "browser-health", Method: http.MethodGet, Path: "/api/v1/browser/health", Summary: "Browser session liveness and open tabs", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*browserHealthOutput, error) {
			h, err := svc.BrowserHealth(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &browserHealthOutput{}
			out.Body = h
			return out, nil
		})

	type countersOutput struct {
		Body controller.CounterValues
	}
	huma.Register(api, huma.Operation{OperationID: "get-counters", Method: http.MethodGet, Path: "/api/v1/counters", Summary: "Current caption counters", Tags: []string{"Counters"}},
		func(ctx context.Context, input *struct{}) (*countersOutput, error) {
			c, err := svc.Counters(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &countersOutput{}
			out.Body = c
			return out, nil
		})

	type logsOutput struct {
		Body struct {
			Entries []logsink.Entry `json:"entries"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-logs", Method: http.MethodGet, Path: "/api/v1/logs", Summary: "Recent log records, oldest first", Tags: []string{"Logs"}},
		func(ctx context.Context, input *struct {
			Limit int `query:"limit" default:"200" minimum:"1" maximum:"1000" doc:"Maximum number of records"`
		}) (*logsOutput, error) {
			entries, err := svc.Logs(ctx, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &logsOutput{}
			out.Body.Entries = entries
			return out, nil
		})
}

var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { height: 100vh; margin: 0; display: flex; flex-direction: column; }
    #routes { font: 13px monospace; padding: 8px 16px; border-bottom: 1px solid #444; }
    #routes li { list-style: none; }
    #routes b { display: inline-block; width: 4em; }
  </style>
</head>
<body>
  <ul id="routes">
  {{- range .Routes}}
    <li><b>{{.Method}}</b> {{.Path}} <i>{{.Summary}}</i></li>
  {{- end}}
  </ul>
  <elements-api apiDescriptionUrl="/openapi.json" router="hash" layout="sidebar" tryItCredentialsPolicy="same-origin" darkMode />
</body>
</html>`))

type docsRoute struct {
	Method  string
	Path    string
	Summary string
}

// docsHandler renders the route index once, after every operation is
// registered.
func docsHandler(api huma.API, logger *slog.Logger) http.HandlerFunc {
	var (
		once sync.Once
		page []byte
	)
	return func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { page = renderDocs(api.OpenAPI(), logger) })
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(page); err != nil {
			logger.Debug("docs response write failed", "error", err)
		}
	}
}

func renderDocs(doc *huma.OpenAPI, logger *slog.Logger) []byte {
	var routes []docsRoute
	for path, item := range doc.Paths {
		if item.Get != nil {
			routes = append(routes, docsRoute{http.MethodGet, path, item.Get.Summary})
		}
		if item.Post != nil {
			routes = append(routes, docsRoute{http.MethodPost, path, item.Post.Summary})
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	title := "shotpost control API"
	if doc.Info != nil && doc.Info.Title != "" {
		title = doc.Info.Title
	}
	var buf bytes.Buffer
	if err := docsPage.Execute(&buf, struct {
		Title  string
		Routes []docsRoute
	}{title, routes}); err != nil {
		logger.Error("docs render failed", "error", err)
		return []byte(title)
	}
	return buf.Bytes()
}
