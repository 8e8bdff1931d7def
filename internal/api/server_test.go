package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/shotpost/internal/controller"
	"github.com/dgnsrekt/shotpost/internal/logsink"
	"github.com/dgnsrekt/shotpost/internal/orchestrator"
	"github.com/dgnsrekt/shotpost/internal/session"
)

type stubService struct {
	submitErr    error
	lastPath     string
	lastIGOnly   bool
	lastLimit    int
	taskErr      error
	healthResult controller.BrowserHealth
}

func (s *stubService) BrowserHealth(ctx context.Context) (controller.BrowserHealth, error) {
	return s.healthResult, nil
}

func (s *stubService) Counters(ctx context.Context) (controller.CounterValues, error) {
	return controller.CounterValues{Facebook: 3, Instagram: 7}, nil
}

func (s *stubService) ListTasks(ctx context.Context) (controller.TaskList, error) {
	return controller.TaskList{
		Running: []orchestrator.TaskStatus{},
		Finished: []orchestrator.Report{{
			TaskID: "t1",
			Final:  orchestrator.Done,
			States: []orchestrator.State{orchestrator.Idle, orchestrator.Done},
		}},
	}, nil
}

func (s *stubService) GetTask(ctx context.Context, id string) (controller.TaskDetail, error) {
	if s.taskErr != nil {
		return controller.TaskDetail{}, s.taskErr
	}
	return controller.TaskDetail{TaskID: id, State: orchestrator.PostingFB, Running: true}, nil
}

func (s *stubService) SubmitUpload(ctx context.Context, path string, instagramOnly bool) (controller.Submission, error) {
	s.lastPath, s.lastIGOnly = path, instagramOnly
	if s.submitErr != nil {
		return controller.Submission{}, s.submitErr
	}
	mode := orchestrator.ModeFull
	if instagramOnly {
		mode = orchestrator.ModeInstagram
	}
	return controller.Submission{TaskID: "t-new", Mode: mode, Path: path}, nil
}

func (s *stubService) Logs(ctx context.Context, limit int) ([]logsink.Entry, error) {
	s.lastLimit = limit
	return []logsink.Entry{{Time: time.Unix(0, 0), Level: "INFO", Message: "orchestrator state"}}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDocsListsRoutes(t *testing.T) {
	w := do(t, NewServer(&stubService{}, nil), http.MethodGet, "/docs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{
		"<title>shotpost control API</title>",
		"<b>POST</b> /api/v1/uploads/instagram <i>Stage a screenshot on Instagram only</i>",
		"<b>GET</b> /api/v1/tasks/{task_id}",
		`apiDescriptionUrl="/openapi.json"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("docs missing %q", want)
		}
	}
	if strings.Index(body, "/api/v1/counters") > strings.Index(body, "/api/v1/uploads") {
		t.Fatalf("docs routes not sorted by path")
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewServer(&stubService{submitErr: &controller.CodedError{Code: controller.CodeNotFound, Message: "no such file"}}, logger)

	do(t, h, http.MethodGet, "/health", "")
	do(t, h, http.MethodPost, "/api/v1/uploads", `{"path":"x.png"}`)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d; want 2: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "level=DEBUG") || !strings.Contains(lines[0], "path=/health") {
		t.Fatalf("health line = %q; want debug", lines[0])
	}
	if !strings.Contains(lines[1], "level=WARN") || !strings.Contains(lines[1], "status=404") {
		t.Fatalf("upload line = %q; want warn with 404", lines[1])
	}
}

func TestHealth(t *testing.T) {
	w := do(t, NewServer(&stubService{}, nil), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
}

func TestSubmitUpload(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, nil)

	w := do(t, h, http.MethodPost, "/api/v1/uploads", `{"path":"/shots/a.png"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var sub controller.Submission
	if err := json.Unmarshal(w.Body.Bytes(), &sub); err != nil {
		t.Fatal(err)
	}
	if sub.TaskID != "t-new" || svc.lastPath != "/shots/a.png" || svc.lastIGOnly {
		t.Fatalf("submission = %+v, path = %q, igOnly = %v", sub, svc.lastPath, svc.lastIGOnly)
	}

	w = do(t, h, http.MethodPost, "/api/v1/uploads/instagram", `{"path":"/shots/b.jpg"}`)
	if w.Code != http.StatusAccepted || !svc.lastIGOnly {
		t.Fatalf("instagram upload status = %d, igOnly = %v", w.Code, svc.lastIGOnly)
	}
}

func TestSubmitUploadRequiresPath(t *testing.T) {
	w := do(t, NewServer(&stubService{}, nil), http.MethodPost, "/api/v1/uploads", `{}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &controller.CodedError{Code: controller.CodeValidation, Message: "bad"}, http.StatusBadRequest},
		{"not found", &controller.CodedError{Code: controller.CodeNotFound, Message: "gone"}, http.StatusNotFound},
		{"browser down", &controller.CodedError{Code: controller.CodeBrowserUnavailable, Message: "down"}, http.StatusServiceUnavailable},
		{"rate limited", &controller.CodedError{Code: controller.CodeRateLimited, Message: "slow down"}, http.StatusTooManyRequests},
		{"timeout", session.TimeoutError("fb.composer_trigger", time.Second), http.StatusGatewayTimeout},
		{"session", session.SessionError("lost", nil), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, NewServer(&stubService{submitErr: tt.err}, nil), http.MethodPost, "/api/v1/uploads", `{"path":"x.png"}`)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestTasksAndLogs(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, nil)

	w := do(t, h, http.MethodGet, "/api/v1/tasks", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"final":"Done"`) {
		t.Fatalf("GET /api/v1/tasks = %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/v1/tasks/abc", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"state":"PostingFB"`) {
		t.Fatalf("GET /api/v1/tasks/abc = %d %s", w.Code, w.Body.String())
	}

	svc.taskErr = &controller.CodedError{Code: controller.CodeNotFound, Message: "task abc not found"}
	if w = do(t, h, http.MethodGet, "/api/v1/tasks/abc", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing task status = %d, want 404", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/v1/logs?limit=5", "")
	if w.Code != http.StatusOK || svc.lastLimit != 5 {
		t.Fatalf("GET /api/v1/logs status = %d, limit = %d", w.Code, svc.lastLimit)
	}

	w = do(t, h, http.MethodGet, "/api/v1/counters", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ig":7`) {
		t.Fatalf("GET /api/v1/counters = %d %s", w.Code, w.Body.String())
	}
}
