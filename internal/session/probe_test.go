package session

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func newFakeBrowser(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/devtools/browser/test"
		_ = json.NewEncoder(w).Encode(map[string]string{"webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/devtools/browser/test", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		_ = json.Unmarshal(data, &req)
		// An unrelated event first; the probe must skip it.
		_ = wsutil.WriteServerText(conn, []byte(`{"method":"Target.targetCreated","params":{}}`))
		resp, _ := json.Marshal(map[string]any{
			"id":     req.ID,
			"result": map[string]string{"product": "Chrome/130.0", "protocolVersion": "1.3"},
		})
		_ = wsutil.WriteServerText(conn, resp)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWSProbeVersion(t *testing.T) {
	srv := newFakeBrowser(t)
	p := NewWSProbe(srv.URL + "/")

	v, err := p.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	if v.Product != "Chrome/130.0" {
		t.Fatalf("Product = %q; want Chrome/130.0", v.Product)
	}
	if !p.IsAlive(context.Background()) {
		t.Fatal("IsAlive() = false; want true")
	}
}

func TestWSProbeDeadEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if NewWSProbe(srv.URL).IsAlive(context.Background()) {
		t.Fatal("IsAlive() = true for closed server; want false")
	}
}

type countingProber struct {
	calls  atomic.Int32
	failAt int32
}

func (p *countingProber) IsAlive(ctx context.Context) bool {
	n := p.calls.Add(1)
	return p.failAt == 0 || n < p.failAt
}

func TestKeepAliveStopsAfterFirstFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := &countingProber{failAt: 3}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := KeepAlive(ctx, p, time.Millisecond, logger)
	if !IsSession(err) {
		t.Fatalf("KeepAlive() error = %v; want SESSION error", err)
	}
	if got := p.calls.Load(); got != 3 {
		t.Fatalf("probe calls = %d; want 3", got)
	}
	if !strings.Contains(buf.String(), "keep-alive failed") {
		t.Fatalf("log missing failure line: %s", buf.String())
	}
}

func TestKeepAliveReturnsOnCancel(t *testing.T) {
	p := &countingProber{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- KeepAlive(ctx, p, time.Millisecond, nil) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("KeepAlive() error = %v; want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("KeepAlive did not return after cancel")
	}
}
