package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Prober answers whether the browser is still reachable.
type Prober interface {
	IsAlive(ctx context.Context) bool
}

// WSProbe checks liveness with a Browser.getVersion round trip on its own
// short-lived websocket, independent of the tab connections.
type WSProbe struct {
	httpBase string
	client   *http.Client
	timeout  time.Duration
}

// NewWSProbe returns a probe for the DevTools endpoint at httpBase
// (e.g. "http://127.0.0.1:9222").
func NewWSProbe(httpBase string) *WSProbe {
	return &WSProbe{
		httpBase: strings.TrimRight(httpBase, "/"),
		client:   &http.Client{Timeout: 5 * time.Second},
		timeout:  5 * time.Second,
	}
}

// BrowserVersion is the reply to Browser.getVersion.
type BrowserVersion struct {
	Product         string `json:"product"`
	ProtocolVersion string `json:"protocolVersion"`
	UserAgent       string `json:"userAgent"`
}

func (p *WSProbe) IsAlive(ctx context.Context) bool {
	_, err := p.Version(ctx)
	return err == nil
}

// Version dials the browser websocket and performs one Browser.getVersion call.
func (p *WSProbe) Version(ctx context.Context) (*BrowserVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	wsURL, err := p.browserWSURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe: browser ws url: %w", err)
	}
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("probe: dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req, err := json.Marshal(struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
	}{ID: 1, Method: "Browser.getVersion"})
	if err != nil {
		return nil, fmt.Errorf("probe: marshal: %w", err)
	}
	if err := wsutil.WriteClientText(conn, req); err != nil {
		return nil, fmt.Errorf("probe: send: %w", err)
	}

	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			return nil, fmt.Errorf("probe: read: %w", err)
		}
		var msg struct {
			ID     int64          `json:"id"`
			Result BrowserVersion `json:"result"`
			Error  *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &msg) != nil || msg.ID != 1 {
			continue
		}
		if msg.Error != nil {
			return nil, fmt.Errorf("probe: cdp error %d: %s", msg.Error.Code, msg.Error.Message)
		}
		return &msg.Result, nil
	}
}

func (p *WSProbe) browserWSURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpBase+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("/json/version: HTTP %d", resp.StatusCode)
	}

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}
