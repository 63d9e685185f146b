package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jlabarca/ghost/internal/ghosttypes"
)

// WebSocketFallback is a DirectCommunication implementation used when the
// Bus is unreachable, dialing the daemon's WebSocket endpoint directly
// (spec.md §4.3's "fallback transport"). One connection serves every
// SendCommandWithResponse call serially; concurrent callers queue behind
// callMu rather than opening a socket per call.
type WebSocketFallback struct {
	url        string
	dialer     *websocket.Dialer
	httpClient *http.Client

	callMu sync.Mutex
	mu     sync.Mutex
	conn   *websocket.Conn
}

// NewWebSocketFallback targets url (e.g. "ws://127.0.0.1:4870/ghost/ws").
func NewWebSocketFallback(url string) *WebSocketFallback {
	return &WebSocketFallback{
		url:        url,
		dialer:     &websocket.Dialer{HandshakeTimeout: pingDeadline},
		httpClient: &http.Client{Timeout: pingDeadline},
	}
}

func (f *WebSocketFallback) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		return f.conn, nil
	}
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial fallback websocket: %w", err)
	}
	f.conn = conn
	return conn, nil
}

func (f *WebSocketFallback) dropConn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

// TestConnection reports whether the daemon's HTTP health endpoint
// answers within pingDeadline, without establishing the WebSocket.
func (f *WebSocketFallback) TestConnection(ctx context.Context) bool {
	healthURL := httpHealthURL(f.url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SendCommandWithResponse writes cmd as a single JSON frame and waits for
// the matching JSON response frame.
func (f *WebSocketFallback) SendCommandWithResponse(ctx context.Context, cmd ghosttypes.SystemCommand) (ghosttypes.CommandResponse, error) {
	f.callMu.Lock()
	defer f.callMu.Unlock()

	conn, err := f.ensureConn(ctx)
	if err != nil {
		return ghosttypes.CommandResponse{}, err
	}

	deadline := time.Now().Add(commandDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(cmd); err != nil {
		f.dropConn()
		return ghosttypes.CommandResponse{}, fmt.Errorf("write command: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	var resp ghosttypes.CommandResponse
	if err := conn.ReadJSON(&resp); err != nil {
		f.dropConn()
		return ghosttypes.CommandResponse{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Close releases the underlying WebSocket connection, if any.
func (f *WebSocketFallback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}

func httpHealthURL(wsURL string) string {
	switch {
	case len(wsURL) >= 5 && wsURL[:5] == "ws://":
		return "http://" + wsURL[5:] + "/health"
	case len(wsURL) >= 6 && wsURL[:6] == "wss://":
		return "https://" + wsURL[6:] + "/health"
	default:
		return wsURL + "/health"
	}
}
