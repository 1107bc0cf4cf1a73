package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/vantus-ai/webpilot/config"
	"github.com/vantus-ai/webpilot/types"
)

// cdpMessage is one frame of the DevTools protocol, request or response.
type cdpMessage struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    any             `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *cdpError) Error() string {
	return fmt.Sprintf("devtools error %d: %s", e.Code, e.Message)
}

// CDPDriver drives a Chromium-family browser over the DevTools protocol.
// It owns the browser process it launched and the WebSocket connection to
// its debugging endpoint.
type CDPDriver struct {
	conn      *websocket.Conn
	proc      *exec.Cmd
	debugPort int
	logger    *zap.Logger

	mu        sync.Mutex
	nextID    int64
	pending   map[int64]chan cdpMessage
	sessionID string
	closed    bool
	done      chan struct{}
}

// browserCandidates are tried in order when no explicit path is configured.
var browserCandidates = []string{"google-chrome", "chromium", "chromium-browser", "google-chrome-stable"}

func findBrowserBinary() (string, error) {
	if p := os.Getenv("WEBPILOT_BROWSER_PATH"); p != "" {
		return p, nil
	}
	for _, name := range browserCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", types.NewError(types.ErrBrowserLaunch, "no chromium-family browser found on PATH")
}

// LaunchChrome starts a browser with a remote debugging port and connects
// to it. It satisfies LaunchFunc.
func LaunchChrome(ctx context.Context, cfg config.BrowserConfig) (Driver, error) {
	return launchChrome(ctx, cfg, zap.NewNop())
}

// NewLaunchFunc returns a LaunchFunc that logs through the given logger.
func NewLaunchFunc(logger *zap.Logger) LaunchFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, cfg config.BrowserConfig) (Driver, error) {
		return launchChrome(ctx, cfg, logger)
	}
}

func launchChrome(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	bin, err := findBrowserBinary()
	if err != nil {
		return nil, err
	}

	port, err := freePort()
	if err != nil {
		return nil, types.NewError(types.ErrBrowserLaunch, "no free debugging port").WithCause(err)
	}

	userDataDir := cfg.UserDataDir
	if userDataDir == "" {
		userDataDir, err = os.MkdirTemp("", "webpilot-profile-*")
		if err != nil {
			return nil, types.NewError(types.ErrBrowserLaunch, "cannot create browser profile dir").WithCause(err)
		}
	}

	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--user-data-dir=" + userDataDir,
		"--no-first-run",
		"--no-default-browser-check",
		fmt.Sprintf("--window-size=%d,%d", cfg.WindowWidth, cfg.WindowHeight),
	}
	if cfg.Headless {
		args = append(args, "--headless=new")
	}
	if cfg.DisableSecurity {
		args = append(args, "--disable-web-security")
	}
	if cfg.Proxy != "" {
		args = append(args, "--proxy-server="+cfg.Proxy)
	}
	args = append(args, "about:blank")

	proc := exec.Command(bin, args...)
	if err := proc.Start(); err != nil {
		return nil, types.NewError(types.ErrBrowserLaunch, "browser process failed to start").WithCause(err)
	}

	wsURL, err := debuggerURL(ctx, port)
	if err != nil {
		_ = proc.Process.Kill()
		return nil, types.NewError(types.ErrBrowserLaunch, "debugging endpoint did not come up").WithCause(err)
	}

	d, err := ConnectCDP(ctx, wsURL, logger)
	if err != nil {
		_ = proc.Process.Kill()
		return nil, err
	}
	d.proc = proc
	d.debugPort = port
	d.logger.Info("browser launched",
		zap.String("binary", bin),
		zap.Int("pid", proc.Process.Pid),
		zap.Int("debug_port", port))
	return d, nil
}

// Attach connects to a browser that is already listening on a local
// debugging port, without taking ownership of its process.
func Attach(ctx context.Context, port int, logger *zap.Logger) (*CDPDriver, error) {
	wsURL, err := debuggerURL(ctx, port)
	if err != nil {
		return nil, types.NewError(types.ErrBrowserLaunch, "no browser listening on debugging port").WithCause(err)
	}
	d, err := ConnectCDP(ctx, wsURL, logger)
	if err != nil {
		return nil, err
	}
	d.debugPort = port
	return d, nil
}

// ConnectCDP attaches to an already-running browser's DevTools endpoint and
// opens a page session on a fresh target.
func ConnectCDP(ctx context.Context, wsURL string, logger *zap.Logger) (*CDPDriver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, types.NewError(types.ErrBrowserLaunch, "websocket connect to devtools failed").WithCause(err)
	}
	// Screenshots exceed the default 32 KiB read limit.
	conn.SetReadLimit(64 * 1024 * 1024)

	d := &CDPDriver{
		conn:    conn,
		logger:  logger.With(zap.String("component", "cdp_driver")),
		pending: make(map[int64]chan cdpMessage),
		done:    make(chan struct{}),
	}
	go d.readLoop()

	if err := d.openSession(ctx); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "setup failed")
		return nil, err
	}
	return d, nil
}

func (d *CDPDriver) openSession(ctx context.Context) error {
	var created struct {
		TargetID string `json:"targetId"`
	}
	if err := d.call(ctx, "Target.createTarget", map[string]any{"url": "about:blank"}, &created); err != nil {
		return types.NewError(types.ErrBrowserLaunch, "cannot create browser target").WithCause(err)
	}

	var attached struct {
		SessionID string `json:"sessionId"`
	}
	err := d.call(ctx, "Target.attachToTarget", map[string]any{
		"targetId": created.TargetID,
		"flatten":  true,
	}, &attached)
	if err != nil {
		return types.NewError(types.ErrBrowserLaunch, "cannot attach to browser target").WithCause(err)
	}

	d.mu.Lock()
	d.sessionID = attached.SessionID
	d.mu.Unlock()

	if err := d.call(ctx, "Page.enable", nil, nil); err != nil {
		return types.NewError(types.ErrBrowserLaunch, "cannot enable page domain").WithCause(err)
	}
	return nil
}

func (d *CDPDriver) readLoop() {
	for {
		_, data, err := d.conn.Read(context.Background())
		if err != nil {
			d.mu.Lock()
			for id, ch := range d.pending {
				close(ch)
				delete(d.pending, id)
			}
			d.mu.Unlock()
			select {
			case <-d.done:
			default:
				d.logger.Debug("devtools connection closed", zap.Error(err))
			}
			return
		}

		var msg cdpMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			d.logger.Warn("undecodable devtools frame", zap.Error(err))
			continue
		}
		if msg.ID == 0 {
			// Protocol event; nothing subscribes to these yet.
			continue
		}

		d.mu.Lock()
		ch, ok := d.pending[msg.ID]
		if ok {
			delete(d.pending, msg.ID)
		}
		d.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

// call sends one protocol command within the page session and decodes the
// result into out when out is non-nil.
func (d *CDPDriver) call(ctx context.Context, method string, params any, out any) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("devtools: driver is closed")
	}
	d.nextID++
	id := d.nextID
	ch := make(chan cdpMessage, 1)
	d.pending[id] = ch
	sessionID := d.sessionID
	d.mu.Unlock()

	body, err := json.Marshal(cdpMessage{ID: id, Method: method, Params: params, SessionID: sessionID})
	if err != nil {
		return err
	}
	if err := d.conn.Write(ctx, websocket.MessageText, body); err != nil {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		return fmt.Errorf("devtools write: %w", err)
	}

	select {
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("devtools: connection lost awaiting %s", method)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out != nil {
			return json.Unmarshal(resp.Result, out)
		}
		return nil
	}
}

// evaluate runs a JavaScript expression in the page and decodes its value.
func (d *CDPDriver) evaluate(ctx context.Context, expr string, out any) error {
	var result struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	err := d.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  true,
	}, &result)
	if err != nil {
		return err
	}
	if exc := result.ExceptionDetails; exc != nil {
		msg := exc.Exception.Description
		if msg == "" {
			msg = exc.Text
		}
		return fmt.Errorf("page script failed: %s", msg)
	}
	if out != nil && result.Result.Value != nil {
		return json.Unmarshal(result.Result.Value, out)
	}
	return nil
}

func (d *CDPDriver) Navigate(ctx context.Context, url string) error {
	var nav struct {
		ErrorText string `json:"errorText"`
	}
	if err := d.call(ctx, "Page.navigate", map[string]any{"url": url}, &nav); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if nav.ErrorText != "" {
		return fmt.Errorf("navigate %s: %s", url, nav.ErrorText)
	}
	return d.waitReady(ctx)
}

func (d *CDPDriver) waitReady(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		var state string
		if err := d.evaluate(ctx, "document.readyState", &state); err != nil {
			return err
		}
		if state == "complete" || state == "interactive" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *CDPDriver) Click(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.click();
		return true;
	})()`, strconv.Quote(selector))
	var found bool
	if err := d.evaluate(ctx, expr, &found); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if !found {
		return fmt.Errorf("click %s: no matching element", selector)
	}
	return nil
}

func (d *CDPDriver) Type(ctx context.Context, selector, text string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.focus();
		el.value = %s;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, strconv.Quote(selector), strconv.Quote(text))
	var found bool
	if err := d.evaluate(ctx, expr, &found); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	if !found {
		return fmt.Errorf("type into %s: no matching element", selector)
	}
	return nil
}

func (d *CDPDriver) Scroll(ctx context.Context, deltaX, deltaY int) error {
	expr := fmt.Sprintf("window.scrollBy(%d, %d); true", deltaX, deltaY)
	return d.evaluate(ctx, expr, nil)
}

func (d *CDPDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var shot struct {
		Data string `json:"data"`
	}
	if err := d.call(ctx, "Page.captureScreenshot", map[string]any{"format": "png"}, &shot); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return base64.StdEncoding.DecodeString(shot.Data)
}

func (d *CDPDriver) URL(ctx context.Context) (string, error) {
	var url string
	if err := d.evaluate(ctx, "window.location.href", &url); err != nil {
		return "", err
	}
	return url, nil
}

// DebugPort reports the browser's local debugging port.
func (d *CDPDriver) DebugPort() int {
	return d.debugPort
}

// PID reports the launched browser's process id, or 0 when the driver only
// attached to an existing browser.
func (d *CDPDriver) PID() int {
	if d.proc == nil || d.proc.Process == nil {
		return 0
	}
	return d.proc.Process.Pid
}

// Detach releases the connection but leaves the browser running, so a later
// Attach on the same port can pick it up.
func (d *CDPDriver) Detach() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	err := d.conn.Close(websocket.StatusNormalClosure, "detaching")
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}

// Close shuts the browser down and releases the connection. Closing twice
// is a no-op.
func (d *CDPDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.done)
	d.nextID++
	closeID := d.nextID
	d.mu.Unlock()

	// Fire and forget; the process kill below is the backstop.
	if body, err := json.Marshal(cdpMessage{ID: closeID, Method: "Browser.close"}); err == nil {
		_ = d.conn.Write(ctx, websocket.MessageText, body)
	}
	err := d.conn.Close(websocket.StatusNormalClosure, "closing")

	if d.proc != nil && d.proc.Process != nil {
		waited := make(chan struct{})
		go func() {
			_, _ = d.proc.Process.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(3 * time.Second):
			_ = d.proc.Process.Kill()
		}
	}
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	return port, l.Close()
}

// debuggerURL polls the browser's version endpoint until it reports a
// WebSocket debugger address.
func debuggerURL(ctx context.Context, port int) (string, error) {
	endpoint := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	deadline := time.Now().Add(15 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			var version struct {
				WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&version)
			resp.Body.Close()
			if decodeErr == nil && version.WebSocketDebuggerURL != "" {
				return version.WebSocketDebuggerURL, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("debugger endpoint not ready on port %d", port)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
