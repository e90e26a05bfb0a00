// Package browser drives a headless Chrome through rod. It is the WebDriver
// implementation behind the web.* tools: optional named sessions keep cookies
// and page state alive across tool calls that share a session id.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"knowshowgo/internal/config"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/types"
)

// RodDriver implements the WebDriver capability over a shared Chrome.
type RodDriver struct {
	cfg config.BrowserConfig

	mu       sync.Mutex
	browser  *rod.Browser
	sessions map[string]*rod.Page
}

// NewRodDriver creates a driver; Chrome launches lazily on first use.
func NewRodDriver(cfg config.BrowserConfig) *RodDriver {
	return &RodDriver{cfg: cfg, sessions: make(map[string]*rod.Page)}
}

// ensureBrowser connects to the configured debugger or launches Chrome.
func (d *RodDriver) ensureBrowser() (*rod.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		return d.browser, nil
	}

	controlURL := d.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(d.cfg.Headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	d.browser = browser
	logging.Web("connected to chrome at %s", controlURL)
	return browser, nil
}

// page resolves a session to its page, creating both on demand. The empty
// session id maps to a shared anonymous page.
func (d *RodDriver) page(sessionID string) (*rod.Page, error) {
	browser, err := d.ensureBrowser()
	if err != nil {
		return nil, err
	}

	key := sessionID
	if key == "" {
		key = "anonymous"
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if page, ok := d.sessions[key]; ok {
		return page, nil
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	if d.cfg.ViewportWidth > 0 && d.cfg.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             d.cfg.ViewportWidth,
			Height:            d.cfg.ViewportHeight,
			DeviceScaleFactor: 1.0,
		})
	}
	d.sessions[key] = page
	logging.WebDebug("opened session %s", key)
	return page, nil
}

// NewSession opens a page and returns its generated id.
func (d *RodDriver) NewSession() (string, error) {
	id := uuid.NewString()
	if _, err := d.page(id); err != nil {
		return "", err
	}
	return id, nil
}

// Get navigates and returns the loaded page's HTML.
func (d *RodDriver) Get(ctx context.Context, sessionID, url string) (string, error) {
	page, err := d.page(sessionID)
	if err != nil {
		return "", err
	}
	p := page.Context(ctx).Timeout(d.cfg.NavigationTimeout())
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("page load failed: %w", err)
	}
	return p.HTML()
}

// Post issues a fetch POST from the current page context and returns the
// response body. Cookies of the session apply.
func (d *RodDriver) Post(ctx context.Context, sessionID, url string, body types.Props) (string, error) {
	page, err := d.page(sessionID)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode post body: %w", err)
	}

	res, err := page.Context(ctx).Timeout(d.cfg.NavigationTimeout()).Eval(`async (url, body) => {
		const resp = await fetch(url, {
			method: 'POST',
			headers: {'Content-Type': 'application/json'},
			body: body,
		});
		return await resp.text();
	}`, url, string(payload))
	if err != nil {
		return "", fmt.Errorf("post to %s failed: %w", url, err)
	}
	return res.Value.Str(), nil
}

// Screenshot captures the viewport to path, or to a generated file under the
// configured screenshot directory when path is empty.
func (d *RodDriver) Screenshot(ctx context.Context, sessionID, path string) (string, error) {
	page, err := d.page(sessionID)
	if err != nil {
		return "", err
	}

	if path == "" {
		if err := os.MkdirAll(d.cfg.ScreenshotDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create screenshot dir: %w", err)
		}
		path = filepath.Join(d.cfg.ScreenshotDir,
			fmt.Sprintf("shot-%d.png", time.Now().UnixMilli()))
	}

	data, err := page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	logging.WebDebug("screenshot saved to %s", path)
	return path, nil
}

// GetDOM returns the current page HTML.
func (d *RodDriver) GetDOM(ctx context.Context, sessionID string) (string, error) {
	page, err := d.page(sessionID)
	if err != nil {
		return "", err
	}
	return page.Context(ctx).HTML()
}

// ClickSelector clicks the first element matching the selector.
func (d *RodDriver) ClickSelector(ctx context.Context, sessionID, selector string) error {
	page, err := d.page(sessionID)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Timeout(d.cfg.WaitForTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// ClickXY clicks at viewport coordinates.
func (d *RodDriver) ClickXY(ctx context.Context, sessionID string, x, y float64) error {
	page, err := d.page(sessionID)
	if err != nil {
		return err
	}
	p := page.Context(ctx)
	if err := p.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return fmt.Errorf("mouse move failed: %w", err)
	}
	return p.Mouse.Click(proto.InputMouseButtonLeft, 1)
}

// Fill replaces the content of the matched input with value.
func (d *RodDriver) Fill(ctx context.Context, sessionID, selector, value string) error {
	page, err := d.page(sessionID)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Timeout(d.cfg.WaitForTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	return el.Input(value)
}

// WaitFor blocks until the selector appears or the timeout elapses.
func (d *RodDriver) WaitFor(ctx context.Context, sessionID, selector string, timeoutMs int) error {
	page, err := d.page(sessionID)
	if err != nil {
		return err
	}
	timeout := d.cfg.WaitForTimeout()
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	if _, err := page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		return fmt.Errorf("timed out waiting for %s: %w", selector, err)
	}
	return nil
}

// Scroll scrolls the page vertically.
func (d *RodDriver) Scroll(ctx context.Context, sessionID string, deltaY float64) error {
	page, err := d.page(sessionID)
	if err != nil {
		return err
	}
	return page.Context(ctx).Mouse.Scroll(0, deltaY, 1)
}

// CloseSession closes the page behind a session id.
func (d *RodDriver) CloseSession(sessionID string) error {
	key := sessionID
	if key == "" {
		key = "anonymous"
	}

	d.mu.Lock()
	page, ok := d.sessions[key]
	delete(d.sessions, key)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	logging.WebDebug("closed session %s", key)
	return page.Close()
}

// Close shuts every session and the browser down.
func (d *RodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, page := range d.sessions {
		_ = page.Close()
		delete(d.sessions, id)
	}
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	return err
}
