package tools

import (
	"context"
	"fmt"

	"knowshowgo/internal/types"
)

// WebDriver is the browser capability the web.* tools dispatch to. Sessions
// are optional: an empty session id means a throwaway page per call, a
// non-empty id keeps cookies and state across calls that share it.
type WebDriver interface {
	Get(ctx context.Context, sessionID, url string) (string, error)
	Post(ctx context.Context, sessionID, url string, body types.Props) (string, error)
	Screenshot(ctx context.Context, sessionID, path string) (string, error)
	GetDOM(ctx context.Context, sessionID string) (string, error)
	ClickSelector(ctx context.Context, sessionID, selector string) error
	ClickXY(ctx context.Context, sessionID string, x, y float64) error
	Fill(ctx context.Context, sessionID, selector, value string) error
	WaitFor(ctx context.Context, sessionID, selector string, timeoutMs int) error
	Scroll(ctx context.Context, sessionID string, deltaY float64) error
	CloseSession(sessionID string) error
}

// RegisterWebTools wires a driver into the registry under the web.* names.
func RegisterWebTools(r *Registry, driver WebDriver) {
	r.Register("web.get", func(ctx context.Context, params types.Props) (types.Props, error) {
		url := params.String("url")
		if url == "" {
			return nil, fmt.Errorf("%w: web.get requires url", types.ErrInvalidArgument)
		}
		dom, err := driver.Get(ctx, params.String("session_id"), url)
		if err != nil {
			return nil, err
		}
		return types.Props{"url": url, "dom": dom}, nil
	})

	r.Register("web.post", func(ctx context.Context, params types.Props) (types.Props, error) {
		url := params.String("url")
		if url == "" {
			return nil, fmt.Errorf("%w: web.post requires url", types.ErrInvalidArgument)
		}
		var body types.Props
		if raw, ok := params["body"].(map[string]interface{}); ok {
			body = types.Props(raw)
		}
		response, err := driver.Post(ctx, params.String("session_id"), url, body)
		if err != nil {
			return nil, err
		}
		return types.Props{"url": url, "response": response}, nil
	})

	r.Register("web.screenshot", func(ctx context.Context, params types.Props) (types.Props, error) {
		saved, err := driver.Screenshot(ctx, params.String("session_id"), params.String("path"))
		if err != nil {
			return nil, err
		}
		return types.Props{"screenshot": saved}, nil
	})

	r.Register("web.get_dom", func(ctx context.Context, params types.Props) (types.Props, error) {
		dom, err := driver.GetDOM(ctx, params.String("session_id"))
		if err != nil {
			return nil, err
		}
		return types.Props{"dom": dom}, nil
	})

	r.Register("web.click_selector", func(ctx context.Context, params types.Props) (types.Props, error) {
		selector := params.String("selector")
		if selector == "" {
			return nil, fmt.Errorf("%w: web.click_selector requires selector", types.ErrInvalidArgument)
		}
		if err := driver.ClickSelector(ctx, params.String("session_id"), selector); err != nil {
			return nil, err
		}
		return types.Props{"clicked": selector}, nil
	})

	r.Register("web.click_xy", func(ctx context.Context, params types.Props) (types.Props, error) {
		x, okX := params.Float("x")
		y, okY := params.Float("y")
		if !okX || !okY {
			return nil, fmt.Errorf("%w: web.click_xy requires x and y", types.ErrInvalidArgument)
		}
		if err := driver.ClickXY(ctx, params.String("session_id"), x, y); err != nil {
			return nil, err
		}
		return types.Props{"clicked": fmt.Sprintf("%.0f,%.0f", x, y)}, nil
	})

	r.Register("web.fill", func(ctx context.Context, params types.Props) (types.Props, error) {
		selector := params.String("selector")
		if selector == "" {
			return nil, fmt.Errorf("%w: web.fill requires selector", types.ErrInvalidArgument)
		}
		if err := driver.Fill(ctx, params.String("session_id"), selector, params.String("value")); err != nil {
			return nil, err
		}
		return types.Props{"filled": selector}, nil
	})

	r.Register("web.wait_for", func(ctx context.Context, params types.Props) (types.Props, error) {
		selector := params.String("selector")
		if selector == "" {
			return nil, fmt.Errorf("%w: web.wait_for requires selector", types.ErrInvalidArgument)
		}
		if err := driver.WaitFor(ctx, params.String("session_id"), selector, params.Int("timeout_ms")); err != nil {
			return nil, err
		}
		return types.Props{"found": selector}, nil
	})

	r.Register("web.scroll", func(ctx context.Context, params types.Props) (types.Props, error) {
		deltaY, ok := params.Float("delta_y")
		if !ok {
			deltaY = 600
		}
		if err := driver.Scroll(ctx, params.String("session_id"), deltaY); err != nil {
			return nil, err
		}
		return types.Props{"scrolled": deltaY}, nil
	})

	r.Register("web.close_session", func(ctx context.Context, params types.Props) (types.Props, error) {
		id := params.String("session_id")
		if err := driver.CloseSession(id); err != nil {
			return nil, err
		}
		return types.Props{"closed": id}, nil
	})
}
