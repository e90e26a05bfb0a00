package tools

import (
	"context"
	"fmt"
	"sync"

	"knowshowgo/internal/types"
)

// fakeDriver records web calls and serves canned DOMs.
type fakeDriver struct {
	mu       sync.Mutex
	calls    []string
	dom      string
	failFill bool
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDriver) Get(ctx context.Context, sessionID, url string) (string, error) {
	d.record("get:" + url)
	return d.dom, nil
}

func (d *fakeDriver) Post(ctx context.Context, sessionID, url string, body types.Props) (string, error) {
	d.record("post:" + url)
	return "ok", nil
}

func (d *fakeDriver) Screenshot(ctx context.Context, sessionID, path string) (string, error) {
	d.record("screenshot")
	return "/tmp/shot.png", nil
}

func (d *fakeDriver) GetDOM(ctx context.Context, sessionID string) (string, error) {
	d.record("get_dom")
	return d.dom, nil
}

func (d *fakeDriver) ClickSelector(ctx context.Context, sessionID, selector string) error {
	d.record("click:" + selector)
	return nil
}

func (d *fakeDriver) ClickXY(ctx context.Context, sessionID string, x, y float64) error {
	d.record("click_xy")
	return nil
}

func (d *fakeDriver) Fill(ctx context.Context, sessionID, selector, value string) error {
	d.record("fill:" + selector)
	if d.failFill {
		return fmt.Errorf("selector not found: %s", selector)
	}
	return nil
}

func (d *fakeDriver) WaitFor(ctx context.Context, sessionID, selector string, timeoutMs int) error {
	d.record("wait_for:" + selector)
	return nil
}

func (d *fakeDriver) Scroll(ctx context.Context, sessionID string, deltaY float64) error {
	d.record("scroll")
	return nil
}

func (d *fakeDriver) CloseSession(sessionID string) error {
	d.record("close:" + sessionID)
	return nil
}

// recordingBus captures emitted events.
type recordingBus struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBus) Emit(eventType string, payload interface{}) {
	b.mu.Lock()
	b.events = append(b.events, eventType)
	b.mu.Unlock()
}
