package browser

import (
	"testing"

	"knowshowgo/internal/config"
	"knowshowgo/internal/tools"
)

var _ tools.WebDriver = (*RodDriver)(nil)

func TestCloseSessionUnknownIsNoop(t *testing.T) {
	d := NewRodDriver(config.DefaultBrowserConfig())
	if err := d.CloseSession("never-opened"); err != nil {
		t.Errorf("CloseSession: %v", err)
	}
}

func TestCloseWithoutBrowserIsNoop(t *testing.T) {
	d := NewRodDriver(config.DefaultBrowserConfig())
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
