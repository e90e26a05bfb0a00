package config

import "time"

// BrowserConfig configures the rod web driver.
type BrowserConfig struct {
	Headless            bool   `yaml:"headless"`
	DebuggerURL         string `yaml:"debugger_url"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	WaitForTimeoutMs    int    `yaml:"wait_for_timeout_ms"`
	ScreenshotDir       string `yaml:"screenshot_dir"`
}

// DefaultBrowserConfig returns sensible defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:            true,
		ViewportWidth:       1280,
		ViewportHeight:      900,
		NavigationTimeoutMs: 30000,
		WaitForTimeoutMs:    5000,
		ScreenshotDir:       ".ksg/screenshots",
	}
}

// NavigationTimeout returns the navigation timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// WaitForTimeout returns the default wait_for timeout.
func (c BrowserConfig) WaitForTimeout() time.Duration {
	if c.WaitForTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.WaitForTimeoutMs) * time.Millisecond
}
