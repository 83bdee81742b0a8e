package browser

import (
	"context"
)

// Session is one browser instance owned by a single fetch.
// Close must be called exactly once.
type Session interface {
	// Navigate loads url and returns once the document has loaded
	Navigate(ctx context.Context, url string) error

	// TextsByClass returns the rendered text of every element carrying class, in document order
	TextsByClass(ctx context.Context, class string) ([]string, error)

	// Title returns the document title
	Title(ctx context.Context) (string, error)

	// HTML returns the serialized document
	HTML(ctx context.Context) (string, error)

	// Close terminates the browser
	Close() error
}

// Launcher starts sessions
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Options configures the browser process and its fingerprint
type Options struct {
	ExecPath      string
	Headless      bool
	NoSandbox     bool
	DisableDevShm bool
	DisableGPU    bool
	WindowWidth   int
	WindowHeight  int

	UserAgent string
	Languages []string
	Vendor    string
	Platform  string

	// Stealth injects the go-rod/stealth evasions into every document
	Stealth       bool
	HideWebdriver bool

	// ProxyServer is passed as --proxy-server when set
	ProxyServer string
}

// DefaultOptions returns a headless, container-safe configuration with a desktop Chrome fingerprint
func DefaultOptions() Options {
	return Options{
		ExecPath:      "/usr/bin/chromium-browser",
		Headless:      true,
		NoSandbox:     true,
		DisableDevShm: true,
		DisableGPU:    true,
		WindowWidth:   1920,
		WindowHeight:  1080,
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Languages:     []string{"en-US", "en"},
		Vendor:        "Google Inc.",
		Platform:      "Linux x86_64",
		Stealth:       true,
		HideWebdriver: true,
	}
}
