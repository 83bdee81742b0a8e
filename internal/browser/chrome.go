package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"sjsage522/farewatch/logger"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeLauncher starts stealth-configured Chromium processes through chromedp
type ChromeLauncher struct {
	Options Options
	// ProxyFunc, when set, is asked for a proxy server on every launch
	ProxyFunc func() string
	log       *logger.Logger
}

// NewChromeLauncher creates a launcher with the given options
func NewChromeLauncher(opts Options) *ChromeLauncher {
	return &ChromeLauncher{
		Options: opts,
		log:     logger.ForFetcher().WithField("browser", "chrome"),
	}
}

// chromeFlags returns the command line switches for opts
func chromeFlags(opts Options) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":              opts.Headless,
		"no-sandbox":            opts.NoSandbox,
		"disable-dev-shm-usage": opts.DisableDevShm,
		"disable-gpu":           opts.DisableGPU,
		"enable-automation":     false,
	}
	if opts.HideWebdriver {
		flags["disable-blink-features"] = "AutomationControlled"
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", opts.WindowWidth, opts.WindowHeight)
	}
	if opts.UserAgent != "" {
		flags["user-agent"] = opts.UserAgent
	}
	if len(opts.Languages) > 0 {
		flags["lang"] = opts.Languages[0]
	}
	if opts.ProxyServer != "" {
		flags["proxy-server"] = opts.ProxyServer
	}
	return flags
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	for name, value := range chromeFlags(opts) {
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}
	return allocOpts
}

// stealthActions installs the fingerprint overrides on the first target
func stealthActions(opts Options) chromedp.Tasks {
	var tasks chromedp.Tasks
	for _, script := range StealthScripts(opts) {
		script := script
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
	}
	return append(tasks,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if opts.UserAgent == "" {
				return nil
			}
			return emulation.SetUserAgentOverride(opts.UserAgent).
				WithAcceptLanguage(strings.Join(opts.Languages, ",")).
				WithPlatform(opts.Platform).
				Do(ctx)
		}),
	)
}

// runActions is chromedp.Run; tests replace it to simulate driver failures
var runActions = chromedp.Run

// Launch starts a browser and applies the stealth configuration
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	opts := l.Options
	if l.ProxyFunc != nil {
		if proxy := l.ProxyFunc(); proxy != "" {
			opts.ProxyServer = proxy
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, v ...interface{}) {
			l.log.Debug().Msgf(format, v...)
		}),
		chromedp.WithErrorf(func(format string, v ...interface{}) {
			l.log.Debug().Msgf("cdp error: "+format, v...)
		}),
	)

	// The process is killed on every path that does not hand the session back, panics included.
	launched := false
	defer func() {
		if !launched {
			browserCancel()
			allocCancel()
		}
	}()

	// The first Run allocates the browser, so it must use browserCtx itself.
	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()
	if err := runActions(browserCtx, stealthActions(opts)); err != nil {
		return nil, fmt.Errorf("failed to start chrome at %s: %w", opts.ExecPath, err)
	}

	l.log.Debug().
		Str("exec_path", opts.ExecPath).
		Bool("headless", opts.Headless).
		Str("proxy", opts.ProxyServer).
		Msg("Browser started")

	launched = true
	return &chromeSession{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
	}, nil
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// bind derives a context on the browser that honours ctx's deadline and cancellation
func (s *chromeSession) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := s.bind(ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) TextsByClass(ctx context.Context, class string) ([]string, error) {
	name, err := json.Marshal(class)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(
		`Array.from(document.getElementsByClassName(%s)).map(e => e.innerText || e.textContent || "")`,
		name,
	)

	var texts []string
	if err := s.run(ctx, chromedp.Evaluate(expr, &texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Title(&title))
	return title, err
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Close shuts the browser down gracefully and then kills the process tree
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
	})
	return s.closeErr
}
