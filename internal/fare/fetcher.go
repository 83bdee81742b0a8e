package fare

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"sjsage522/farewatch/helpers"
	"sjsage522/farewatch/internal/browser"
	"sjsage522/farewatch/logger"
	"sjsage522/farewatch/pkg/errors"
	"sjsage522/farewatch/services/cache"
)

// Config tunes a Fetcher. Zero values fall back to DefaultConfig.
type Config struct {
	BaseURL         string
	PriceClass      string
	WaitTimeout     time.Duration
	PollInterval    time.Duration
	NavigateTimeout time.Duration
	// PriceCacheTTL of zero disables the price cache
	PriceCacheTTL time.Duration
	BlockTime     time.Duration
}

// DefaultConfig returns the settings for kayak.es
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		PriceClass:      "Hv20-value",
		WaitTimeout:     30 * time.Second,
		PollInterval:    500 * time.Millisecond,
		NavigateTimeout: 60 * time.Second,
		BlockTime:       10 * time.Minute,
	}
}

// inspectTimeout bounds the bot wall check after a wait timed out
const inspectTimeout = 5 * time.Second

// Fetcher loads search result pages and reads the fare from them
type Fetcher struct {
	launcher browser.Launcher
	cache    cache.CacheService
	detector *browser.BotDetector
	cfg      Config
	log      *logger.Logger
}

// NewFetcher creates a fetcher. cacheSvc may be nil.
func NewFetcher(launcher browser.Launcher, cacheSvc cache.CacheService, cfg Config) *Fetcher {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.PriceClass == "" {
		cfg.PriceClass = defaults.PriceClass
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaults.WaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = defaults.NavigateTimeout
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = defaults.BlockTime
	}

	return &Fetcher{
		launcher: launcher,
		cache:    cacheSvc,
		detector: browser.NewBotDetector(),
		cfg:      cfg,
		log:      logger.ForFetcher(),
	}
}

// URL returns the page the fetcher loads for p
func (f *Fetcher) URL(p SearchParams) string {
	return BuildURL(f.cfg.BaseURL, p)
}

// FindFlightPrice returns the fare for p, or false when none could be determined.
// Every failure is logged and absorbed.
func (f *Fetcher) FindFlightPrice(ctx context.Context, p SearchParams) (int, bool) {
	price, err := f.FetchPrice(ctx, p)
	if err == nil {
		return price, true
	}

	log := f.log.WithField("route", p.Key()).WithError(err)
	switch errors.TypeOf(err) {
	case errors.ErrorTypeTimeout:
		log.Warn().Msg("Timed out waiting for price elements to load.")
	case errors.ErrorTypeNotFound:
		log.Warn().Msg("Less than two price elements found.")
	case errors.ErrorTypeParsing:
		log.Warn().Msg("Number not found in element text after cleaning.")
	case errors.ErrorTypeBlocked, errors.ErrorTypeRateLimit:
		log.Warn().Msg("Search site is refusing requests.")
	case errors.ErrorTypeValidation:
		log.Warn().Msg("Invalid search parameters.")
	default:
		log.Error().Msg("An unexpected error occurred during scraping.")
	}
	return 0, false
}

// FetchPrice loads the results page for p and returns the second listed price.
// The browser session, once launched, is closed exactly once before returning.
func (f *Fetcher) FetchPrice(ctx context.Context, p SearchParams) (price int, err error) {
	route := p.Key()

	defer func() {
		if r := recover(); r != nil {
			price = 0
			err = errors.NewBrowser(route, "unexpected failure", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := p.Validate(); err != nil {
		return 0, err
	}

	pageURL := f.URL(p)
	host := hostOf(pageURL)
	log := f.log.WithField("route", route)

	if f.isBlocked(host) {
		return 0, errors.NewRateLimit(route, host)
	}
	if cached, ok := f.cachedPrice(route); ok {
		log.Debug().Int("price", cached).Msg("Price served from cache")
		return cached, nil
	}

	session, err := f.launcher.Launch(ctx)
	if err != nil {
		return 0, errors.NewBrowser(route, "failed to launch browser", err)
	}
	defer func() {
		log.Info().Msg("Closing browser.")
		if closeErr := session.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Browser did not close cleanly")
		}
	}()

	price, err = f.readPrice(ctx, session, route, pageURL, host, log)
	if err != nil {
		return 0, err
	}

	f.storePrice(route, price)
	return price, nil
}

func (f *Fetcher) readPrice(ctx context.Context, session browser.Session, route, pageURL, host string, log *logger.Logger) (int, error) {
	log.Info().Str("url", pageURL).Msg("Attempting to get URL")

	navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavigateTimeout)
	err := session.Navigate(navCtx, pageURL)
	cancel()
	if err != nil {
		if stderrors.Is(err, helpers.ErrRateLimited) {
			f.block(host, "rate limited")
			return 0, errors.NewRateLimit(route, host)
		}
		return 0, errors.NewNetwork(route, "failed to load "+pageURL, err)
	}
	log.Info().Str("url", pageURL).Msg("Successfully got URL")

	log.Info().
		Str("class", f.cfg.PriceClass).
		Dur("timeout", f.cfg.WaitTimeout).
		Msg("Waiting for price elements...")

	texts, err := waitForPrices(ctx, session, f.cfg.PriceClass, f.cfg.WaitTimeout, f.cfg.PollInterval)
	if err == errWaitTimeout {
		return 0, f.inspectTimeout(ctx, session, route, host)
	}
	if stderrors.Is(err, helpers.ErrRateLimited) {
		f.block(host, "rate limited")
		return 0, errors.NewRateLimit(route, host)
	}
	if err != nil {
		return 0, errors.NewBrowser(route, "price wait failed", err)
	}
	log.Info().Int("count", len(texts)).Msg("Found price elements.")

	if len(texts) > priceIndex {
		log.Info().Str("text", texts[priceIndex]).Msg("Raw second price text")
	}

	price, err := extractPrice(route, texts)
	if err != nil {
		return 0, err
	}
	log.Info().Int("price", price).Msg("Extracted price")
	return price, nil
}

// inspectTimeout tells a slow or stale page apart from a bot wall
func (f *Fetcher) inspectTimeout(ctx context.Context, session browser.Session, route, host string) error {
	inspectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), inspectTimeout)
	defer cancel()

	title, _ := session.Title(inspectCtx)
	html, _ := session.HTML(inspectCtx)
	if blocked, reason := f.detector.Detect(title, html); blocked {
		f.block(host, reason)
		return errors.NewBlocked(route, reason)
	}
	return errors.NewTimeout(route, f.cfg.WaitTimeout)
}

func (f *Fetcher) isBlocked(host string) bool {
	if f.cache == nil {
		return false
	}
	_, err := f.cache.Get(cache.BlockKey(host))
	if err != nil && !stderrors.Is(err, cache.ErrCacheMiss) {
		f.log.Debug().Err(err).Msg("Block lookup failed")
	}
	return err == nil
}

func (f *Fetcher) block(host, reason string) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Set(cache.BlockKey(host), []byte(reason), f.cfg.BlockTime); err != nil {
		f.log.Warn().Err(err).Str("host", host).Msg("Failed to set block")
		return
	}
	f.log.Warn().
		Str("host", host).
		Str("reason", reason).
		Dur("block_time", f.cfg.BlockTime).
		Msg("Blocking requests to host")
}

func (f *Fetcher) cachedPrice(route string) (int, bool) {
	if f.cache == nil || f.cfg.PriceCacheTTL <= 0 {
		return 0, false
	}
	value, err := f.cache.Get(cache.PriceKey(route))
	if err != nil {
		if !stderrors.Is(err, cache.ErrCacheMiss) {
			f.log.Debug().Err(err).Msg("Price lookup failed")
		}
		return 0, false
	}
	price, err := strconv.Atoi(string(value))
	if err != nil {
		return 0, false
	}
	return price, true
}

func (f *Fetcher) storePrice(route string, price int) {
	if f.cache == nil || f.cfg.PriceCacheTTL <= 0 {
		return
	}
	if err := f.cache.Set(cache.PriceKey(route), []byte(strconv.Itoa(price)), f.cfg.PriceCacheTTL); err != nil {
		f.log.Warn().Err(err).Str("route", route).Msg("Failed to cache price")
	}
}

func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	return u.Host
}
