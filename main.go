package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/farewatch/config"
	"sjsage522/farewatch/helpers"
	"sjsage522/farewatch/internal/browser"
	"sjsage522/farewatch/internal/fare"
	"sjsage522/farewatch/logger"
	"sjsage522/farewatch/services/cache"
	"sjsage522/farewatch/services/proxy"
	"sjsage522/farewatch/services/publisher"
	"sjsage522/farewatch/services/storage"
	"sjsage522/farewatch/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	cfg := config.LoadConfig()

	// farewatch MAD-BCN/2025-01-10[/2025-01-17] looks up one fare and exits
	if len(os.Args) > 1 {
		os.Exit(lookup(cfg, os.Args[1]))
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("fetch_mode", cfg.FetchMode).
		Int("routes", len(cfg.Routes)).
		Str("schedule", cfg.Schedule).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	fetcher := newFetcher(cfg, services.Cache, services.Proxies)

	w := worker.NewWorker(
		ctx,
		fetcher,
		searchParams(cfg.Routes),
		services.Publisher,
		services.Store,
		helpers.NewLogger(cfg.ErrorLogFile),
		worker.Options{
			Schedule:      cfg.Schedule,
			MaxConcurrent: cfg.MaxConcurrent,
		},
	)

	if cfg.RunOnce {
		w.RunOnce()
		log.Info().Msg("Single run finished")
		return
	}

	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting fare worker")
		workerDone <- w.Start()
	}()

	// Wait for shutdown signal or worker error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
		} else {
			log.Info().Msg("Worker exited normally")
		}
	}

	log.Info().Msg("Shutting down gracefully...")
}

// lookup fetches the fare for one route argument and prints it
func lookup(cfg *config.Config, arg string) int {
	routes, err := config.ParseRoutes(arg)
	if err != nil || len(routes) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s ORIGIN-DEST/DEPARTURE[/RETURN]\n", os.Args[0])
		return 2
	}

	ctx := context.Background()
	var store storage.QuoteStore
	if cfg.DatabaseURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("Quote history unavailable: %v", err)
		} else {
			defer pgStore.Close()
			store = pgStore
		}
	}

	return printPrice(ctx, os.Stdout, newFetcher(cfg, nil, nil), store, searchParams(routes)[0])
}

// priceFinder is the lookup side of fare.Fetcher
type priceFinder interface {
	FindFlightPrice(ctx context.Context, p fare.SearchParams) (int, bool)
}

// printPrice writes the live fare for p. When none can be fetched it falls back to the
// last stored quote, marked with its fetch time.
func printPrice(ctx context.Context, out io.Writer, finder priceFinder, store storage.QuoteStore, p fare.SearchParams) int {
	if price, ok := finder.FindFlightPrice(ctx, p); ok {
		fmt.Fprintln(out, price)
		return 0
	}

	if store != nil {
		q, err := store.LastPricedQuote(ctx, p.Key())
		if err == nil && q.Price != nil {
			fmt.Fprintf(out, "%d (last seen %s)\n", *q.Price, q.FetchedAt.Format(time.RFC3339))
			return 0
		}
		if err != nil && !errors.Is(err, storage.ErrNoQuote) {
			logger.Warn("Failed to read quote history: %v", err)
		}
	}

	fmt.Fprintln(out, "No price found")
	return 1
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Store     storage.QuoteStore
	Proxies   *proxy.Pool
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// initializeServices initializes the cache, the publisher and the optional store and proxy pool
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	memcacheService := cache.NewMemcacheService(cfg.MemcacheAddr, 100*time.Millisecond)
	if err := memcacheService.Ping(); err != nil {
		logger.Warn("Memcache at %s unavailable, running without cache: %v", cfg.MemcacheAddr, err)
	} else {
		services.Cache = memcacheService
		logger.ForCache().Info().Str("addr", cfg.MemcacheAddr).Msg("Connected to Memcache")
	}

	redisPublisher := publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamCount,
		cfg.RedisStreamMaxLength,
	)
	if err := redisPublisher.Ping(); err != nil {
		redisPublisher.Close()
		return nil, err
	}
	services.Publisher = redisPublisher

	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)

	if cfg.DatabaseURL != "" {
		store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			services.Cleanup()
			return nil, err
		}
		services.Store = store
	}

	if cfg.ProxyEnabled {
		pool := proxy.NewPool(proxy.DefaultOptions(cfg.ProxySourceURL))
		if err := pool.Refresh(ctx); err != nil {
			logger.Warn("Proxy pool is empty, fetching directly: %v", err)
		}
		logger.ForProxy().Info().Interface("proxy_stats", pool.Stats()).Msg("Proxy stats")
		go refreshProxies(ctx, pool)
		services.Proxies = pool
	}

	return services, nil
}

// refreshProxies keeps the pool fresh until ctx is done
func refreshProxies(ctx context.Context, pool *proxy.Pool) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !pool.Stale() {
				continue
			}
			if err := pool.Refresh(ctx); err != nil {
				logger.LogError("proxy", err, "Failed to refresh proxies")
				continue
			}
			logger.LogInfo("proxy", "Proxy pool refreshed: %d proxies", pool.Stats().Total)
		}
	}
}

// browserOptions applies the browser settings from cfg to the default stealth profile
func browserOptions(cfg *config.Config) browser.Options {
	opts := browser.DefaultOptions()
	opts.ExecPath = cfg.ChromeBin
	opts.Headless = cfg.Headless
	return opts
}

// newLauncher picks the launcher for cfg.FetchMode
func newLauncher(cfg *config.Config, pool *proxy.Pool) browser.Launcher {
	opts := browserOptions(cfg)
	if cfg.FetchMode == config.FetchModeStatic {
		return browser.NewStaticLauncher(opts)
	}

	launcher := browser.NewChromeLauncher(opts)
	if pool != nil {
		launcher.ProxyFunc = pool.ProxyURL
	}
	return launcher
}

func newFetcher(cfg *config.Config, cacheSvc cache.CacheService, pool *proxy.Pool) *fare.Fetcher {
	return fare.NewFetcher(newLauncher(cfg, pool), cacheSvc, fare.Config{
		BaseURL:         cfg.SearchBaseURL,
		PriceClass:      cfg.PriceClass,
		WaitTimeout:     cfg.WaitTimeout,
		PollInterval:    cfg.PollInterval,
		NavigateTimeout: cfg.NavigateTimeout,
		PriceCacheTTL:   cfg.PriceCacheTTL,
		BlockTime:       cfg.BlockTime,
	})
}

// searchParams converts configured routes to fetcher parameters
func searchParams(routes []config.Route) []fare.SearchParams {
	params := make([]fare.SearchParams, 0, len(routes))
	for _, r := range routes {
		params = append(params, fare.SearchParams{
			Origin:        r.Origin,
			Destination:   r.Destination,
			DepartureDate: r.DepartureDate,
			ReturnDate:    r.ReturnDate,
		})
	}
	return params
}
