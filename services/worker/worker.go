package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sjsage522/farewatch/helpers"
	"sjsage522/farewatch/internal/fare"
	"sjsage522/farewatch/logger"
	"sjsage522/farewatch/services/publisher"
	"sjsage522/farewatch/services/storage"

	"github.com/robfig/cron/v3"
)

// PriceFetcher is the part of fare.Fetcher the worker drives
type PriceFetcher interface {
	FetchPrice(ctx context.Context, p fare.SearchParams) (int, error)
	URL(p fare.SearchParams) string
}

// Options tunes the schedule and parallelism of a Worker
type Options struct {
	// Schedule is a cron expression, e.g. "@every 30m"
	Schedule      string
	MaxConcurrent int
}

// Worker fetches every route, publishes the quotes and stores them
type Worker struct {
	ctx       context.Context
	fetcher   PriceFetcher
	routes    []fare.SearchParams
	publisher publisher.Publisher
	store     storage.QuoteStore
	logger    helpers.LoggerInterface
	opts      Options
	now       func() time.Time
}

// NewWorker creates a new worker. store may be nil.
func NewWorker(
	ctx context.Context,
	fetcher PriceFetcher,
	routes []fare.SearchParams,
	pub publisher.Publisher,
	store storage.QuoteStore,
	logger helpers.LoggerInterface,
	opts Options,
) *Worker {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Worker{
		ctx:       ctx,
		fetcher:   fetcher,
		routes:    routes,
		publisher: pub,
		store:     store,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Start runs all routes once, then on the schedule until the context is done
func (w *Worker) Start() error {
	w.RunOnce()

	c := cron.New(
		cron.WithLogger(logger.ForWorker().CronLogger()),
		cron.WithChain(cron.SkipIfStillRunning(logger.ForWorker().CronLogger())),
	)
	if _, err := c.AddFunc(w.opts.Schedule, func() { w.RunOnce() }); err != nil {
		return err
	}

	c.Start()
	w.logger.LogInfo("Scheduled %d routes with %q", len(w.routes), w.opts.Schedule)

	<-w.ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce fetches all routes in parallel and then trims the streams.
// At most MaxConcurrent browsers run at the same time.
func (w *Worker) RunOnce() []fare.Quote {
	start := time.Now()
	quotes := make([]fare.Quote, len(w.routes))
	semaphore := make(chan struct{}, w.opts.MaxConcurrent)

	var wg sync.WaitGroup
	for i, route := range w.routes {
		wg.Add(1)
		go func(i int, route fare.SearchParams) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
			case <-w.ctx.Done():
				quotes[i] = fare.NewQuote(route, w.fetcher.URL(route), 0, w.ctx.Err(), w.now())
				return
			}
			defer func() { <-semaphore }()

			quotes[i] = w.fetchAndPublish(route)
		}(i, route)
	}
	wg.Wait()

	if err := w.publisher.TrimStreams(); err != nil {
		w.logger.LogError("StreamTrimming", err)
	}

	w.logger.LogInfo("Fetched %d routes in %s", len(w.routes), time.Since(start))
	return quotes
}

// fetchAndPublish fetches one route and hands the quote to the publisher and the store
func (w *Worker) fetchAndPublish(route fare.SearchParams) fare.Quote {
	key := route.Key()

	price, err := w.fetcher.FetchPrice(w.ctx, route)
	if err != nil {
		w.logger.LogError(key, err)
	}
	quote := fare.NewQuote(route, w.fetcher.URL(route), price, err, w.now())

	data, err := json.Marshal(quote)
	if err != nil {
		w.logger.LogError(key, err)
		return quote
	}

	if err := w.publisher.Publish(key, data); err != nil {
		w.logger.LogError(key, err)
	}

	if w.store != nil {
		if err := w.store.SaveQuote(w.ctx, quote); err != nil {
			w.logger.LogError(key, err)
		}
	}

	if logger.IsDebugEnabled() {
		w.logger.LogInfo("Quote: %s", string(data))
	} else if quote.Price != nil {
		w.logger.LogInfo("%s: %d", key, *quote.Price)
	}
	return quote
}
