package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sjsage522/farewatch/helpers"
	"sjsage522/farewatch/pkg/errors"

	"github.com/robfig/cron/v3"
)

const (
	FetchModeChrome = "chrome"
	FetchModeStatic = "static"
)

// Route is one watched search, parsed from FARE_ROUTES
type Route struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
}

// Config represents the application configuration
type Config struct {
	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr  string
	PriceCacheTTL time.Duration
	BlockTime     time.Duration

	// Quote history, disabled when empty
	DatabaseURL string

	// Worker configuration
	Routes        []Route
	Schedule      string
	RunOnce       bool
	MaxConcurrent int
	ErrorLogFile  string

	// Search configuration
	SearchBaseURL   string
	PriceClass      string
	WaitTimeout     time.Duration
	PollInterval    time.Duration
	NavigateTimeout time.Duration

	// Browser configuration
	FetchMode      string
	ChromeBin      string
	Headless       bool
	ProxyEnabled   bool
	ProxySourceURL string

	// Environment
	Environment string

	routesErr error
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	routes, routesErr := ParseRoutes(getEnv("FARE_ROUTES", ""))

	return &Config{
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "fares"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		PriceCacheTTL:        time.Duration(getEnvInt("PRICE_CACHE_TTL_SECONDS", 900)) * time.Second,
		BlockTime:            time.Duration(getEnvInt("BLOCK_TIME_SECONDS", 600)) * time.Second,
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		Routes:               routes,
		Schedule:             getEnv("FARE_SCHEDULE", "@every 1h"),
		RunOnce:              getEnvBool("RUN_ONCE", false),
		MaxConcurrent:        getEnvInt("MAX_CONCURRENT", 1),
		ErrorLogFile:         getEnv("ERROR_LOG_FILE", "error.log"),
		SearchBaseURL:        strings.TrimRight(getEnv("SEARCH_BASE_URL", "https://www.kayak.es"), "/"),
		PriceClass:           getEnv("PRICE_CLASS", "Hv20-value"),
		WaitTimeout:          time.Duration(getEnvInt("WAIT_TIMEOUT_SECONDS", 30)) * time.Second,
		PollInterval:         time.Duration(getEnvInt("POLL_INTERVAL_MS", 500)) * time.Millisecond,
		NavigateTimeout:      time.Duration(getEnvInt("NAVIGATE_TIMEOUT_SECONDS", 60)) * time.Second,
		FetchMode:            getEnv("FETCH_MODE", FetchModeChrome),
		ChromeBin:            getEnv("CHROME_BIN", "/usr/bin/chromium-browser"),
		Headless:             getEnvBool("HEADLESS", true),
		ProxyEnabled:         getEnvBool("PROXY_ENABLED", false),
		ProxySourceURL:       getEnv("PROXY_SOURCE_URL", "https://spys.me/socks.txt"),
		Environment:          getEnv("FAREWATCH_ENVIRONMENT", "development"),
		routesErr:            routesErr,
	}
}

// Validate checks the configuration for values the worker cannot run with
func (c *Config) Validate() error {
	if c.routesErr != nil {
		return errors.NewConfiguration("invalid FARE_ROUTES", c.routesErr)
	}
	if len(c.Routes) == 0 {
		return errors.NewConfiguration("FARE_ROUTES must list at least one route", nil)
	}
	if c.FetchMode != FetchModeChrome && c.FetchMode != FetchModeStatic {
		return errors.NewConfiguration(fmt.Sprintf("unknown FETCH_MODE %q", c.FetchMode), nil)
	}
	if c.PriceClass == "" || strings.ContainsAny(c.PriceClass, " .#") {
		return errors.NewConfiguration(fmt.Sprintf("PRICE_CLASS must be a single class name, got %q", c.PriceClass), nil)
	}
	if c.WaitTimeout <= 0 || c.PollInterval <= 0 || c.NavigateTimeout <= 0 {
		return errors.NewConfiguration("timeouts and poll interval must be positive", nil)
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return errors.NewConfiguration(fmt.Sprintf("invalid FARE_SCHEDULE %q", c.Schedule), err)
	}
	if c.MaxConcurrent < 1 {
		return errors.NewConfiguration("MAX_CONCURRENT must be at least 1", nil)
	}
	if c.RedisStreamCount < 1 {
		return errors.NewConfiguration("REDIS_STREAM_COUNT must be at least 1", nil)
	}
	return nil
}

// ParseRoutes parses a comma separated list of ORIGIN-DEST/DEPARTURE[/RETURN]
func ParseRoutes(raw string) ([]Route, error) {
	var routes []Route
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.Split(item, "/")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("route %q: want ORIGIN-DEST/DEPARTURE[/RETURN]", item)
		}

		origin, _ := helpers.GetSplitPart(parts[0], "-", 0)
		destination, err := helpers.GetSplitPart(parts[0], "-", 1)
		if err != nil || origin == "" || destination == "" || strings.Count(parts[0], "-") != 1 {
			return nil, fmt.Errorf("route %q: want ORIGIN-DEST", item)
		}
		if parts[1] == "" {
			return nil, fmt.Errorf("route %q: missing departure date", item)
		}

		route := Route{
			Origin:        origin,
			Destination:   destination,
			DepartureDate: parts[1],
		}
		if len(parts) == 3 {
			if parts[2] == "" {
				return nil, fmt.Errorf("route %q: empty return date", item)
			}
			route.ReturnDate = parts[2]
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
