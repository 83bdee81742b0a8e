package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"sjsage522/farewatch/helpers"
	"sjsage522/farewatch/logger"
)

// Proxy is a SOCKS5 proxy with its measured latency
type Proxy struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Country  string        `json:"country"`
	Latency  time.Duration `json:"latency"`
	LastTest time.Time     `json:"last_test"`
}

// Address returns host:port
func (p Proxy) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// URL returns the proxy in the form chrome's --proxy-server accepts
func (p Proxy) URL() string {
	return "socks5://" + p.Address()
}

// Stats summarises the pool
type Stats struct {
	Total          int           `json:"total"`
	LastUpdate     time.Time     `json:"last_update"`
	Fastest        string        `json:"fastest,omitempty"`
	FastestLatency time.Duration `json:"fastest_latency,omitempty"`
}

// Options tunes a Pool
type Options struct {
	SourceURL      string
	Keep           int
	Concurrency    int
	DialTimeout    time.Duration
	UpdateInterval time.Duration
}

// DefaultOptions returns the pool settings used by the worker
func DefaultOptions(sourceURL string) Options {
	return Options{
		SourceURL:      sourceURL,
		Keep:           5,
		Concurrency:    10,
		DialTimeout:    5 * time.Second,
		UpdateInterval: 30 * time.Minute,
	}
}

// Pool keeps the fastest working SOCKS5 proxies from a public list
type Pool struct {
	opts Options
	log  *logger.Logger

	mu         sync.RWMutex
	proxies    []Proxy
	next       int
	lastUpdate time.Time

	// dial is replaced in tests
	dial func(ctx context.Context, p *Proxy) error
}

// NewPool creates an empty pool
func NewPool(opts Options) *Pool {
	defaults := DefaultOptions(opts.SourceURL)
	if opts.Keep <= 0 {
		opts.Keep = defaults.Keep
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaults.DialTimeout
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = defaults.UpdateInterval
	}

	p := &Pool{
		opts: opts,
		log:  logger.ForProxy().WithField("source", opts.SourceURL),
	}
	p.dial = p.testProxy
	return p
}

// Refresh downloads the proxy list and keeps the fastest reachable entries.
// On failure the current proxies are kept.
func (p *Pool) Refresh(ctx context.Context) error {
	p.log.Info().Msg("Updating proxy list")

	body, err := helpers.FetchPage(ctx, helpers.PageRequest{URL: p.opts.SourceURL})
	if err != nil {
		return p.keepExisting(fmt.Errorf("failed to fetch proxy list: %w", err))
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return p.keepExisting(fmt.Errorf("failed to read proxy list: %w", err))
	}

	candidates := parseProxyList(string(data))
	p.log.Debug().Int("candidates", len(candidates)).Msg("Parsed proxy list")
	if len(candidates) == 0 {
		return p.keepExisting(fmt.Errorf("no proxies found"))
	}

	working := p.measure(ctx, candidates)
	if len(working) == 0 {
		return p.keepExisting(fmt.Errorf("none of %d proxies answered", len(candidates)))
	}

	p.mu.Lock()
	p.proxies = working
	p.next = 0
	p.lastUpdate = time.Now()
	p.mu.Unlock()

	p.log.Info().
		Int("count", len(working)).
		Str("fastest", working[0].Address()).
		Dur("latency", working[0].Latency).
		Msg("Updated proxy list")
	return nil
}

func (p *Pool) keepExisting(err error) error {
	p.mu.RLock()
	n := len(p.proxies)
	p.mu.RUnlock()

	if n > 0 {
		p.log.Warn().Err(err).Int("existing_count", n).Msg("Keeping existing proxies")
		return nil
	}
	return err
}

// measure tests candidates concurrently and returns the fastest ones, sorted by latency
func (p *Pool) measure(ctx context.Context, candidates []Proxy) []Proxy {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		working []Proxy
	)
	semaphore := make(chan struct{}, p.opts.Concurrency)

	for i := range candidates {
		wg.Add(1)
		go func(proxy Proxy) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-semaphore }()

			if err := p.dial(ctx, &proxy); err != nil {
				p.log.Debug().Str("proxy", proxy.Address()).Err(err).Msg("Proxy test failed")
				return
			}
			mu.Lock()
			working = append(working, proxy)
			mu.Unlock()
		}(candidates[i])
	}
	wg.Wait()

	sort.Slice(working, func(i, j int) bool {
		return working[i].Latency < working[j].Latency
	})
	if len(working) > p.opts.Keep {
		working = working[:p.opts.Keep]
	}
	return working
}

// testProxy dials the proxy and checks that it speaks SOCKS5 without auth
func (p *Pool) testProxy(ctx context.Context, proxy *Proxy) error {
	dialCtx, cancel := context.WithTimeout(ctx, p.opts.DialTimeout)
	defer cancel()

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", proxy.Address())
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := socks5Handshake(conn, 3*time.Second); err != nil {
		return err
	}

	proxy.Latency = time.Since(start)
	proxy.LastTest = time.Now()
	return nil
}

// socks5Handshake offers the no-auth method and expects it to be accepted
func socks5Handshake(conn net.Conn, timeout time.Duration) error {
	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	// VER=5, NMETHODS=1, METHODS=0
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return err
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return err
	}
	if resp[0] != 0x05 || resp[1] != 0x00 {
		return fmt.Errorf("unexpected socks5 reply %x", resp)
	}
	return nil
}

// Fastest returns the fastest working proxy
func (p *Pool) Fastest() (Proxy, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.proxies) == 0 {
		return Proxy{}, false
	}
	return p.proxies[0], true
}

// Next rotates through the kept proxies, fastest first
func (p *Pool) Next() (Proxy, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return Proxy{}, false
	}
	proxy := p.proxies[p.next%len(p.proxies)]
	p.next++
	return proxy, true
}

// ProxyURL returns the next proxy URL or "" when the pool is empty.
// It is meant for browser.ChromeLauncher.ProxyFunc.
func (p *Pool) ProxyURL() string {
	proxy, ok := p.Next()
	if !ok {
		return ""
	}
	return proxy.URL()
}

// Stale reports whether the list is older than the update interval
func (p *Pool) Stale() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Since(p.lastUpdate) > p.opts.UpdateInterval
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		Total:      len(p.proxies),
		LastUpdate: p.lastUpdate,
	}
	if len(p.proxies) > 0 {
		stats.Fastest = p.proxies[0].Address()
		stats.FastestLatency = p.proxies[0].Latency
	}
	return stats
}

// parseProxyList reads IP:PORT entries, one per field.
// spys.me lines carry a country code after the address, e.g. "1.2.3.4:1080 US-H".
func parseProxyList(body string) []Proxy {
	var proxies []Proxy
	seen := make(map[string]bool)

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		for i, field := range fields {
			proxy, ok := parseAddress(field)
			if !ok {
				continue
			}
			if i+1 < len(fields) {
				if cc, err := helpers.GetSplitPart(fields[i+1], "-", 0); err == nil && len(cc) == 2 {
					proxy.Country = cc
				}
			}
			if seen[proxy.Address()] {
				continue
			}
			seen[proxy.Address()] = true
			proxies = append(proxies, proxy)
		}
	}
	return proxies
}

// badPorts are well known service ports that never host an open proxy
var badPorts = map[int]bool{
	22: true, 23: true, 25: true, 53: true, 110: true, 143: true,
	443: true, 993: true, 995: true, 3306: true, 3389: true, 5432: true,
}

func parseAddress(field string) (Proxy, bool) {
	host, portStr, err := net.SplitHostPort(field)
	if err != nil {
		return Proxy{}, false
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIPv4(ip) {
		return Proxy{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 80 || port > 65000 || badPorts[port] {
		return Proxy{}, false
	}
	return Proxy{Host: host, Port: port, Country: "Unknown"}, true
}

// isPublicIPv4 rejects IPv6, private, loopback, link-local, multicast and reserved addresses
func isPublicIPv4(ip net.IP) bool {
	ipv4 := ip.To4()
	if ipv4 == nil {
		return false
	}
	if ipv4.IsLoopback() || ipv4.IsPrivate() || ipv4.IsLinkLocalUnicast() ||
		ipv4.IsMulticast() || ipv4.IsUnspecified() {
		return false
	}
	if ipv4[0] == 0 || ipv4[0] >= 240 {
		return false
	}
	if ipv4[3] == 0 || ipv4[3] == 255 {
		return false
	}
	return true
}
