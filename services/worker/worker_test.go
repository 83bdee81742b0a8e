package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sjsage522/farewatch/helpers"
	"sjsage522/farewatch/internal/fare"
	ferrors "sjsage522/farewatch/pkg/errors"
	"sjsage522/farewatch/services/publisher"
	"sjsage522/farewatch/services/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockFetcher returns a fixed price or error per route key
type MockFetcher struct {
	prices map[string]int
	errs   map[string]error
	delay  time.Duration

	running    int32
	maxRunning int32
	calls      int32
}

var _ PriceFetcher = (*MockFetcher)(nil)

func (m *MockFetcher) FetchPrice(ctx context.Context, p fare.SearchParams) (int, error) {
	atomic.AddInt32(&m.calls, 1)
	n := atomic.AddInt32(&m.running, 1)
	defer atomic.AddInt32(&m.running, -1)
	for {
		max := atomic.LoadInt32(&m.maxRunning)
		if n <= max || atomic.CompareAndSwapInt32(&m.maxRunning, max, n) {
			break
		}
	}

	time.Sleep(m.delay)
	if err, ok := m.errs[p.Key()]; ok {
		return 0, err
	}
	return m.prices[p.Key()], nil
}

func (m *MockFetcher) URL(p fare.SearchParams) string {
	return fare.BuildURL("", p)
}

// MockPublisher implements the publisher.Publisher interface for testing
type MockPublisher struct {
	mu         sync.Mutex
	messages   map[string][]byte
	publishErr error
	trims      int
}

var _ publisher.Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{messages: make(map[string][]byte)}
}

func (m *MockPublisher) Publish(key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}

	messageCopy := make([]byte, len(message))
	copy(messageCopy, message)
	m.messages[key] = messageCopy
	return nil
}

func (m *MockPublisher) TrimStreams() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trims++
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

func (m *MockPublisher) quote(t *testing.T, key string) fare.Quote {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	var q fare.Quote
	require.Contains(t, m.messages, key)
	require.NoError(t, json.Unmarshal(m.messages[key], &q))
	return q
}

// MockStore implements storage.QuoteStore in memory
type MockStore struct {
	mu     sync.Mutex
	quotes []fare.Quote
}

var _ storage.QuoteStore = (*MockStore)(nil)

func (m *MockStore) SaveQuote(ctx context.Context, q fare.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes = append(m.quotes, q)
	return nil
}

func (m *MockStore) LastPricedQuote(ctx context.Context, route string) (*fare.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.quotes) - 1; i >= 0; i-- {
		if m.quotes[i].Route == route && m.quotes[i].Price != nil {
			q := m.quotes[i]
			return &q, nil
		}
	}
	return nil, storage.ErrNoQuote
}

func (m *MockStore) Close() error {
	return nil
}

// MockLogger implements the helpers.LoggerInterface for testing
type MockLogger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

var _ helpers.LoggerInterface = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{
		errors: make([]string, 0),
		infos:  make([]string, 0),
	}
}

func (m *MockLogger) LogError(route string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, route+": "+err.Error())
}

func (m *MockLogger) LogInfo(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, fmt.Sprintf(format, args...))
}

var (
	madBcn = fare.SearchParams{Origin: "MAD", Destination: "BCN", DepartureDate: "2025-01-10"}
	madLis = fare.SearchParams{Origin: "MAD", Destination: "LIS", DepartureDate: "2025-01-10", ReturnDate: "2025-01-17"}
)

func TestWorkerRunOnce(t *testing.T) {
	mockFetcher := &MockFetcher{prices: map[string]int{madBcn.Key(): 1234, madLis.Key(): 98}}
	mockPublisher := NewMockPublisher()
	mockStore := &MockStore{}
	mockLogger := NewMockLogger()

	w := NewWorker(context.Background(), mockFetcher, []fare.SearchParams{madBcn, madLis},
		mockPublisher, mockStore, mockLogger, Options{MaxConcurrent: 2})

	quotes := w.RunOnce()

	require.Len(t, quotes, 2)
	assert.Equal(t, 1234, *quotes[0].Price)
	assert.Equal(t, 98, *quotes[1].Price)

	q := mockPublisher.quote(t, madLis.Key())
	assert.Equal(t, fare.StatusOK, q.Status)
	assert.Equal(t, "2025-01-17", q.ReturnDate)
	assert.Equal(t, "https://www.kayak.es/flights/MAD-LIS/2025-01-10/2025-01-17?ucs=1993xcp", q.URL)

	assert.Len(t, mockStore.quotes, 2)
	assert.Equal(t, 1, mockPublisher.trims)
	assert.Empty(t, mockLogger.errors)
}

func TestWorkerRunOnceWithError(t *testing.T) {
	mockFetcher := &MockFetcher{
		prices: map[string]int{madBcn.Key(): 1234},
		errs:   map[string]error{madLis.Key(): ferrors.NewNotFound(madLis.Key(), "less than two price elements found (1)")},
	}
	mockPublisher := NewMockPublisher()
	mockLogger := NewMockLogger()

	w := NewWorker(context.Background(), mockFetcher, []fare.SearchParams{madBcn, madLis},
		mockPublisher, nil, mockLogger, Options{MaxConcurrent: 2})

	quotes := w.RunOnce()

	assert.Nil(t, quotes[1].Price)
	assert.Equal(t, "not_found", quotes[1].Status)

	// failures are published too, so consumers see the gap
	q := mockPublisher.quote(t, madLis.Key())
	assert.Equal(t, "not_found", q.Status)
	assert.Nil(t, q.Price)

	require.Len(t, mockLogger.errors, 1)
	assert.Contains(t, mockLogger.errors[0], madLis.Key())
	assert.Contains(t, mockLogger.errors[0], "less than two price elements")
}

func TestWorkerPublishError(t *testing.T) {
	mockPublisher := NewMockPublisher()
	mockPublisher.publishErr = errors.New("connection refused")
	mockStore := &MockStore{}
	mockLogger := NewMockLogger()

	w := NewWorker(context.Background(), &MockFetcher{prices: map[string]int{madBcn.Key(): 10}},
		[]fare.SearchParams{madBcn}, mockPublisher, mockStore, mockLogger, Options{})

	w.RunOnce()

	require.Len(t, mockLogger.errors, 1)
	assert.Contains(t, mockLogger.errors[0], "connection refused")
	// the store still gets the quote
	assert.Len(t, mockStore.quotes, 1)
}

func TestWorkerMaxConcurrent(t *testing.T) {
	routes := make([]fare.SearchParams, 6)
	for i := range routes {
		routes[i] = fare.SearchParams{Origin: "MAD", Destination: fmt.Sprintf("X%02d", i), DepartureDate: "2025-01-10"}
	}
	mockFetcher := &MockFetcher{delay: 20 * time.Millisecond}

	w := NewWorker(context.Background(), mockFetcher, routes, NewMockPublisher(), nil, NewMockLogger(), Options{MaxConcurrent: 2})
	w.RunOnce()

	assert.Equal(t, int32(6), atomic.LoadInt32(&mockFetcher.calls))
	assert.LessOrEqual(t, atomic.LoadInt32(&mockFetcher.maxRunning), int32(2))
}

func TestWorkerStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mockFetcher := &MockFetcher{prices: map[string]int{madBcn.Key(): 1}}
	mockPublisher := NewMockPublisher()

	w := NewWorker(ctx, mockFetcher, []fare.SearchParams{madBcn}, mockPublisher, nil, NewMockLogger(),
		Options{Schedule: "@every 1h", MaxConcurrent: 1})

	done := make(chan error, 1)
	go func() { done <- w.Start() }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&mockFetcher.calls))
}

func TestWorkerStartInvalidSchedule(t *testing.T) {
	w := NewWorker(context.Background(), &MockFetcher{}, nil, NewMockPublisher(), nil, NewMockLogger(),
		Options{Schedule: "not a schedule"})

	assert.Error(t, w.Start())
}
