package fare

import (
	"context"
	"errors"
	"sync"
	"time"

	"sjsage522/farewatch/internal/browser"
)

// fakeSession serves a scripted sequence of element texts and counts Close calls
type fakeSession struct {
	mu sync.Mutex

	navigateErr error
	// polls[i] is returned by the i-th TextsByClass call; the last entry repeats
	polls   [][]string
	pollErr error
	panicOn string

	title string
	html  string

	navigated []string
	pollCount int
	closed    int
}

var _ browser.Session = (*fakeSession)(nil)

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn == "navigate" {
		panic("driver crashed")
	}
	s.navigated = append(s.navigated, url)
	return s.navigateErr
}

func (s *fakeSession) TextsByClass(ctx context.Context, class string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn == "texts" {
		panic("driver crashed")
	}
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	if len(s.polls) == 0 {
		return nil, nil
	}
	i := s.pollCount
	if i >= len(s.polls) {
		i = len(s.polls) - 1
	}
	s.pollCount++
	return s.polls[i], nil
}

func (s *fakeSession) Title(ctx context.Context) (string, error) {
	return s.title, nil
}

func (s *fakeSession) HTML(ctx context.Context) (string, error) {
	return s.html, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeLauncher hands out one session
type fakeLauncher struct {
	session   *fakeSession
	launchErr error
	launches  int
}

func (l *fakeLauncher) Launch(ctx context.Context) (browser.Session, error) {
	l.launches++
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.session, nil
}

// mockCacheService is an in-memory cache.CacheService
type mockCacheService struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMockCacheService() *mockCacheService {
	return &mockCacheService{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

var errMockMiss = errors.New("cache miss")

func (m *mockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.data[key]; ok {
		return val, nil
	}
	return nil, errMockMiss
}

func (m *mockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = expiration
	return nil
}

func (m *mockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
