package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"sjsage522/farewatch/helpers"

	"github.com/PuerkitoBio/goquery"
)

// StaticLauncher serves sessions over plain HTTP for server-rendered result pages.
// No script runs, so only markup present in the response is visible.
type StaticLauncher struct {
	Options Options
}

// NewStaticLauncher creates a static launcher that sends the fingerprint headers from opts
func NewStaticLauncher(opts Options) *StaticLauncher {
	return &StaticLauncher{Options: opts}
}

func (l *StaticLauncher) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &staticSession{
		request: helpers.PageRequest{
			UserAgent:      l.Options.UserAgent,
			AcceptLanguage: strings.Join(l.Options.Languages, ","),
		},
	}, nil
}

var errNoDocument = errors.New("no document loaded")

type staticSession struct {
	mu      sync.Mutex
	request helpers.PageRequest
	doc     *goquery.Document
	polls   int
	closed  bool
}

func (s *staticSession) load(ctx context.Context) error {
	body, err := helpers.FetchPage(ctx, s.request)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return fmt.Errorf("HTML parse error: %w", err)
	}
	s.doc = doc
	return nil
}

func (s *staticSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}

	s.request.URL = url
	s.polls = 0
	return s.load(ctx)
}

// TextsByClass re-fetches the page on every call after the first so a poll loop observes fresh markup
func (s *staticSession) TextsByClass(ctx context.Context, class string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, errNoDocument
	}

	if s.polls > 0 {
		if err := s.load(ctx); err != nil {
			return nil, err
		}
	}
	s.polls++

	var texts []string
	s.doc.Find("." + class).Each(func(_ int, sel *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(sel.Text()))
	})
	return texts, nil
}

func (s *staticSession) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return "", errNoDocument
	}
	return strings.TrimSpace(s.doc.Find("title").First().Text()), nil
}

func (s *staticSession) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return "", errNoDocument
	}
	return s.doc.Html()
}

func (s *staticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	return nil
}
