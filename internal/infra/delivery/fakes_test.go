package delivery

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type scriptedProvider struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	tokens  []string
	lastMsg Message
}

func (p *scriptedProvider) Send(_ context.Context, token string, msg Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.tokens = append(p.tokens, token)
	p.lastMsg = msg
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "msg-1", nil
}

type fakeCredentials struct {
	tokenErr    error
	invalidated int
}

func (c *fakeCredentials) AccessToken(context.Context) (string, error) {
	if c.tokenErr != nil {
		return "", c.tokenErr
	}
	return "access", nil
}

func (c *fakeCredentials) Invalidate() { c.invalidated++ }

type recordingTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{c: make(chan time.Time, 1)}
}

func (t *recordingTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.c <- time.Time{}
}

func (t *recordingTimer) Stop() {}

func (t *recordingTimer) C() <-chan time.Time { return t.c }

type memoryStore struct {
	mu      sync.Mutex
	tok     *oauth2.Token
	saves   int
	cleared int
}

func (s *memoryStore) Load(context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		return nil, nil
	}
	cp := *s.tok
	return &cp, nil
}

func (s *memoryStore) Save(_ context.Context, tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.tok = &cp
	s.saves++
	return nil
}

func (s *memoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	s.cleared++
	return nil
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (r *countingRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &oauth2.Token{AccessToken: "fresh-" + refreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
