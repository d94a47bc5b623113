// Package session defines the authenticated-session collaborator the
// confirmation client sends its signed requests through.
package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Session is an authenticated account session. Implementations own cookie and
// token lifecycle, transport, and retries.
type Session interface {
	// AccountID is the stable 64-bit account identifier, as a decimal string.
	AccountID() string
	// Mobile reports whether the session was issued for the mobile client, which
	// is required for confirmation signatures to be accepted.
	Mobile() bool
	AuthorizedRequest(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CookieSession replays a fixed set of cookies captured from a mobile login.
// It does not refresh them.
type CookieSession struct {
	accountID string
	cookies   []*http.Cookie
	mobile    bool
	client    *http.Client
	userAgent string
}

// CookieSessionConfig configures NewCookieSession.
type CookieSessionConfig struct {
	AccountID string
	// Cookies is a "name=value; name2=value2" header string.
	Cookies string
	Mobile  bool
	Timeout time.Duration
	// RootCAs adds trusted roots, e.g. for an intercepting proxy. Nil uses the system pool.
	RootCAs   *x509.CertPool
	UserAgent string
}

const defaultUserAgent = "okhttp/3.12.12"

func NewCookieSession(cfg CookieSessionConfig) (*CookieSession, error) {
	if strings.TrimSpace(cfg.Cookies) == "" {
		return nil, errors.New("cookie session requires cookies")
	}
	cookies, err := http.ParseCookie(cfg.Cookies)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.RootCAs != nil {
		transport.TLSClientConfig = &tls.Config{RootCAs: cfg.RootCAs, MinVersion: tls.VersionTLS12}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &CookieSession{
		accountID: strings.TrimSpace(cfg.AccountID),
		cookies:   cookies,
		mobile:    cfg.Mobile,
		client:    &http.Client{Timeout: timeout, Transport: transport},
		userAgent: ua,
	}, nil
}

func (s *CookieSession) AccountID() string { return s.accountID }

func (s *CookieSession) Mobile() bool { return s.mobile }

func (s *CookieSession) AuthorizedRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	return s.client.Do(req)
}
