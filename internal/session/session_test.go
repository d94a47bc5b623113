package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieSession_AuthorizedRequest(t *testing.T) {
	var gotCookie, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewCookieSession(CookieSessionConfig{
		AccountID: " 76561198000000000 ",
		Cookies:   "steamLoginSecure=abc; sessionid=def",
		Mobile:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "76561198000000000", s.AccountID())
	assert.True(t, s.Mobile())

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := s.AuthorizedRequest(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "steamLoginSecure=abc; sessionid=def", gotCookie)
	assert.Equal(t, defaultUserAgent, gotUA)
}

func TestNewCookieSession_RequiresCookies(t *testing.T) {
	_, err := NewCookieSession(CookieSessionConfig{AccountID: "1"})
	assert.Error(t, err)
}
