package mobileconf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/steamguard/internal/utils"
)

const (
	testAccount  = "76561198000000000"
	testIdentity = "aWRlbnRpdHktc2VjcmV0LWJ5dGVzIQ=="
	testUnix     = 1700000000
)

type fakeSession struct {
	account string
	mobile  bool
	handler http.HandlerFunc
	err     error

	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
}

func (f *fakeSession) AccountID() string { return f.account }
func (f *fakeSession) Mobile() bool      { return f.mobile }

func (f *fakeSession) AuthorizedRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	rec := httptest.NewRecorder()
	f.handler(rec, req)
	return rec.Result(), nil
}

func (f *fakeSession) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newTestClient(t *testing.T, sess *fakeSession) *Client {
	t.Helper()
	c, err := New(context.Background(), sess, Options{
		IdentitySecret: testIdentity,
		Strategy:       utils.Explicit{Value: "android:test-device"},
		Now:            func() time.Time { return time.Unix(testUnix, 0) },
	})
	require.NoError(t, err)
	return c
}

func mobileSession(h http.HandlerFunc) *fakeSession {
	return &fakeSession{account: testAccount, mobile: true, handler: h}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, &fakeSession{account: testAccount}, Options{IdentitySecret: testIdentity})
	assert.ErrorIs(t, err, utils.ErrSessionNotMobile)

	_, err = New(ctx, &fakeSession{mobile: true}, Options{IdentitySecret: testIdentity})
	assert.ErrorIs(t, err, utils.ErrMissingAccountID)

	_, err = New(ctx, mobileSession(nil), Options{IdentitySecret: testIdentity, Strategy: utils.Explicit{}})
	assert.ErrorIs(t, err, utils.ErrMissingDeviceID)

	_, err = New(ctx, mobileSession(nil), Options{IdentitySecret: ""})
	assert.ErrorIs(t, err, utils.ErrInvalidSecret)
}

func TestNew_DerivedDeviceID(t *testing.T) {
	c, err := New(context.Background(), mobileSession(nil), Options{
		IdentitySecret: testIdentity,
		Strategy:       utils.Derived{Salt: "salt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "7EFE9DAF-3582-E617-69CB-9B2590C37502", c.DeviceID())
}

type memStore struct {
	ids   map[string]string
	saves int
}

func (m *memStore) Load(_ context.Context, accountID string) (string, error) {
	return m.ids[accountID], nil
}

func (m *memStore) Save(_ context.Context, accountID, deviceID string) error {
	m.saves++
	m.ids[accountID] = deviceID
	return nil
}

func TestNew_StorePersistsRandomID(t *testing.T) {
	store := &memStore{ids: map[string]string{}}
	opts := Options{IdentitySecret: testIdentity, Strategy: utils.Random{}, Store: store}

	first, err := New(context.Background(), mobileSession(nil), opts)
	require.NoError(t, err)
	second, err := New(context.Background(), mobileSession(nil), opts)
	require.NoError(t, err)

	assert.Equal(t, first.DeviceID(), second.DeviceID())
	assert.Equal(t, 1, store.saves)
}

// racingStore behaves like a store where another process saved winner first.
type racingStore struct {
	winner string
	stored string
}

func (r *racingStore) Load(_ context.Context, _ string) (string, error) { return r.stored, nil }

func (r *racingStore) Save(_ context.Context, _, _ string) error {
	r.stored = r.winner
	return nil
}

func TestNew_LostSaveRaceAdoptsStoredID(t *testing.T) {
	store := &racingStore{winner: "android:winner"}
	c, err := New(context.Background(), mobileSession(nil), Options{
		IdentitySecret: testIdentity,
		Strategy:       utils.Random{},
		Store:          store,
	})
	require.NoError(t, err)
	assert.Equal(t, "android:winner", c.DeviceID())
}

func TestNew_ExplicitIgnoresStore(t *testing.T) {
	store := &memStore{ids: map[string]string{testAccount: "stored"}}
	c, err := New(context.Background(), mobileSession(nil), Options{
		IdentitySecret: testIdentity,
		Strategy:       utils.Explicit{Value: "explicit"},
		Store:          store,
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit", c.DeviceID())
	assert.Zero(t, store.saves)
}

func TestListPending(t *testing.T) {
	sess := mobileSession(respond(http.StatusOK, `{"success":true,"conf":[
		{"id":"3","nonce":"n3","type":2,"headline":"trade"},
		{"id":"1","nonce":"n1","type":3,"warn":"careful"},
		{"id":"2","nonce":"n2","type":5}]}`))
	c := newTestClient(t, sess)

	confs, err := c.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, confs, 3)
	assert.Equal(t, []string{"3", "1", "2"}, []string{confs[0].ID, confs[1].ID, confs[2].ID})
	assert.Equal(t, "trade", confs[0].Headline)
	require.NotNil(t, confs[1].Warn)
	assert.Equal(t, "careful", *confs[1].Warn)

	require.Equal(t, 1, sess.calls())
	req := sess.requests[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/mobileconf/getlist", req.URL.Path)
	q := req.URL.Query()
	assert.Equal(t, "android:test-device", q.Get("p"))
	assert.Equal(t, testAccount, q.Get("a"))
	assert.Equal(t, "1700000000", q.Get("t"))
	assert.Equal(t, "react", q.Get("m"))
	assert.Equal(t, "list", q.Get("tag"))
	assert.Equal(t, "a9uZ+zZ8k2+rWCrnPoEOXo6pZ8o=", q.Get("k"))
}

func TestListPending_TrimsAccountID(t *testing.T) {
	sess := mobileSession(respond(http.StatusOK, `{"success":true,"conf":[]}`))
	sess.account = "  " + testAccount + "\n"
	c := newTestClient(t, sess)

	_, err := c.ListPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAccount, sess.requests[0].URL.Query().Get("a"))
	assert.Equal(t, "a9uZ+zZ8k2+rWCrnPoEOXo6pZ8o=", sess.requests[0].URL.Query().Get("k"))
}

func TestListPending_PassesUnknownFieldsThrough(t *testing.T) {
	sess := mobileSession(respond(http.StatusOK, `{"success":true,"conf":[
		{"id":"1","nonce":"a","type":2,"sender_persona_state":1,"extra":{"x":1}},
		{"id":"2","nonce":"b","type":"3","creation_time":"1700000000","summary":"not a list"}]}`))
	c := newTestClient(t, sess)

	confs, err := c.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, confs, 2)

	assert.Equal(t, TypeTrade, confs[0].Type)
	out, err := json.Marshal(confs[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","nonce":"a","type":2,"sender_persona_state":1,"extra":{"x":1}}`, string(out))

	assert.Equal(t, "2", confs[1].ID)
	assert.Equal(t, "b", confs[1].Nonce)
	assert.Equal(t, TypeMarketListing, confs[1].Type)
	assert.Equal(t, int64(1700000000), confs[1].CreationTime)
	assert.Nil(t, confs[1].Summary)
	assert.JSONEq(t, `{"id":"2","nonce":"b","type":"3","creation_time":"1700000000","summary":"not a list"}`, string(confs[1].Raw()))
}

func TestListPending_BadIDIsMalformed(t *testing.T) {
	c := newTestClient(t, mobileSession(respond(http.StatusOK, `{"success":true,"conf":[{"id":1,"nonce":"a"}]}`)))
	_, err := c.ListPending(context.Background())
	assert.ErrorIs(t, err, utils.ErrMalformedResponse)
}

func TestConfirmation_MarshalWithoutRaw(t *testing.T) {
	out, err := json.Marshal(Confirmation{ID: "5", Nonce: "n", Type: TypeAPIKey})
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "5", back["id"])
	assert.Equal(t, "n", back["nonce"])
	assert.EqualValues(t, TypeAPIKey, back["type"])
}

func TestListPending_Empty(t *testing.T) {
	c := newTestClient(t, mobileSession(respond(http.StatusOK, `{"success":true,"conf":[]}`)))
	confs, err := c.ListPending(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, confs)
	assert.Empty(t, confs)
}

func TestListPending_Errors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"missing conf", respond(http.StatusOK, `{"success":true}`), utils.ErrMalformedResponse},
		{"null conf", respond(http.StatusOK, `{"success":true,"conf":null}`), utils.ErrMalformedResponse},
		{"not json", respond(http.StatusOK, `<html>`), utils.ErrMalformedResponse},
		{"success false", respond(http.StatusOK, `{"success":false,"needauth":true}`), utils.ErrUnsuccessfulResponse},
		{"bad status", respond(http.StatusInternalServerError, `{"success":true,"conf":[]}`), utils.ErrUnsuccessfulResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, mobileSession(tc.handler))
			_, err := c.ListPending(context.Background())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestListPending_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	sess := mobileSession(nil)
	sess.err = boom
	c := newTestClient(t, sess)
	_, err := c.ListPending(context.Background())
	assert.ErrorIs(t, err, boom)
}

func formValues(t *testing.T, req *http.Request, body []byte) map[string][]string {
	t.Helper()
	_, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	require.NoError(t, err)
	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(1 << 20)
	require.NoError(t, err)
	return form.Value
}

func TestActOn_Accept(t *testing.T) {
	sess := mobileSession(respond(http.StatusOK, `{"success":true}`))
	c := newTestClient(t, sess)

	ok := c.ActOn(context.Background(), []Confirmation{{ID: "9", Nonce: "a"}, {ID: "4", Nonce: "b"}}, true)
	assert.True(t, ok)

	require.Equal(t, 1, sess.calls())
	req := sess.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/mobileconf/multiajaxop", req.URL.Path)
	q := req.URL.Query()
	assert.Equal(t, "allow", q.Get("op"))
	assert.Equal(t, "accept", q.Get("tag"))
	assert.Equal(t, "2jt3oAkDmSyX53vnCV6nJWrENss=", q.Get("k"))

	values := formValues(t, req, sess.bodies[0])
	assert.Equal(t, []string{"9", "4"}, values["cid[]"])
	assert.Equal(t, []string{"a", "b"}, values["ck[]"])
}

func TestActOn_DenyReusesAcceptTag(t *testing.T) {
	sess := mobileSession(respond(http.StatusOK, `{"success":true}`))
	c := newTestClient(t, sess)

	assert.True(t, c.ActOn(context.Background(), []Confirmation{{ID: "1", Nonce: "x"}}, false))
	q := sess.requests[0].URL.Query()
	assert.Equal(t, "cancel", q.Get("op"))
	assert.Equal(t, "accept", q.Get("tag"))
	assert.Equal(t, "2jt3oAkDmSyX53vnCV6nJWrENss=", q.Get("k"))
}

func TestActOn_EmptyMakesNoRequest(t *testing.T) {
	sess := mobileSession(respond(http.StatusOK, `{"success":false}`))
	c := newTestClient(t, sess)
	assert.True(t, c.ActOn(context.Background(), nil, true))
	assert.True(t, c.ActOn(context.Background(), []Confirmation{}, false))
	assert.Zero(t, sess.calls())
}

func TestActOn_FailuresReportFalse(t *testing.T) {
	confs := []Confirmation{{ID: "1", Nonce: "x"}}

	for name, h := range map[string]http.HandlerFunc{
		"success false": respond(http.StatusOK, `{"success":false}`),
		"malformed":     respond(http.StatusOK, `nope`),
		"bad status":    respond(http.StatusBadGateway, ``),
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, mobileSession(h))
			assert.False(t, c.ActOn(context.Background(), confs, true))
		})
	}

	sess := mobileSession(nil)
	sess.err = errors.New("dial tcp: timeout")
	c := newTestClient(t, sess)
	assert.False(t, c.ActOn(context.Background(), confs, true))
}

func TestAcceptAll(t *testing.T) {
	sess := mobileSession(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			respond(http.StatusOK, `{"success":true,"conf":[{"id":"1","nonce":"a"},{"id":"2","nonce":"b"}]}`)(w, r)
			return
		}
		respond(http.StatusOK, `{"success":true}`)(w, r)
	})
	c := newTestClient(t, sess)

	res, err := c.AcceptAll(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Confirmations, 2)
	assert.Equal(t, 2, sess.calls())
	assert.Equal(t, []string{"1", "2"}, formValues(t, sess.requests[1], sess.bodies[1])["cid[]"])
}

func TestAcceptAll_NothingPending(t *testing.T) {
	sess := mobileSession(respond(http.StatusOK, `{"success":true,"conf":[]}`))
	c := newTestClient(t, sess)

	res, err := c.AcceptAll(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Confirmations)
	assert.Equal(t, 1, sess.calls())
}

func TestAcceptAll_ListFailure(t *testing.T) {
	sess := mobileSession(respond(http.StatusOK, `{"success":true}`))
	c := newTestClient(t, sess)
	_, err := c.AcceptAll(context.Background())
	assert.ErrorIs(t, err, utils.ErrMalformedResponse)
	assert.Equal(t, 1, sess.calls())
}

func TestActOnIDs(t *testing.T) {
	sess := mobileSession(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			respond(http.StatusOK, `{"success":true,"conf":[{"id":"1","nonce":"a"},{"id":"2","nonce":"b"},{"id":"3","nonce":"c"}]}`)(w, r)
			return
		}
		respond(http.StatusOK, `{"success":true}`)(w, r)
	})
	c := newTestClient(t, sess)

	acted, missing, ok, err := c.ActOnIDs(context.Background(), []string{"3", "1", "7"}, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"7"}, missing)
	require.Len(t, acted, 2)
	assert.Equal(t, "1", acted[0].ID)
	assert.Equal(t, "3", acted[1].ID)

	_, _, _, err = c.ActOnIDs(context.Background(), nil, true)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestActOnIDs_NonePendingReportsFalse(t *testing.T) {
	sess := mobileSession(respond(http.StatusOK, `{"success":true,"conf":[{"id":"1","nonce":"a"}]}`))
	c := newTestClient(t, sess)

	acted, missing, ok, err := c.ActOnIDs(context.Background(), []string{"7", "8"}, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, acted)
	assert.Equal(t, []string{"7", "8"}, missing)
	assert.Equal(t, 1, sess.calls())
}

func TestURL(t *testing.T) {
	c, err := New(context.Background(), mobileSession(nil), Options{
		IdentitySecret: testIdentity,
		Strategy:       utils.Explicit{Value: "d"},
		BaseURL:        "http://localhost:9999/conf",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/conf/getlist", c.URL("/getlist", nil))
	assert.Equal(t, DefaultBaseURL+"details/5?tag=details", newTestClient(t, mobileSession(nil)).URL("details/5", map[string][]string{"tag": {"details"}}))
}
