// Package mobileconf lists and answers pending mobile confirmations on behalf of
// an authenticated mobile session.
package mobileconf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harrylevesque/steamguard/internal/crypto"
	"github.com/harrylevesque/steamguard/internal/session"
	"github.com/harrylevesque/steamguard/internal/utils"
)

// DefaultBaseURL is the confirmation endpoint root.
const DefaultBaseURL = "https://steamcommunity.com/mobileconf/"

const (
	tagList   = "list"
	tagAccept = "accept"
	opAllow   = "allow"
	opCancel  = "cancel"
)

// Options configures New.
type Options struct {
	// IdentitySecret signs every request. Required.
	IdentitySecret string
	// Strategy selects the device id. Nil means Derived with the session account id.
	Strategy utils.DeviceStrategy
	// Store, when set, keeps derived and random ids stable across runs.
	Store   DeviceStore
	BaseURL string
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// Client signs and sends confirmation requests. It is safe for concurrent use
// when the underlying session is.
type Client struct {
	sess      session.Session
	accountID string
	identity  string
	deviceID  string
	baseURL   string
	logger    logrus.FieldLogger
	now       func() time.Time
}

// New validates the session and resolves the device id. Construction fails
// before any request is made when the session is not mobile, has no account id,
// or no device id can be obtained.
func New(ctx context.Context, sess session.Session, opts Options) (*Client, error) {
	if sess == nil {
		return nil, utils.Wrap(utils.CodeConstruction, utils.ErrInvalidInput, "nil session")
	}
	if !sess.Mobile() {
		return nil, utils.Wrap(utils.CodeConstruction, utils.ErrSessionNotMobile, "confirmation client")
	}
	accountID := strings.TrimSpace(sess.AccountID())
	if accountID == "" {
		return nil, utils.Wrap(utils.CodeConstruction, utils.ErrMissingAccountID, "confirmation client")
	}
	if _, err := crypto.DecodeSecret(opts.IdentitySecret); err != nil {
		return nil, fmt.Errorf("identity secret: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	deviceID, err := resolveDeviceID(ctx, accountID, opts.Strategy, opts.Store)
	if err != nil {
		return nil, err
	}

	return &Client{
		sess:      sess,
		accountID: accountID,
		identity:  opts.IdentitySecret,
		deviceID:  deviceID,
		baseURL:   base,
		logger:    logger.WithField("account_id", accountID),
		now:       now,
	}, nil
}

// resolveDeviceID prefers a stored id. A freshly resolved id is saved and the
// store is read back, so a process that loses a race adopts the winner's id.
func resolveDeviceID(ctx context.Context, accountID string, strategy utils.DeviceStrategy, store DeviceStore) (string, error) {
	if strategy == nil {
		strategy = utils.Derived{}
	}
	if _, explicit := strategy.(utils.Explicit); explicit || store == nil {
		return strategy.Resolve(accountID)
	}

	stored, err := store.Load(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("load device id: %w", err)
	}
	if stored != "" {
		return stored, nil
	}
	id, err := strategy.Resolve(accountID)
	if err != nil {
		return "", err
	}
	if err := store.Save(ctx, accountID, id); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	stored, err = store.Load(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("reload device id: %w", err)
	}
	if stored != "" {
		return stored, nil
	}
	return id, nil
}

// DeviceID returns the id sent as p on every request.
func (c *Client) DeviceID() string { return c.deviceID }

// URL joins path onto the base URL and appends params as a query string.
func (c *Client) URL(path string, params url.Values) string {
	u := c.baseURL + strings.TrimPrefix(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// params builds the signed query for one request. The timestamp is captured once
// so that t and k always agree.
func (c *Client) params(tag string) (url.Values, error) {
	ts := c.now().Unix()
	key, err := crypto.GenerateConfirmationKey(c.identity, ts, tag)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"p":   {c.deviceID},
		"a":   {c.accountID},
		"k":   {key},
		"t":   {strconv.FormatInt(ts, 10)},
		"m":   {"react"},
		"tag": {tag},
	}, nil
}

// ListPending fetches the pending confirmations in server order.
func (c *Client) ListPending(ctx context.Context) ([]Confirmation, error) {
	params, err := c.params(tagList)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL("getlist", params), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.sess.AuthorizedRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("getlist: %w", err)
	}

	var env listEnvelope
	if err := decodeSuccessfulJSON(resp, &env); err != nil {
		return nil, err
	}
	if len(env.Conf) == 0 || string(env.Conf) == "null" {
		return nil, utils.MalformedResponse("conf")
	}
	var confs []Confirmation
	if err := json.Unmarshal(env.Conf, &confs); err != nil {
		return nil, utils.Wrap(utils.CodeMalformedResponse, utils.ErrMalformedResponse, "decode conf: %v", err)
	}
	if confs == nil {
		confs = []Confirmation{}
	}
	c.logger.WithField("count", len(confs)).Debug("listed confirmations")
	return confs, nil
}

// ActOn accepts or denies confs in one request. An empty slice is a no-op that
// reports true. Every failure is logged and reported as false.
func (c *Client) ActOn(ctx context.Context, confs []Confirmation, accept bool) bool {
	if len(confs) == 0 {
		return true
	}
	op := opCancel
	if accept {
		op = opAllow
	}
	log := c.logger.WithFields(logrus.Fields{"op": op, "count": len(confs)})

	if err := c.multiAjaxOp(ctx, confs, op); err != nil {
		log.WithError(err).Warn("confirmation op failed")
		return false
	}
	log.Info("confirmation op succeeded")
	return true
}

func (c *Client) multiAjaxOp(ctx context.Context, confs []Confirmation, op string) error {
	params, err := c.params(tagAccept)
	if err != nil {
		return err
	}
	params.Set("op", op)

	body, contentType, err := confirmationsForm(confs)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL("multiajaxop", params), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.sess.AuthorizedRequest(ctx, req)
	if err != nil {
		return err
	}
	return decodeSuccessfulJSON(resp, nil)
}

// AcceptAll lists the pending confirmations and accepts that snapshot.
// Confirmations created after the list call are not included.
func (c *Client) AcceptAll(ctx context.Context) (AcceptAllResult, error) {
	confs, err := c.ListPending(ctx)
	if err != nil {
		return AcceptAllResult{}, err
	}
	return AcceptAllResult{
		Confirmations: confs,
		Success:       c.ActOn(ctx, confs, true),
	}, nil
}

// ActOnIDs lists the pending confirmations and acts on those whose id is in ids,
// keeping server order. Unknown ids are returned in missing. When none of ids is
// pending no request is sent and ok is false.
func (c *Client) ActOnIDs(ctx context.Context, ids []string, accept bool) (acted []Confirmation, missing []string, ok bool, err error) {
	if len(ids) == 0 {
		return nil, nil, false, utils.Wrap(utils.CodeInvalidInput, utils.ErrInvalidInput, "no confirmation ids")
	}
	pending, err := c.ListPending(ctx)
	if err != nil {
		return nil, nil, false, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, conf := range pending {
		if want[conf.ID] {
			acted = append(acted, conf)
			delete(want, conf.ID)
		}
	}
	for _, id := range ids {
		if want[id] {
			missing = append(missing, id)
		}
	}
	if len(acted) == 0 {
		c.logger.WithField("missing", missing).Warn("none of the requested confirmations are pending")
		return nil, missing, false, nil
	}
	return acted, missing, c.ActOn(ctx, acted, accept), nil
}
