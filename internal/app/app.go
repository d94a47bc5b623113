// Package app wires configuration into the code guard, the confirmation client
// and their stores. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/harrylevesque/steamguard/internal/cache"
	"github.com/harrylevesque/steamguard/internal/certs"
	"github.com/harrylevesque/steamguard/internal/config"
	"github.com/harrylevesque/steamguard/internal/crypto"
	"github.com/harrylevesque/steamguard/internal/files"
	"github.com/harrylevesque/steamguard/internal/guard"
	"github.com/harrylevesque/steamguard/internal/mobileconf"
	"github.com/harrylevesque/steamguard/internal/session"
	"github.com/harrylevesque/steamguard/internal/utils"
)

// ErrConfirmationsDisabled is returned when no session cookies or identity secret are configured.
var ErrConfirmationsDisabled = errors.New("confirmations are not configured")

// ErrCodesDisabled is returned when no shared secret is configured.
var ErrCodesDisabled = errors.New("auth codes are not configured")

// App holds the wired components for one account.
type App struct {
	AccountID string
	Secrets   crypto.Secrets
	Logger    logrus.FieldLogger

	guard         *guard.UniqueCodeGuard
	confirmations *mobileconf.Client
	redis         *redis.Client
}

// Build loads secrets and constructs whatever the configuration allows. Missing
// cookies leave confirmations disabled; a missing shared secret leaves codes disabled.
func Build(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*App, error) {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	a := &App{AccountID: strings.TrimSpace(cfg.AccountID), Logger: logger}

	deviceFromFile, err := a.loadSecrets(cfg)
	if err != nil {
		return nil, err
	}

	if a.Secrets.Shared != "" {
		a.guard, err = guard.ForSecret(a.Secrets.Shared, guard.WithLogger(logger.WithField("component", "guard")))
		if err != nil {
			return nil, fmt.Errorf("shared secret: %w", err)
		}
	}

	if cfg.Cookies == "" || a.Secrets.Identity == "" {
		logger.Info("confirmations disabled: cookies or identity secret missing")
		return a, nil
	}

	sess, err := newSession(cfg, a.AccountID)
	if err != nil {
		return nil, err
	}

	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}
	if deviceFromFile != "" && cfg.DeviceID == "" {
		strategy = utils.Explicit{Value: deviceFromFile}
	}

	store, err := a.deviceStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.confirmations, err = mobileconf.New(ctx, sess, mobileconf.Options{
		IdentitySecret: a.Secrets.Identity,
		Strategy:       strategy,
		Store:          store,
		BaseURL:        cfg.BaseURL,
		Logger:         logger.WithField("component", "mobileconf"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"strategy":  strategy.Name(),
		"device_id": a.confirmations.DeviceID(),
	}).Info("confirmation client ready")
	return a, nil
}

// loadSecrets prefers secrets given directly in config and otherwise reads the
// account file. It returns the device id recorded in the account file, if any.
func (a *App) loadSecrets(cfg config.Config) (string, error) {
	a.Secrets = crypto.Secrets{Shared: cfg.SharedSecret, Identity: cfg.IdentitySecret}
	if a.Secrets.Shared != "" || a.Secrets.Identity != "" || a.AccountID == "" {
		return "", nil
	}

	masterKey, err := MasterKey(cfg)
	if err != nil {
		return "", err
	}
	acct, err := files.LoadAccount(cfg.SecretsDir, a.AccountID, masterKey)
	if err != nil {
		return "", err
	}
	a.Secrets = acct.Secrets()
	return acct.DeviceID, nil
}

// MasterKey resolves the master key from hex config or the key file. It returns
// nil when neither is configured.
func MasterKey(cfg config.Config) ([]byte, error) {
	key, err := files.ReadMasterKey(cfg.MasterKeyHex)
	if err != nil || key != nil {
		return key, err
	}
	if cfg.MasterKeyFile != "" {
		return files.ReadMasterKeyFile(cfg.MasterKeyFile)
	}
	return nil, nil
}

func newSession(cfg config.Config, accountID string) (session.Session, error) {
	sc := session.CookieSessionConfig{
		AccountID: accountID,
		Cookies:   cfg.Cookies,
		Mobile:    cfg.Mobile,
		Timeout:   cfg.HTTPTimeout,
	}
	if cfg.CertDir != "" {
		pool, err := certs.NewCertManager(cfg.CertDir).Pool()
		if err != nil {
			return nil, fmt.Errorf("load certificates: %w", err)
		}
		sc.RootCAs = pool
	}
	return session.NewCookieSession(sc)
}

// resettableStore is a mobileconf.DeviceStore that can also forget a binding.
type resettableStore interface {
	mobileconf.DeviceStore
	Delete(ctx context.Context, accountID string) error
}

func (a *App) deviceStore(ctx context.Context, cfg config.Config) (resettableStore, error) {
	switch cfg.DeviceStore {
	case config.StoreFile:
		return files.NewDeviceStore(cfg.DeviceStoreDir), nil
	case config.StoreRedis:
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		return cache.NewRedisDeviceStore(client), nil
	default:
		return nil, nil
	}
}

// ResetDevice removes the device id stored for the configured account, so the
// next Build resolves a fresh one. It reports false when no store is configured.
func ResetDevice(ctx context.Context, cfg config.Config) (bool, error) {
	accountID := strings.TrimSpace(cfg.AccountID)
	if accountID == "" {
		return false, utils.Wrap(utils.CodeInvalidInput, utils.ErrMissingAccountID, "reset device")
	}
	a := &App{AccountID: accountID}
	defer a.Close()

	store, err := a.deviceStore(ctx, cfg)
	if err != nil || store == nil {
		return false, err
	}
	if err := store.Delete(ctx, accountID); err != nil {
		return false, fmt.Errorf("delete device id: %w", err)
	}
	return true, nil
}

// Guard returns the code guard or ErrCodesDisabled.
func (a *App) Guard() (*guard.UniqueCodeGuard, error) {
	if a.guard == nil {
		return nil, ErrCodesDisabled
	}
	return a.guard, nil
}

// Confirmations returns the confirmation client or ErrConfirmationsDisabled.
func (a *App) Confirmations() (*mobileconf.Client, error) {
	if a.confirmations == nil {
		return nil, ErrConfirmationsDisabled
	}
	return a.confirmations, nil
}

var _ io.Closer = (*App)(nil)

// Close releases the Redis connection, if one was opened.
func (a *App) Close() error {
	if a.redis == nil {
		return nil
	}
	err := a.redis.Close()
	a.redis = nil
	return err
}
