// Package config resolves runtime settings for the CLI and the companion server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrylevesque/steamguard/internal/utils"
)

// Device store backends.
const (
	StoreNone  = "none"
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config is the resolved configuration: defaults, then the YAML file, then env.
type Config struct {
	AccountID string
	Cookies   string
	// Mobile marks the cookies as coming from a mobile login.
	Mobile bool

	// SharedSecret and IdentitySecret override the account file when set.
	SharedSecret   string
	IdentitySecret string

	SecretsDir          string
	MasterKeyHex        string
	MasterKeyFile       string
	EncryptAccountFiles bool

	DeviceStrategy string
	DeviceID       string
	DeviceSalt     string
	DeviceStore    string
	DeviceStoreDir string
	RedisURL       string

	CertDir     string
	BaseURL     string
	HTTPTimeout time.Duration
	ListenAddr  string

	LogFile  string
	LogLevel string
}

type configFile struct {
	Account struct {
		ID             string `yaml:"id"`
		Cookies        string `yaml:"cookies"`
		Mobile         *bool  `yaml:"mobile"`
		SharedSecret   string `yaml:"shared_secret"`
		IdentitySecret string `yaml:"identity_secret"`
	} `yaml:"account"`
	Secrets struct {
		Dir           string `yaml:"dir"`
		MasterKeyHex  string `yaml:"master_key_hex"`
		MasterKeyFile string `yaml:"master_key_file"`
		Encrypt       *bool  `yaml:"encrypt"`
	} `yaml:"secrets"`
	Device struct {
		Strategy string `yaml:"strategy"`
		ID       string `yaml:"id"`
		Salt     string `yaml:"salt"`
		Store    string `yaml:"store"`
		StoreDir string `yaml:"store_dir"`
	} `yaml:"device"`
	Dependencies struct {
		RedisURL string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	HTTP struct {
		CertDir        string `yaml:"cert_dir"`
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		ListenAddr     string `yaml:"listen_addr"`
	} `yaml:"http"`
	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file or env override is present.
func Default() Config {
	return Config{
		Mobile:              true,
		SecretsDir:          utils.GetAccountsDir(),
		EncryptAccountFiles: true,
		DeviceStrategy:      "derived",
		DeviceStore:         StoreFile,
		DeviceStoreDir:      utils.GetDataDir(),
		HTTPTimeout:         15 * time.Second,
		ListenAddr:          ":8080",
		LogLevel:            "info",
	}
}

// Load resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyFile(&cfg, raw); err != nil {
				return Config{}, err
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	setString(&cfg.AccountID, f.Account.ID)
	setString(&cfg.Cookies, f.Account.Cookies)
	if f.Account.Mobile != nil {
		cfg.Mobile = *f.Account.Mobile
	}
	setString(&cfg.SharedSecret, f.Account.SharedSecret)
	setString(&cfg.IdentitySecret, f.Account.IdentitySecret)

	setString(&cfg.SecretsDir, f.Secrets.Dir)
	setString(&cfg.MasterKeyHex, f.Secrets.MasterKeyHex)
	setString(&cfg.MasterKeyFile, f.Secrets.MasterKeyFile)
	if f.Secrets.Encrypt != nil {
		cfg.EncryptAccountFiles = *f.Secrets.Encrypt
	}

	setString(&cfg.DeviceStrategy, f.Device.Strategy)
	setString(&cfg.DeviceID, f.Device.ID)
	setString(&cfg.DeviceSalt, f.Device.Salt)
	setString(&cfg.DeviceStore, f.Device.Store)
	setString(&cfg.DeviceStoreDir, f.Device.StoreDir)
	setString(&cfg.RedisURL, f.Dependencies.RedisURL)

	setString(&cfg.CertDir, f.HTTP.CertDir)
	setString(&cfg.BaseURL, f.HTTP.BaseURL)
	if f.HTTP.TimeoutSeconds > 0 {
		cfg.HTTPTimeout = time.Duration(f.HTTP.TimeoutSeconds) * time.Second
	}
	setString(&cfg.ListenAddr, f.HTTP.ListenAddr)

	setString(&cfg.LogFile, f.Log.File)
	setString(&cfg.LogLevel, f.Log.Level)
	return nil
}

func applyEnv(cfg *Config) {
	cfg.AccountID = envOrDefault("STEAMGUARD_ACCOUNT_ID", cfg.AccountID)
	cfg.Cookies = envOrDefault("STEAMGUARD_COOKIES", cfg.Cookies)
	cfg.Mobile = envBool("STEAMGUARD_MOBILE", cfg.Mobile)
	cfg.SharedSecret = envOrDefault("STEAMGUARD_SHARED_SECRET", cfg.SharedSecret)
	cfg.IdentitySecret = envOrDefault("STEAMGUARD_IDENTITY_SECRET", cfg.IdentitySecret)

	cfg.SecretsDir = envOrDefault("STEAMGUARD_SECRETS_DIR", cfg.SecretsDir)
	cfg.MasterKeyHex = envOrDefault("MASTER_KEY_HEX", cfg.MasterKeyHex)
	cfg.MasterKeyFile = envOrDefault("STEAMGUARD_MASTER_KEY_FILE", cfg.MasterKeyFile)
	cfg.EncryptAccountFiles = envBool("STEAMGUARD_ENCRYPT_ACCOUNT_FILES", cfg.EncryptAccountFiles)

	cfg.DeviceStrategy = strings.ToLower(strings.TrimSpace(envOrDefault("STEAMGUARD_DEVICE_STRATEGY", cfg.DeviceStrategy)))
	cfg.DeviceID = envOrDefault("STEAMGUARD_DEVICE_ID", cfg.DeviceID)
	cfg.DeviceSalt = envOrDefault(utils.EnvSalt, cfg.DeviceSalt)
	cfg.DeviceStore = strings.ToLower(strings.TrimSpace(envOrDefault("STEAMGUARD_DEVICE_STORE", cfg.DeviceStore)))
	cfg.DeviceStoreDir = envOrDefault("STEAMGUARD_DEVICE_STORE_DIR", cfg.DeviceStoreDir)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)

	cfg.CertDir = envOrDefault("STEAMGUARD_CERT_DIR", cfg.CertDir)
	cfg.BaseURL = envOrDefault("STEAMGUARD_BASE_URL", cfg.BaseURL)
	cfg.HTTPTimeout = time.Duration(envInt("STEAMGUARD_HTTP_TIMEOUT_SECONDS", int(cfg.HTTPTimeout.Seconds()))) * time.Second
	cfg.ListenAddr = envOrDefault("STEAMGUARD_LISTEN_ADDR", cfg.ListenAddr)

	cfg.LogFile = envOrDefault("STEAMGUARD_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = envOrDefault("STEAMGUARD_LOG_LEVEL", cfg.LogLevel)
}

// Validate rejects combinations that cannot be wired.
func (c Config) Validate() error {
	if _, err := utils.ParseStrategy(c.DeviceStrategy, c.DeviceID, c.DeviceSalt); err != nil {
		return err
	}
	switch c.DeviceStore {
	case StoreNone, StoreFile:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("device store %q requires REDIS_URL", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown device store %q", c.DeviceStore)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	return nil
}

// Strategy builds the device strategy named by the configuration.
func (c Config) Strategy() (utils.DeviceStrategy, error) {
	return utils.ParseStrategy(c.DeviceStrategy, c.DeviceID, c.DeviceSalt)
}

// LoggerOptions maps the log settings onto utils.NewLogger.
func (c Config) LoggerOptions() utils.LoggerOptions {
	return utils.LoggerOptions{FilePath: c.LogFile, Level: c.LogLevel}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(name string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
