package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrylevesque/steamguard/internal/crypto"
)

// EnvMasterKey names the environment variable holding the hex master key.
const EnvMasterKey = "MASTER_KEY_HEX"

const (
	plainExt     = ".json"
	encryptedExt = ".json.enc"
)

// ErrAccountNotFound is returned when no secrets file exists for an account.
var ErrAccountNotFound = errors.New("account secrets file not found")

// Account is the on-disk record of one enrolled authenticator.
type Account struct {
	AccountID      string    `json:"account_id"`
	AccountName    string    `json:"account_name,omitempty"`
	SharedSecret   string    `json:"shared_secret"`
	IdentitySecret string    `json:"identity_secret"`
	DeviceID       string    `json:"device_id,omitempty"`
	RevocationCode string    `json:"revocation_code,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Secrets returns the signing secrets in the form the crypto package consumes.
func (a *Account) Secrets() crypto.Secrets {
	return crypto.Secrets{Shared: a.SharedSecret, Identity: a.IdentitySecret}
}

// ReadMasterKey parses configured, falling back to MASTER_KEY_HEX.
// It returns nil and no error when neither is set.
func ReadMasterKey(configured string) ([]byte, error) {
	hexk := strings.TrimSpace(configured)
	if hexk == "" {
		hexk = os.Getenv(EnvMasterKey)
	}
	if hexk == "" {
		return nil, nil
	}
	return crypto.ParseMasterKey(hexk)
}

// ReadMasterKeyFile reads a hex master key written by genmasterkey.
func ReadMasterKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return crypto.ParseMasterKey(string(data))
}

// WriteAccountFile stores acct under dir. With a master key the file is
// encrypted with a per-account key; without one it is written as plain JSON.
func WriteAccountFile(dir string, acct *Account, masterKey []byte) (string, error) {
	if strings.TrimSpace(acct.AccountID) == "" {
		return "", errors.New("account id is required")
	}
	acct.UpdatedAt = time.Now().UTC()
	plain, err := json.MarshalIndent(acct, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}

	if masterKey == nil {
		filename := filepath.Join(dir, acct.AccountID+plainExt)
		return filename, writeFileAtomic(filename, plain, 0600)
	}

	fileKey, err := crypto.DeriveFileKey(masterKey, acct.AccountID)
	if err != nil {
		return "", err
	}
	enc, err := crypto.EncryptAESGCM(fileKey, plain)
	if err != nil {
		return "", err
	}
	filename := filepath.Join(dir, acct.AccountID+encryptedExt)
	return filename, writeFileAtomic(filename, enc, 0600)
}

// ReadAccountFile reads the account file at path, decrypting .json.enc files.
func ReadAccountFile(path string, masterKey []byte) (*Account, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	plain := blob
	if strings.HasSuffix(path, encryptedExt) {
		if masterKey == nil {
			return nil, fmt.Errorf("%s is encrypted and no master key is configured", path)
		}
		accountID := strings.TrimSuffix(filepath.Base(path), encryptedExt)
		fileKey, err := crypto.DeriveFileKey(masterKey, accountID)
		if err != nil {
			return nil, err
		}
		plain, err = crypto.DecryptAESGCM(fileKey, blob)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", path, err)
		}
	}

	var a Account
	if err := json.Unmarshal(plain, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadAccount finds accountID under dir, preferring the encrypted file.
func LoadAccount(dir, accountID string, masterKey []byte) (*Account, error) {
	for _, ext := range []string{encryptedExt, plainExt} {
		path := filepath.Join(dir, accountID+ext)
		if _, err := os.Stat(path); err == nil {
			return ReadAccountFile(path, masterKey)
		}
	}
	return nil, fmt.Errorf("%s: %w", accountID, ErrAccountNotFound)
}

// ListAccounts returns the account ids that have a secrets file under dir.
func ListAccounts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	seen := map[string]bool{}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var id string
		switch {
		case strings.HasSuffix(name, encryptedExt):
			id = strings.TrimSuffix(name, encryptedExt)
		case strings.HasSuffix(name, plainExt):
			id = strings.TrimSuffix(name, plainExt)
		default:
			continue
		}
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
