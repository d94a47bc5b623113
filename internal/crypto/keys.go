package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MasterKeySize is the length of the master key in bytes (64 hex chars).
const MasterKeySize = 32

// ParseMasterKey decodes a hex master key.
func ParseMasterKey(hexKey string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != MasterKeySize {
		return nil, ErrInvalidKeyLength
	}
	return b, nil
}

// DeriveFileKey derives the AES key for one account's secrets file from the master key,
// bound to the account id so files cannot be swapped between accounts.
func DeriveFileKey(masterKey []byte, accountID string) ([]byte, error) {
	if len(masterKey) != MasterKeySize {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, masterKey, []byte(accountID), []byte("steamguard-secrets-file"))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// MustRandom returns n random bytes or panics.
func MustRandom(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return b
}
