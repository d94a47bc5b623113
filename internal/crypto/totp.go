package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/harrylevesque/steamguard/internal/utils"
)

const (
	// TimeStep is the lifetime of one auth code.
	TimeStep = 30 * time.Second
	// CodeLength is the number of characters in an auth code.
	CodeLength = 5
	// codeAlphabet is the 26-symbol alphabet the mobile authenticator renders codes with.
	codeAlphabet = "23456789BCDFGHJKMNPQRTVWXY"
)

var hexSecret = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Secrets are the per-account secrets handed out at authenticator enrollment.
// Shared feeds auth codes; Identity feeds confirmation keys. Either may be empty.
type Secrets struct {
	Shared   string `json:"shared_secret"`
	Identity string `json:"identity_secret"`
}

// DecodeSecret turns a base64 (or 40-char hex) secret into raw key bytes.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, utils.Wrap(utils.CodeInvalidSecret, utils.ErrInvalidSecret, "secret is empty")
	}
	if hexSecret.MatchString(secret) {
		return hex.DecodeString(secret)
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(secret, "="))
	}
	if err != nil || len(key) == 0 {
		return nil, utils.Wrap(utils.CodeInvalidSecret, utils.ErrInvalidSecret, "secret is not valid base64")
	}
	return key, nil
}

// TimeCounter returns floor(unix / 30) for t.
func TimeCounter(t time.Time) uint64 {
	return uint64(t.Unix() / int64(TimeStep/time.Second))
}

// GenerateAuthCode derives the 5-character code for the time step containing at.
func GenerateAuthCode(sharedSecret string, at time.Time) (string, error) {
	key, err := DecodeSecret(sharedSecret)
	if err != nil {
		return "", err
	}
	return authCodeForCounter(key, TimeCounter(at)), nil
}

func authCodeForCounter(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)
	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	full := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := make([]byte, CodeLength)
	for i := range code {
		code[i] = codeAlphabet[full%uint32(len(codeAlphabet))]
		full /= uint32(len(codeAlphabet))
	}
	return string(code)
}

// GenerateConfirmationKey signs timestamp||tag with the identity secret.
// The same tag "accept" is used for both allow and cancel operations.
func GenerateConfirmationKey(identitySecret string, timestamp int64, tag string) (string, error) {
	key, err := DecodeSecret(identitySecret)
	if err != nil {
		return "", err
	}
	msg := make([]byte, 8, 8+len(tag))
	binary.BigEndian.PutUint64(msg, uint64(timestamp))
	msg = append(msg, tag...)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
