package utils

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// EnvSalt is the deployment-level salt used when deriving a device id from an account id.
const EnvSalt = "STEAM_TOTP_SALT"

// DeriveDeviceID hashes the concatenated parts with SHA-1 and formats the first
// 32 hex characters as an uppercase 8-4-4-4-12 identifier.
func DeriveDeviceID(parts ...string) (string, error) {
	seed := strings.Join(parts, "")
	if seed == "" {
		return "", Wrap(CodeInvalidInput, ErrInvalidInput, "device id seed must not be empty")
	}
	sum := sha1.Sum([]byte(seed))
	h := hex.EncodeToString(sum[:])
	id := strings.Join([]string{h[0:8], h[8:12], h[12:16], h[16:20], h[20:32]}, "-")
	return strings.ToUpper(id), nil
}

// SaltSource returns the configured salt, or 8 random bytes hex-encoded when none is set.
func SaltSource(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// EnvSaltSource is SaltSource fed from STEAM_TOTP_SALT.
func EnvSaltSource() (string, error) {
	return SaltSource(strings.TrimSpace(os.Getenv(EnvSalt)))
}

// RandomDeviceID returns a random UUID, uppercased.
func RandomDeviceID() string {
	return strings.ToUpper(uuid.New().String())
}

// DeviceStrategy selects how a client obtains its device id. It is chosen once
// at construction: Derived, Random or Explicit.
type DeviceStrategy interface {
	Resolve(accountID string) (string, error)
	Name() string
}

// Derived hashes the account id with a salt. An empty AccountID means "use the
// session's account id".
type Derived struct {
	AccountID string
	Salt      string
}

func (d Derived) Resolve(accountID string) (string, error) {
	id := d.AccountID
	if id == "" {
		id = accountID
	}
	if id == "" {
		return "", Wrap(CodeConstruction, ErrMissingAccountID, "derived device id")
	}
	var (
		salt string
		err  error
	)
	if d.Salt != "" {
		salt, err = SaltSource(d.Salt)
	} else {
		salt, err = EnvSaltSource()
	}
	if err != nil {
		return "", err
	}
	return DeriveDeviceID(id, salt)
}

func (Derived) Name() string { return "derived" }

type Random struct{}

func (Random) Resolve(string) (string, error) { return RandomDeviceID(), nil }

func (Random) Name() string { return "random" }

type Explicit struct {
	Value string
}

func (e Explicit) Resolve(string) (string, error) {
	if strings.TrimSpace(e.Value) == "" {
		return "", Wrap(CodeConstruction, ErrMissingDeviceID, "explicit strategy without a value")
	}
	return e.Value, nil
}

func (Explicit) Name() string { return "explicit" }

// ParseStrategy maps a config value onto a DeviceStrategy.
func ParseStrategy(name, explicitValue, salt string) (DeviceStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "derived":
		return Derived{Salt: salt}, nil
	case "random":
		return Random{}, nil
	case "explicit":
		if explicitValue == "" {
			return nil, Wrap(CodeConstruction, ErrMissingDeviceID, "explicit strategy without a value")
		}
		return Explicit{Value: explicitValue}, nil
	default:
		return nil, Wrap(CodeInvalidInput, ErrInvalidInput, "unknown device strategy %q", name)
	}
}

// GetDeviceFingerprints returns the host hardware UUIDs. Callers may feed one in
// as an explicit salt for derived device ids.
func GetDeviceFingerprints() ([]string, error) {
	osName := runtime.GOOS
	switch osName {
	case "darwin":
		return getMacOSUUID()
	case "linux":
		return getLinuxUUID()
	case "windows":
		return getWindowsUUID()
	default:
		return nil, errors.New("unsupported platform: " + osName)
	}
}

func getMacOSUUID() ([]string, error) {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "IOPlatformUUID") {
			parts := strings.Split(line, "\"")
			if len(parts) >= 4 {
				ids = append(ids, parts[3])
			}
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no IOPlatformUUID found")
	}
	return ids, nil
}

func getLinuxUUID() ([]string, error) {
	for _, path := range []string{"/sys/class/dmi/id/product_uuid", "/etc/machine-id"} {
		out, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(out)); id != "" {
			return []string{id}, nil
		}
	}
	return nil, errors.New("no hardware UUID found on Linux")
}

func getWindowsUUID() ([]string, error) {
	out, err := exec.Command("wmic", "csproduct", "get", "UUID").Output()
	if err != nil {
		return nil, err
	}
	for _, line := range bytes.Split(out, []byte("\n")) {
		s := strings.TrimSpace(string(line))
		if s != "" && !strings.EqualFold(s, "UUID") {
			return []string{s}, nil
		}
	}
	return nil, errors.New("no hardware UUID found on Windows")
}
