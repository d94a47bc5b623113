package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const deviceStoreFile = "devices.json"

// DeviceRecord is one persisted device id.
type DeviceRecord struct {
	AccountID string    `json:"account_id"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DeviceStore keeps account to device id bindings in a JSON file.
type DeviceStore struct {
	filePath string
	mu       sync.RWMutex
}

// NewDeviceStore creates a DeviceStore writing to dir/devices.json.
func NewDeviceStore(dir string) *DeviceStore {
	return &DeviceStore{filePath: filepath.Join(dir, deviceStoreFile)}
}

// Load returns the stored device id for accountID, or "" when none is stored.
func (s *DeviceStore) Load(_ context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.read()
	if err != nil {
		return "", err
	}
	return records[accountID].DeviceID, nil
}

// Save binds deviceID to accountID, replacing any previous binding.
func (s *DeviceStore) Save(_ context.Context, accountID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	records[accountID] = DeviceRecord{
		AccountID: accountID,
		DeviceID:  deviceID,
		CreatedAt: time.Now().UTC(),
	}
	return s.write(records)
}

func (s *DeviceStore) write(records map[string]DeviceRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return err
	}
	return writeFileAtomic(s.filePath, data, 0600)
}

// Delete removes the binding for accountID. Deleting a missing binding is not an error.
func (s *DeviceStore) Delete(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := records[accountID]; !ok {
		return nil
	}
	delete(records, accountID)
	return s.write(records)
}

func (s *DeviceStore) read() (map[string]DeviceRecord, error) {
	records := map[string]DeviceRecord{}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil // File doesn't exist, that's fine
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
