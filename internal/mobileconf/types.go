package mobileconf

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
)

// Confirmation type codes as reported by the server.
const (
	TypeGeneric       = 1
	TypeTrade         = 2
	TypeMarketListing = 3
	TypeAccountChange = 5
	TypeAPIKey        = 9
)

// Confirmation describes one pending action. The client reads only ID and Nonce.
// A decoded confirmation keeps the element exactly as the server sent it and
// re-encodes to those bytes, so fields this type does not name pass through.
type Confirmation struct {
	Type         int      `json:"type"`
	TypeName     string   `json:"type_name"`
	ID           string   `json:"id"`
	CreatorID    string   `json:"creator_id"`
	Nonce        string   `json:"nonce"`
	CreationTime int64    `json:"creation_time"`
	Cancel       string   `json:"cancel"`
	Accept       string   `json:"accept"`
	Icon         string   `json:"icon"`
	Multi        bool     `json:"multi"`
	Headline     string   `json:"headline"`
	Summary      []string `json:"summary"`
	Warn         *string  `json:"warn"`

	raw json.RawMessage
}

type confirmationFields Confirmation

// Raw returns the element as received, or nil for a confirmation built in code.
func (c Confirmation) Raw() json.RawMessage { return c.raw }

// UnmarshalJSON decodes id and nonce strictly. The display fields are best
// effort: a value of an unexpected type leaves the field zero.
func (c *Confirmation) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var keys struct {
		ID    string `json:"id"`
		Nonce string `json:"nonce"`
	}
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	*c = Confirmation{ID: keys.ID, Nonce: keys.Nonce}
	c.Type = int(lenientInt(fields["type"]))
	c.CreationTime = lenientInt(fields["creation_time"])
	lenient(fields["type_name"], &c.TypeName)
	lenient(fields["creator_id"], &c.CreatorID)
	lenient(fields["cancel"], &c.Cancel)
	lenient(fields["accept"], &c.Accept)
	lenient(fields["icon"], &c.Icon)
	lenient(fields["multi"], &c.Multi)
	lenient(fields["headline"], &c.Headline)
	lenient(fields["summary"], &c.Summary)
	lenient(fields["warn"], &c.Warn)
	c.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the received element when there is one.
func (c Confirmation) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	return json.Marshal(confirmationFields(c))
}

func lenient(raw json.RawMessage, out any) {
	if raw == nil {
		return
	}
	_ = json.Unmarshal(raw, out)
}

// lenientInt accepts a JSON number or a string holding one.
func lenientInt(raw json.RawMessage) int64 {
	if raw == nil {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int64(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(v)
	}
	return 0
}

// AcceptAllResult is the snapshot AcceptAll acted on and whether the server accepted it.
type AcceptAllResult struct {
	Confirmations []Confirmation `json:"confirmations"`
	Success       bool           `json:"success"`
}

// DeviceStore persists the device id bound to an account so it stays stable across runs.
// Load returns "" and a nil error when nothing is stored.
type DeviceStore interface {
	Load(ctx context.Context, accountID string) (string, error)
	Save(ctx context.Context, accountID, deviceID string) error
}
