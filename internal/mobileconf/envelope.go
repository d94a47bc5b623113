package mobileconf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/harrylevesque/steamguard/internal/utils"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 4 << 20

type successEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// NeedAuth is set when the session cookies were rejected.
	NeedAuth bool `json:"needauth"`
}

type listEnvelope struct {
	Conf json.RawMessage `json:"conf"`
}

// decodeSuccessfulJSON reads a JSON envelope, requires a 2xx status and success=true,
// then decodes it into out (when non-nil).
func decodeSuccessfulJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return utils.Wrap(utils.CodeUnsuccessfulResponse, utils.ErrUnsuccessfulResponse, "status %d", resp.StatusCode)
	}

	var env successEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return utils.Wrap(utils.CodeMalformedResponse, utils.ErrMalformedResponse, "decode envelope: %v", err)
	}
	if !env.Success {
		msg := env.Message
		if env.NeedAuth {
			msg = "session requires authentication"
		}
		return utils.Wrap(utils.CodeUnsuccessfulResponse, utils.ErrUnsuccessfulResponse, "success=false %s", msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return utils.Wrap(utils.CodeMalformedResponse, utils.ErrMalformedResponse, "decode body: %v", err)
	}
	return nil
}

// confirmationsForm builds a multipart body repeating cid[] and ck[] per confirmation, in order.
func confirmationsForm(confs []Confirmation) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, c := range confs {
		if err := w.WriteField("cid[]", c.ID); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("ck[]", c.Nonce); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}
