// ABOUTME: The {mode, data} argument envelope shared by lizi_verify and lizi_secrets.
// ABOUTME: data may arrive as a JSON object or as a JSON-encoded string holding one.

package builtins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389/lizi-tools/internal/apperr"
)

type envelope struct {
	Mode string          `json:"mode"`
	Data json.RawMessage `json:"data,omitempty"`
}

func decodeEnvelope(input json.RawMessage) (envelope, error) {
	var env envelope
	if len(bytes.TrimSpace(input)) == 0 {
		return env, fmt.Errorf("%w: mode is required", apperr.ErrValidation)
	}
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return env, fmt.Errorf("%w: invalid input: %v", apperr.ErrValidation, err)
	}
	if env.Mode == "" {
		return env, fmt.Errorf("%w: mode is required", apperr.ErrValidation)
	}
	return env, nil
}

// payload returns data as raw JSON. A JSON string is unwrapped once; if its
// contents are not a JSON object the bare string is reported via text.
func (e envelope) payload() (raw []byte, text string, err error) {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, "", nil
	}
	if data[0] != '"' {
		return data, "", nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, "", fmt.Errorf("%w: data: %v", apperr.ErrValidation, err)
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, "", nil
	}
	if strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), "", nil
	}
	return nil, s, nil
}
