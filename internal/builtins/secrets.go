// ABOUTME: Secrets pack exposes the encrypted vault as the lizi_secrets tool.
// ABOUTME: get always needs a passed lizi_verify check; list never shows values.

package builtins

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/2389/lizi-tools/internal/apperr"
	"github.com/2389/lizi-tools/internal/packs"
	"github.com/2389/lizi-tools/internal/vault"
)

const secretsDescription = `Encrypted storage for highly sensitive information (passwords, card numbers).

A passed lizi_verify check is required before get.

Modes:
- list: list stored keys and descriptions, never values
- get: read a value (data: {"key": "...", "encoding": "base64"} or the bare key)
- set: store a value (data: {"key": "...", "value": "...", "description": "...", "encoding": "base64"})
- delete: remove a value (data: {"key": "..."} or the bare key)

encoding is optional. With "base64" the value is base64 on the wire, for secrets that are not UTF-8 text.
get always answers in base64 when the stored value is not valid UTF-8.`

const secretsSchema = `{"type":"object","properties":{"mode":{"type":"string","enum":["list","get","set","delete"]},"data":{"description":"JSON object, a JSON-encoded string holding one, or a bare key for get and delete"}},"required":["mode"]}`

// SecretsPack creates the secrets pack. auth is consulted on every get.
func SecretsPack(v *vault.Vault, auth vault.Authorizer) *packs.BuiltinPack {
	s := &secretsHandlers{vault: v, auth: auth}
	return &packs.BuiltinPack{
		ID: "builtin:secrets",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:            "lizi_secrets",
					Description:     secretsDescription,
					InputSchemaJSON: secretsSchema,
				},
				Handler: s.Handle,
			},
		},
	}
}

type secretsHandlers struct {
	vault *vault.Vault
	auth  vault.Authorizer
}

const encodingBase64 = "base64"

type secretKeyInput struct {
	Key      string `json:"key"`
	Encoding string `json:"encoding"`
}

type secretSetInput struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	Encoding    string `json:"encoding"`
}

func checkEncoding(enc string) error {
	if enc != "" && enc != encodingBase64 {
		return fmt.Errorf("%w: unknown encoding %q", apperr.ErrValidation, enc)
	}
	return nil
}

// decodeValue turns the wire value into the stored bytes.
func decodeValue(value, enc string) ([]byte, error) {
	if err := checkEncoding(enc); err != nil {
		return nil, err
	}
	if enc != encodingBase64 {
		return []byte(value), nil
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: value is not valid base64: %v", apperr.ErrValidation, err)
	}
	return raw, nil
}

// encodeValue picks base64 when asked or when the bytes would not survive a JSON string.
func encodeValue(raw []byte, enc string) (value, used string) {
	if enc == encodingBase64 || !utf8.Valid(raw) {
		return base64.StdEncoding.EncodeToString(raw), encodingBase64
	}
	return string(raw), ""
}

func (s *secretsHandlers) Handle(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	env, err := decodeEnvelope(input)
	if err != nil {
		return nil, err
	}
	payload, text, err := env.payload()
	if err != nil {
		return nil, err
	}

	switch env.Mode {
	case "list":
		return s.list(ctx)
	case "get":
		in, err := keyInputFrom(payload, text)
		if err != nil {
			return nil, err
		}
		if err := checkEncoding(in.Encoding); err != nil {
			return nil, err
		}
		secret, err := s.vault.Get(ctx, s.auth, in.Key)
		if err != nil {
			return nil, err
		}
		value, enc := encodeValue(secret.Value, in.Encoding)
		resp := map[string]string{
			"key":         secret.Key,
			"value":       value,
			"description": secret.Description,
		}
		if enc != "" {
			resp["encoding"] = enc
		}
		return json.Marshal(resp)
	case "set":
		if text != "" {
			return nil, fmt.Errorf("%w: set needs a JSON object", apperr.ErrValidation)
		}
		var in secretSetInput
		if err := decodeObject(payload, &in); err != nil {
			return nil, err
		}
		value, err := decodeValue(in.Value, in.Encoding)
		if err != nil {
			return nil, err
		}
		if err := s.vault.Set(ctx, s.auth, in.Key, value, in.Description); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"ok": true, "key": in.Key})
	case "delete":
		in, err := keyInputFrom(payload, text)
		if err != nil {
			return nil, err
		}
		if err := s.vault.Delete(ctx, s.auth, in.Key); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"ok": true, "key": in.Key})
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", apperr.ErrValidation, env.Mode)
	}
}

func (s *secretsHandlers) list(ctx context.Context) (json.RawMessage, error) {
	entries, err := s.vault.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]map[string]string, len(entries))
	for i, e := range entries {
		keys[i] = map[string]string{"key": e.Key, "description": e.Description}
	}
	return json.Marshal(map[string]any{"keys": keys, "count": len(keys)})
}

// keyInputFrom accepts {"key": "..."} or a bare key string.
func keyInputFrom(payload []byte, text string) (secretKeyInput, error) {
	if text != "" {
		return secretKeyInput{Key: text}, nil
	}
	var in secretKeyInput
	if err := decodeObject(payload, &in); err != nil {
		return secretKeyInput{}, err
	}
	return in, nil
}

func decodeObject(payload []byte, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: data is required", apperr.ErrValidation)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid data: %v", apperr.ErrValidation, err)
	}
	return nil
}
