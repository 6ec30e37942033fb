// ABOUTME: Verify pack exposes the verification gate as the lizi_verify tool.
// ABOUTME: One tool, five modes: status, pick, check, add, setup.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/lizi-tools/internal/apperr"
	"github.com/2389/lizi-tools/internal/packs"
	"github.com/2389/lizi-tools/internal/verify"
)

const verifyDescription = `Identity verification gate protecting the secret vault.

Modes:
- status: report whether the gate is ready and whether a verification is live
- pick: draw random questions (data: {"n": 3}); returns prompts and answer options
- check: submit answers (data: {"answers": [["answer 1"], ["answer 2"]]}), one list per question in pick order
- add: add one question (data: {"prompt": "...", "accepted_answers": ["..."]})
- setup: replace all questions (data: {"questions": [{"prompt": "...", "accepted_answers": ["..."]}]})

Flow: pick, ask the user every prompt at once, then check. A passed check unlocks lizi_secrets get for a few minutes.`

// verifySchema lists every gate operation as a mode.
func verifySchema() string {
	modes := make([]string, len(verify.Ops))
	for i, op := range verify.Ops {
		modes[i] = string(op)
	}
	enum, _ := json.Marshal(modes)
	return `{"type":"object","properties":{"mode":{"type":"string","enum":` + string(enum) +
		`},"data":{"description":"JSON object, or a JSON-encoded string holding one"}},"required":["mode"]}`
}

// VerifyPack creates the verify pack around gate.
func VerifyPack(gate *verify.Gate) *packs.BuiltinPack {
	v := &verifyHandlers{gate: gate}
	return &packs.BuiltinPack{
		ID: "builtin:verify",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:            "lizi_verify",
					Description:     verifyDescription,
					InputSchemaJSON: verifySchema(),
				},
				Handler: v.Handle,
			},
		},
	}
}

type verifyHandlers struct {
	gate *verify.Gate
}

func (v *verifyHandlers) Handle(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	env, err := decodeEnvelope(input)
	if err != nil {
		return nil, err
	}
	payload, text, err := env.payload()
	if err != nil {
		return nil, err
	}
	if text != "" {
		return nil, fmt.Errorf("%w: data must be a JSON object", apperr.ErrValidation)
	}

	req, err := verify.DecodeRequest(env.Mode, payload)
	if err != nil {
		return nil, err
	}
	res, err := v.gate.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}
