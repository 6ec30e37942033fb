// ABOUTME: Tagged request variants for the five gate operations.
// ABOUTME: Payloads are decoded strictly; unknown fields and wrong shapes are validation errors.

package verify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/2389/lizi-tools/internal/apperr"
)

// Op names a gate operation.
type Op string

// Gate operations.
const (
	OpStatus Op = "status"
	OpPick   Op = "pick"
	OpCheck  Op = "check"
	OpAdd    Op = "add"
	OpSetup  Op = "setup"
)

// Ops lists every gate operation in documentation order.
var Ops = []Op{OpStatus, OpPick, OpCheck, OpAdd, OpSetup}

// Request is one of StatusRequest, PickRequest, CheckRequest, AddRequest or SetupRequest.
type Request interface {
	Op() Op
}

// StatusRequest asks for the session state.
type StatusRequest struct{}

// PickRequest issues a challenge of N questions. N == 0 means the configured default.
type PickRequest struct {
	N int `json:"n"`
}

// CheckRequest answers the pending challenge, one answer-set per question in pick order.
type CheckRequest struct {
	Answers [][]string `json:"answers"`
}

// AddRequest appends one question.
type AddRequest QuestionInput

// SetupRequest replaces the whole bank.
type SetupRequest struct {
	Questions []QuestionInput `json:"questions"`
}

func (StatusRequest) Op() Op { return OpStatus }
func (PickRequest) Op() Op   { return OpPick }
func (CheckRequest) Op() Op  { return OpCheck }
func (AddRequest) Op() Op    { return OpAdd }
func (SetupRequest) Op() Op  { return OpSetup }

// DecodeRequest builds the request variant for op from a JSON object payload.
// An empty payload is accepted for status and pick only.
func DecodeRequest(op string, payload []byte) (Request, error) {
	empty := len(bytes.TrimSpace(payload)) == 0

	switch Op(op) {
	case OpStatus:
		var req StatusRequest
		if empty {
			return req, nil
		}
		return req, decodeStrict(payload, &req)
	case OpPick:
		var req PickRequest
		if !empty {
			if err := decodeStrict(payload, &req); err != nil {
				return nil, err
			}
		}
		if req.N < 0 {
			return nil, fmt.Errorf("%w: n must not be negative", apperr.ErrValidation)
		}
		return req, nil
	case OpCheck:
		var req CheckRequest
		if err := decodeStrict(payload, &req); err != nil {
			return nil, err
		}
		if req.Answers == nil {
			return nil, fmt.Errorf("%w: answers is required", apperr.ErrValidation)
		}
		return req, nil
	case OpAdd:
		var req AddRequest
		if err := decodeStrict(payload, &req); err != nil {
			return nil, err
		}
		return req, nil
	case OpSetup:
		var req SetupRequest
		if err := decodeStrict(payload, &req); err != nil {
			return nil, err
		}
		if req.Questions == nil {
			return nil, fmt.Errorf("%w: questions is required", apperr.ErrValidation)
		}
		return req, nil
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", apperr.ErrValidation, op)
	}
}

// decodeStrict decodes exactly one JSON object into v, rejecting unknown fields.
func decodeStrict(payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: payload is required", apperr.ErrValidation)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after payload", apperr.ErrValidation)
	}
	return nil
}
