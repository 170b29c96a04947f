// Package ack owns the acknowledgement envelope written for every received packet.
//
// Ownership boundary:
// - Result/Error tagged union and its JSON wire form
// - success, success-with-data and failure encoders
// - variant-checked decoders
package ack

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed      = errors.New("ack: malformed envelope")
	ErrUnknownVariant = errors.New("ack: unknown variant")
	ErrWrongVariant   = errors.New("ack: unexpected variant")
)

// SuccessMarker is the result payload of a success ack that carries no data.
var SuccessMarker = []byte("1")

type Kind uint8

const (
	KindResult Kind = iota + 1
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Ack is the decoded acknowledgement. The zero value is not a valid ack.
type Ack struct {
	kind   Kind
	result []byte
	reason string
}

func NewResult(data []byte) Ack {
	return Ack{kind: KindResult, result: data}
}

func NewError(reason string) Ack {
	return Ack{kind: KindError, reason: reason}
}

func (a Ack) Kind() Kind        { return a.kind }
func (a Ack) IsSuccess() bool   { return a.kind == KindResult }
func (a Ack) Data() []byte      { return a.result }
func (a Ack) ErrReason() string { return a.reason }

type resultWire struct {
	Result []byte `json:"result"`
}

type errorWire struct {
	Error string `json:"error"`
}

func (a Ack) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case KindResult:
		return json.Marshal(resultWire{Result: a.result})
	case KindError:
		return json.Marshal(errorWire{Error: a.reason})
	default:
		return nil, fmt.Errorf("%w: kind=%d", ErrUnknownVariant, a.kind)
	}
}

func (a *Ack) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(fields) != 1 {
		return fmt.Errorf("%w: expected one variant, got %d", ErrUnknownVariant, len(fields))
	}
	if raw, ok := fields["result"]; ok {
		var out []byte
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("%w: result: %v", ErrMalformed, err)
		}
		*a = NewResult(out)
		return nil
	}
	if raw, ok := fields["error"]; ok {
		var reason string
		if err := json.Unmarshal(raw, &reason); err != nil {
			return fmt.Errorf("%w: error: %v", ErrMalformed, err)
		}
		*a = NewError(reason)
		return nil
	}
	for key := range fields {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, key)
	}
	return ErrUnknownVariant
}

// Encode returns the wire form. Only a zero Ack fails to encode.
func (a Ack) Encode() []byte {
	out, err := a.MarshalJSON()
	if err != nil {
		panic(err)
	}
	return out
}

// Success encodes a result ack carrying SuccessMarker.
func Success() []byte {
	return NewResult(SuccessMarker).Encode()
}

// SuccessData JSON-encodes v into a result ack. Encoding failures degrade to Success().
func SuccessData(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return Success()
	}
	return NewResult(data).Encode()
}

// Fail encodes an error ack.
func Fail(reason string) []byte {
	return NewError(reason).Encode()
}

// Decode parses an ack envelope.
func Decode(data []byte) (Ack, error) {
	var out Ack
	if err := json.Unmarshal(data, &out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return Ack{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Ack{}, err
	}
	return out, nil
}

// Into decodes the result payload of a success ack as T.
func Into[T any](data []byte) (T, error) {
	var out T
	a, err := Decode(data)
	if err != nil {
		return out, err
	}
	if !a.IsSuccess() {
		return out, fmt.Errorf("%w: %s: %s", ErrWrongVariant, a.kind, a.reason)
	}
	if err := json.Unmarshal(a.result, &out); err != nil {
		return out, fmt.Errorf("%w: result payload: %v", ErrMalformed, err)
	}
	return out, nil
}

// MustInto is Into for callers that already branched on the variant. It panics otherwise.
func MustInto[T any](data []byte) T {
	out, err := Into[T](data)
	if err != nil {
		panic(err)
	}
	return out
}

// Reason extracts the reason of an error ack.
func Reason(data []byte) (string, error) {
	a, err := Decode(data)
	if err != nil {
		return "", err
	}
	if a.IsSuccess() {
		return "", fmt.Errorf("%w: not an error", ErrWrongVariant)
	}
	return a.reason, nil
}

// MustReason is Reason that panics on a success ack.
func MustReason(data []byte) string {
	out, err := Reason(data)
	if err != nil {
		panic(err)
	}
	return out
}
