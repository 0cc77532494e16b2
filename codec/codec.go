// Package codec encodes the clustering wire contract: a kstep.Request in,
// a kstep.Result or an error body out.
//
// Coordinates are float64 and survive a round trip unchanged; both codecs
// write the shortest decimal that parses back to the same bits.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/kstep"
)

// ContentType is the media type of every encoded payload.
const ContentType = "application/json"

// ErrEmptyBody is returned when a request payload holds no JSON value.
var ErrEmptyBody = errors.New("empty request body")

// Codec translates between wire payloads and clustering values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Name() string
	DecodeRequest(data []byte) (kstep.Request, error)
	EncodeResult(res *kstep.Result) ([]byte, error)
	// EncodeError renders err as {"error": "..."}. It never fails.
	EncodeError(err error) []byte
}

// Default is the codec the server uses unless configured otherwise.
var Default Codec = GoJSON{}

var builtin = []Codec{JSON{}, GoJSON{}}

// Names returns the names accepted by ByName.
func Names() []string {
	names := make([]string, len(builtin))
	for i, c := range builtin {
		names[i] = c.Name()
	}
	return names
}

// ByName returns the built-in codec registered under name.
func ByName(name string) (Codec, error) {
	for _, c := range builtin {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown codec %q, want one of: %s", name, strings.Join(Names(), ", "))
}

type errorBody struct {
	Error string `json:"error"`
}

type (
	marshalFunc   func(v any) ([]byte, error)
	unmarshalFunc func(data []byte, v any) error
)

func decodeRequest(unmarshal unmarshalFunc, data []byte) (kstep.Request, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return kstep.Request{}, ErrEmptyBody
	}
	var req kstep.Request
	if err := unmarshal(data, &req); err != nil {
		return kstep.Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func encodeResult(marshal marshalFunc, res *kstep.Result) ([]byte, error) {
	if res == nil {
		return nil, errors.New("encode result: nil result")
	}
	b, err := marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return b, nil
}

func encodeError(marshal marshalFunc, err error) []byte {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	b, merr := marshal(errorBody{Error: msg})
	if merr != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return b
}
