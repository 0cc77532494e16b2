package codec

import (
	"encoding/json"

	"github.com/hupe1980/kstep"
)

// JSON uses encoding/json. Its output is the reference GoJSON is tested against.
type JSON struct{}

// Name returns "json".
func (JSON) Name() string { return "json" }

func (JSON) DecodeRequest(data []byte) (kstep.Request, error) {
	return decodeRequest(json.Unmarshal, data)
}

func (JSON) EncodeResult(res *kstep.Result) ([]byte, error) {
	return encodeResult(json.Marshal, res)
}

func (JSON) EncodeError(err error) []byte {
	return encodeError(json.Marshal, err)
}
