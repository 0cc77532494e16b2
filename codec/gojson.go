package codec

import (
	gojson "github.com/goccy/go-json"
	"github.com/hupe1980/kstep"
)

// GoJSON uses github.com/goccy/go-json, a drop-in encoding/json replacement
// that is noticeably faster on the large float matrices of a step trace.
type GoJSON struct{}

// Name returns "go-json".
func (GoJSON) Name() string { return "go-json" }

func (GoJSON) DecodeRequest(data []byte) (kstep.Request, error) {
	return decodeRequest(gojson.Unmarshal, data)
}

func (GoJSON) EncodeResult(res *kstep.Result) ([]byte, error) {
	return encodeResult(gojson.Marshal, res)
}

func (GoJSON) EncodeError(err error) []byte {
	return encodeError(gojson.Marshal, err)
}
