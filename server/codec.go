package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborCodec carries the debug service messages as CBOR. Both handlers and
// the Client use it, so plain Go structs serve as request and response types.
type cborCodec struct {
	enc cbor.EncMode
}

func newCBORCodec() *cborCodec {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	return &cborCodec{enc: em}
}

func (c *cborCodec) Name() string { return "cbor" }

func (c *cborCodec) Marshal(msg any) ([]byte, error) {
	return c.enc.Marshal(msg)
}

func (c *cborCodec) Unmarshal(data []byte, msg any) error {
	return cbor.Unmarshal(data, msg)
}
