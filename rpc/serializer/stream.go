package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ValentinKolb/phantom/rpc/common"
)

// streamSerializer adapts a stream codec from the standard library to
// IRPCSerializer. Every payload is one self-contained stream with no state
// shared between messages.
type streamSerializer struct {
	name   string
	encode func(w io.Writer, msg *common.Message) error
	decode func(r io.Reader, msg *common.Message) error
}

// encodeBuffers holds scratch buffers sized by the largest message seen,
// usually a snapshot refill.
var encodeBuffers = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// NewJSONSerializer creates a serializer using json encoding. Byte slices
// travel base64 encoded. Decoding rejects unknown fields and trailing data.
func NewJSONSerializer() IRPCSerializer {
	return &streamSerializer{
		name: "json",
		encode: func(w io.Writer, msg *common.Message) error {
			return json.NewEncoder(w).Encode(msg)
		},
		decode: func(r io.Reader, msg *common.Message) error {
			d := json.NewDecoder(r)
			d.DisallowUnknownFields()
			if err := d.Decode(msg); err != nil {
				return err
			}
			if _, err := d.Token(); !errors.Is(err, io.EOF) {
				return fmt.Errorf("trailing data after message")
			}
			return nil
		},
	}
}

// NewGOBSerializer creates a serializer using Go's binary gob format
func NewGOBSerializer() IRPCSerializer {
	return &streamSerializer{
		name: "gob",
		encode: func(w io.Writer, msg *common.Message) error {
			return gob.NewEncoder(w).Encode(msg)
		},
		decode: func(r io.Reader, msg *common.Message) error {
			return gob.NewDecoder(r).Decode(msg)
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (s *streamSerializer) Serialize(msg common.Message) ([]byte, error) {
	buf := encodeBuffers.Get().(*bytes.Buffer)
	defer encodeBuffers.Put(buf)
	buf.Reset()

	if err := s.encode(buf, &msg); err != nil {
		return nil, fmt.Errorf("%s: encode %s: %w", s.name, msg.MsgType, err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (s *streamSerializer) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	if err := s.decode(bytes.NewReader(b), msg); err != nil {
		return fmt.Errorf("%s: decode: %w", s.name, err)
	}
	return nil
}
