// Package blob implements the checkpoint blob container format.
//
// A blob is a single encoding byte followed by the encoded checkpoint. The only encoding
// currently produced by the remote store is protobuf wire format, read field by field with
// protowire so that unknown fields written by newer producers are skipped.
//
// Field layout:
//
//	Checkpoint         1 sequence_number varint, 2 digest string, 3 timestamp_ms varint,
//	                   4 transactions (repeated Transaction)
//	Transaction        1 digest string, 2 events TransactionEvents, 3 input_objects
//	                   (repeated ObjectRef), 4 output_objects (repeated ObjectRef)
//	TransactionEvents  1 data (repeated Event)
//	Event              1 package_id, 2 module, 3 sender, 4 type, 5 contents bytes
//	ObjectRef          1 object_id string, 2 version varint, 3 digest string
package blob

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// EncodingProtobuf marks a blob whose payload is protobuf wire format.
const EncodingProtobuf byte = 0x01

var (
	ErrEmptyBlob           = errors.New("blob: empty")
	ErrUnsupportedEncoding = errors.New("blob: unsupported encoding")
	ErrMalformed           = errors.New("blob: malformed")
)

// WireError reports a malformed field inside a blob payload.
type WireError struct {
	Message string
	Field   protowire.Number
	Err     error
}

func (e *WireError) Error() string {
	if e.Field == 0 {
		return fmt.Sprintf("blob: malformed %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("blob: malformed %s field %d: %v", e.Message, e.Field, e.Err)
}

func (e *WireError) Unwrap() error { return e.Err }

func (e *WireError) Is(target error) bool { return target == ErrMalformed }
