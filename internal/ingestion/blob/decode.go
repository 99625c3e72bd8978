package blob

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/vietddude/ingester/internal/core/domain"
)

// skipField is returned by a fieldFunc for fields it does not know.
const skipField = math.MinInt

// fieldFunc consumes the value of one field and returns the number of bytes read. A
// negative count is a protowire error code.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// Decode parses a checkpoint blob.
func Decode(data []byte) (*domain.Checkpoint, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBlob
	}

	switch data[0] {
	case EncodingProtobuf:
		cp := &domain.Checkpoint{}
		if err := decodeCheckpoint(data[1:], cp); err != nil {
			return nil, err
		}
		return cp, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedEncoding, data[0])
	}
}

func decodeCheckpoint(b []byte, cp *domain.Checkpoint) error {
	return consumeMessage("checkpoint", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeVarint("checkpoint", num, typ, b, &cp.SequenceNumber)
		case 2:
			return consumeString("checkpoint", num, typ, b, &cp.Digest)
		case 3:
			return consumeVarint("checkpoint", num, typ, b, &cp.TimestampMs)
		case 4:
			return consumeEmbedded("checkpoint", num, typ, b, func(msg []byte) error {
				var tx domain.Transaction
				if err := decodeTransaction(msg, &tx); err != nil {
					return err
				}
				cp.Transactions = append(cp.Transactions, tx)
				return nil
			})
		}
		return skipField, nil
	})
}

func decodeTransaction(b []byte, tx *domain.Transaction) error {
	return consumeMessage("transaction", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString("transaction", num, typ, b, &tx.Digest)
		case 2:
			return consumeEmbedded("transaction", num, typ, b, func(msg []byte) error {
				if tx.Events == nil {
					tx.Events = &domain.TransactionEvents{}
				}
				return decodeEvents(msg, tx.Events)
			})
		case 3:
			return consumeEmbedded("transaction", num, typ, b, func(msg []byte) error {
				var ref domain.ObjectRef
				if err := decodeObjectRef(msg, &ref); err != nil {
					return err
				}
				tx.InputObjects = append(tx.InputObjects, ref)
				return nil
			})
		case 4:
			return consumeEmbedded("transaction", num, typ, b, func(msg []byte) error {
				var ref domain.ObjectRef
				if err := decodeObjectRef(msg, &ref); err != nil {
					return err
				}
				tx.OutputObjects = append(tx.OutputObjects, ref)
				return nil
			})
		}
		return skipField, nil
	})
}

func decodeEvents(b []byte, evs *domain.TransactionEvents) error {
	return consumeMessage("events", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return skipField, nil
		}
		return consumeEmbedded("events", num, typ, b, func(msg []byte) error {
			var ev domain.Event
			if err := decodeEvent(msg, &ev); err != nil {
				return err
			}
			evs.Data = append(evs.Data, ev)
			return nil
		})
	})
}

func decodeEvent(b []byte, ev *domain.Event) error {
	return consumeMessage("event", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString("event", num, typ, b, &ev.PackageID)
		case 2:
			return consumeString("event", num, typ, b, &ev.Module)
		case 3:
			return consumeString("event", num, typ, b, &ev.Sender)
		case 4:
			return consumeString("event", num, typ, b, &ev.Type)
		case 5:
			return consumeEmbedded("event", num, typ, b, func(v []byte) error {
				ev.Contents = append([]byte(nil), v...)
				return nil
			})
		}
		return skipField, nil
	})
}

func decodeObjectRef(b []byte, ref *domain.ObjectRef) error {
	return consumeMessage("object_ref", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString("object_ref", num, typ, b, &ref.ObjectID)
		case 2:
			return consumeVarint("object_ref", num, typ, b, &ref.Version)
		case 3:
			return consumeString("object_ref", num, typ, b, &ref.Digest)
		}
		return skipField, nil
	})
}

// consumeMessage walks every field of a message, delegating known fields to fn.
func consumeMessage(msg string, b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &WireError{Message: msg, Err: protowire.ParseError(n)}
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == skipField {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return &WireError{Message: msg, Field: num, Err: protowire.ParseError(m)}
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(msg string, num protowire.Number, typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, wrongType(msg, num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = v
	}
	return n, nil
}

func consumeString(msg string, num protowire.Number, typ protowire.Type, b []byte, dst *string) (int, error) {
	return consumeEmbedded(msg, num, typ, b, func(v []byte) error {
		*dst = string(v)
		return nil
	})
}

func consumeEmbedded(msg string, num protowire.Number, typ protowire.Type, b []byte, fn func([]byte) error) (int, error) {
	if typ != protowire.BytesType {
		return 0, wrongType(msg, num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	if err := fn(v); err != nil {
		return 0, err
	}
	return n, nil
}

func wrongType(msg string, num protowire.Number, typ protowire.Type) error {
	return &WireError{Message: msg, Field: num, Err: fmt.Errorf("unexpected wire type %d", typ)}
}
