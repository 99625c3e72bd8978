package blob

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/vietddude/ingester/internal/core/domain"
)

// Encode produces a protobuf-encoded checkpoint blob.
func Encode(cp *domain.Checkpoint) []byte {
	return appendCheckpoint([]byte{EncodingProtobuf}, cp)
}

func appendCheckpoint(b []byte, cp *domain.Checkpoint) []byte {
	b = appendVarint(b, 1, cp.SequenceNumber)
	b = appendString(b, 2, cp.Digest)
	b = appendVarint(b, 3, cp.TimestampMs)
	for i := range cp.Transactions {
		b = appendMessage(b, 4, appendTransaction(nil, &cp.Transactions[i]))
	}
	return b
}

func appendTransaction(b []byte, tx *domain.Transaction) []byte {
	b = appendString(b, 1, tx.Digest)
	if tx.Events != nil {
		var evs []byte
		for i := range tx.Events.Data {
			evs = appendMessage(evs, 1, appendEvent(nil, &tx.Events.Data[i]))
		}
		// Written even when empty: presence distinguishes "no events" from "no event list".
		b = appendMessage(b, 2, evs)
	}
	for i := range tx.InputObjects {
		b = appendMessage(b, 3, appendObjectRef(nil, &tx.InputObjects[i]))
	}
	for i := range tx.OutputObjects {
		b = appendMessage(b, 4, appendObjectRef(nil, &tx.OutputObjects[i]))
	}
	return b
}

func appendEvent(b []byte, ev *domain.Event) []byte {
	b = appendString(b, 1, ev.PackageID)
	b = appendString(b, 2, ev.Module)
	b = appendString(b, 3, ev.Sender)
	b = appendString(b, 4, ev.Type)
	if len(ev.Contents) > 0 {
		b = appendMessage(b, 5, ev.Contents)
	}
	return b
}

func appendObjectRef(b []byte, ref *domain.ObjectRef) []byte {
	b = appendString(b, 1, ref.ObjectID)
	b = appendVarint(b, 2, ref.Version)
	b = appendString(b, 3, ref.Digest)
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
