package wire

import (
	"github.com/tinylib/msgp/msgp"
)

// NativeEvent mirrors ringbuffer.Event on the wire: one traced event as it
// leaves a producer's ring and travels to a NativeTraceReceiver. Kept as a
// separate type (rather than reusing ringbuffer.Event directly) so the
// wire representation can evolve without forcing a ringbuffer API change.
type NativeEvent struct {
	TimestampNanos int64  `msg:"t"`
	TraceID        uint32 `msg:"id"`
	Kind           uint8  `msg:"k"`
	Value          int64  `msg:"v"`
}

// NativeFrame is the payload of one NativeTraceSender broadcast: the
// producer id the events came from, plus the batch of events drained from
// its ring since the last send.
type NativeFrame struct {
	ProducerID int64         `msg:"pid"`
	Events     []NativeEvent `msg:"events"`
}

// MarshalMsg appends the MessagePack encoding of z to b and returns the
// extended slice, matching the signature msgp-generated types use so
// NativeFrame satisfies msgp.Marshaler.
func (z *NativeFrame) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendMapHeader(b, 2)
	o = msgp.AppendString(o, "pid")
	o = msgp.AppendInt64(o, z.ProducerID)
	o = msgp.AppendString(o, "events")
	o = msgp.AppendArrayHeader(o, uint32(len(z.Events)))
	for _, e := range z.Events {
		o = e.appendMsg(o)
	}
	return o, nil
}

// UnmarshalMsg decodes the MessagePack encoding in b into z and returns
// any unconsumed trailing bytes, matching msgp.Unmarshaler.
func (z *NativeFrame) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for i := uint32(0); i < sz; i++ {
		var field string
		field, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, err
		}
		switch field {
		case "pid":
			z.ProducerID, b, err = msgp.ReadInt64Bytes(b)
		case "events":
			var n uint32
			n, b, err = msgp.ReadArrayHeaderBytes(b)
			if err != nil {
				return b, err
			}
			z.Events = make([]NativeEvent, n)
			for j := range z.Events {
				b, err = z.Events[j].unmarshalMsg(b)
				if err != nil {
					return b, err
				}
			}
			continue
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// Msgsize returns an upper bound on the encoded size of z, used to
// pre-size the send buffer before MarshalMsg.
func (z *NativeFrame) Msgsize() int {
	s := msgp.MapHeaderSize + msgp.StringPrefixSize + 3 + msgp.Int64Size
	s += msgp.StringPrefixSize + 6 + msgp.ArrayHeaderSize
	s += len(z.Events) * nativeEventSize
	return s
}

const nativeEventSize = msgp.MapHeaderSize +
	4*(msgp.StringPrefixSize+3) +
	msgp.Int64Size + msgp.Uint32Size + msgp.Uint8Size + msgp.Int64Size

func (e NativeEvent) appendMsg(b []byte) []byte {
	o := msgp.AppendMapHeader(b, 4)
	o = msgp.AppendString(o, "t")
	o = msgp.AppendInt64(o, e.TimestampNanos)
	o = msgp.AppendString(o, "id")
	o = msgp.AppendUint32(o, e.TraceID)
	o = msgp.AppendString(o, "k")
	o = msgp.AppendUint8(o, e.Kind)
	o = msgp.AppendString(o, "v")
	o = msgp.AppendInt64(o, e.Value)
	return o
}

func (e *NativeEvent) unmarshalMsg(b []byte) ([]byte, error) {
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for i := uint32(0); i < sz; i++ {
		var field string
		field, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, err
		}
		switch field {
		case "t":
			e.TimestampNanos, b, err = msgp.ReadInt64Bytes(b)
		case "id":
			e.TraceID, b, err = msgp.ReadUint32Bytes(b)
		case "k":
			e.Kind, b, err = msgp.ReadUint8Bytes(b)
		case "v":
			e.Value, b, err = msgp.ReadInt64Bytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// EncodeNativeFrame marshals f for inclusion as a Message payload.
func EncodeNativeFrame(f *NativeFrame) ([]byte, error) {
	return f.MarshalMsg(make([]byte, 0, f.Msgsize()))
}

// DecodeNativeFrame unmarshals a NativeFrame from a Message payload.
func DecodeNativeFrame(payload []byte) (*NativeFrame, error) {
	f := &NativeFrame{}
	if _, err := f.UnmarshalMsg(payload); err != nil {
		return nil, err
	}
	return f, nil
}
