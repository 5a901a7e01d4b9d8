package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for input that is not a valid encoding.
var ErrMalformed = errors.New("wire: malformed message")

// encoder appends fields in proto3 style: zero scalars are omitted.
type encoder struct {
	b []byte
}

func (e *encoder) putUint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) putInt(num protowire.Number, v int64) {
	e.putUint(num, uint64(v))
}

func (e *encoder) putBool(num protowire.Number, v bool) {
	e.putUint(num, protowire.EncodeBool(v))
}

func (e *encoder) putString(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

func (e *encoder) putBytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

// putMessage always writes the field so that presence survives an empty body.
func (e *encoder) putMessage(num protowire.Number, body []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, body)
}

// field is one decoded field value.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f field) asUint() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: field %d: expected varint", ErrMalformed, f.num)
	}
	return f.varint, nil
}

func (f field) asInt() (int64, error) {
	v, err := f.asUint()
	return int64(v), err
}

func (f field) asBool() (bool, error) {
	v, err := f.asUint()
	return protowire.DecodeBool(v), err
}

func (f field) asBody() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: field %d: expected length-delimited", ErrMalformed, f.num)
	}
	return f.bytes, nil
}

func (f field) asString() (string, error) {
	b, err := f.asBody()
	return string(b), err
}

// walk decodes b field by field. Fields fn does not recognize must be
// ignored by fn; group and fixed-width fields are skipped here.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
