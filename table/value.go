package table

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// EncodeValue appends v, typed as typ, to buf using a fixed-width /
// length-prefixed layout: a 4-byte BigEndian length prefix ahead of
// variable-width payloads, fixed widths otherwise.
func EncodeValue(buf *bytes.Buffer, typ ColumnType, v any) error {
	switch typ {
	case IntType:
		iv, ok := v.(int64)
		if !ok {
			i, ok2 := v.(int)
			if !ok2 {
				return fmt.Errorf("table: encode: expected int/int64 for IntType, got %T", v)
			}
			iv = int64(i)
		}
		return binary.Write(buf, binary.BigEndian, iv)
	case BoolType:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("table: encode: expected bool for BoolType, got %T", v)
		}
		var b byte
		if bv {
			b = 1
		}
		return buf.WriteByte(b)
	case DateType:
		tv, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("table: encode: expected time.Time for DateType, got %T", v)
		}
		return binary.Write(buf, binary.BigEndian, tv.Unix())
	case StringType:
		sv, ok := v.(string)
		if !ok {
			return fmt.Errorf("table: encode: expected string for StringType, got %T", v)
		}
		return writeLenPrefixed(buf, []byte(sv))
	case BytesType:
		bv, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("table: encode: expected []byte for BytesType, got %T", v)
		}
		return writeLenPrefixed(buf, bv)
	default:
		return fmt.Errorf("table: encode: unknown column type %v", typ)
	}
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) error {
	if err := binary.Write(buf, binary.BigEndian, int32(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

// DecodeValue reads one value of type typ from r.
func DecodeValue(r *bytes.Reader, typ ColumnType) (any, error) {
	switch typ {
	case IntType:
		var iv int64
		if err := binary.Read(r, binary.BigEndian, &iv); err != nil {
			return nil, fmt.Errorf("table: decode int: %w", err)
		}
		return iv, nil
	case BoolType:
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("table: decode bool: %w", err)
		}
		return b != 0, nil
	case DateType:
		var ts int64
		if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
			return nil, fmt.Errorf("table: decode date: %w", err)
		}
		return time.Unix(ts, 0).UTC(), nil
	case StringType:
		b, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("table: decode string: %w", err)
		}
		return string(b), nil
	case BytesType:
		b, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("table: decode bytes: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("table: decode: unknown column type %v", typ)
	}
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodedSize returns the on-disk size of v typed as typ by encoding it
// into a scratch buffer; Tuple.Size uses this for admission checks.
func EncodedSize(typ ColumnType, v any) (int, error) {
	var buf bytes.Buffer
	if err := EncodeValue(&buf, typ, v); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}
