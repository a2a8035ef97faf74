package schematic

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Named binary tag stream decoder (big-endian). The reader tracks its byte
// offset and the last recognized tag name so parse failures can point at
// where the stream went bad.

const (
	tagEnd       = 0x00
	tagByte      = 0x01
	tagShort     = 0x02
	tagInt       = 0x03
	tagLong      = 0x04
	tagFloat     = 0x05
	tagDouble    = 0x06
	tagByteArray = 0x07
	tagString    = 0x08
	tagList      = 0x09
	tagCompound  = 0x0A
	tagIntArray  = 0x0B
	tagLongArray = 0x0C
)

// maxNestDepth bounds compound/list nesting. Malformed files must fail with
// a diagnostic, not blow the stack.
const maxNestDepth = 64

type tagReader struct {
	buf     []byte
	off     int
	lastTag string
}

func (r *tagReader) fail(msg string, args ...any) error {
	return &parseFailure{off: int64(r.off), lastTag: r.lastTag, msg: fmt.Sprintf(msg, args...)}
}

// parseFailure is the internal form; Parse wraps it into a *ParseError with
// the source filename attached.
type parseFailure struct {
	off     int64
	lastTag string
	msg     string
}

func (f *parseFailure) Error() string { return f.msg }

func (r *tagReader) readByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, r.fail("truncated stream")
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *tagReader) readN(n int) ([]byte, error) {
	if n < 0 {
		return nil, r.fail("negative length %d", n)
	}
	if r.off+n > len(r.buf) {
		return nil, r.fail("truncated stream: need %d bytes, have %d", n, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *tagReader) readInt16() (int16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *tagReader) readInt32() (int32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *tagReader) readInt64() (int64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *tagReader) readString() (string, error) {
	n, err := r.readInt16()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", r.fail("negative string length %d", n)
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readRoot decodes the root compound of the stream. The root tag must be a
// compound; its name is returned alongside the decoded fields.
func (r *tagReader) readRoot() (string, map[string]any, error) {
	typ, err := r.readByte()
	if err != nil {
		return "", nil, err
	}
	if typ != tagCompound {
		return "", nil, r.fail("root tag is 0x%02X, want compound (0x0A)", typ)
	}
	name, err := r.readString()
	if err != nil {
		return "", nil, err
	}
	if name != "" {
		r.lastTag = name
	}
	fields, err := r.readCompound(0)
	if err != nil {
		return "", nil, err
	}
	return name, fields, nil
}

func (r *tagReader) readCompound(depth int) (map[string]any, error) {
	if depth > maxNestDepth {
		return nil, r.fail("compound nesting exceeds %d", maxNestDepth)
	}
	fields := map[string]any{}
	for {
		typ, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if typ == tagEnd {
			return fields, nil
		}
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		r.lastTag = name
		v, err := r.readValue(typ, depth+1)
		if err != nil {
			return nil, err
		}
		fields[name] = v
	}
}

func (r *tagReader) readValue(typ byte, depth int) (any, error) {
	if depth > maxNestDepth {
		return nil, r.fail("nesting exceeds %d", maxNestDepth)
	}
	switch typ {
	case tagByte:
		b, err := r.readByte()
		return int8(b), err
	case tagShort:
		return r.readInt16()
	case tagInt:
		return r.readInt32()
	case tagLong:
		return r.readInt64()
	case tagFloat:
		b, err := r.readN(4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
	case tagDouble:
		b, err := r.readN(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case tagByteArray:
		n, err := r.readInt32()
		if err != nil {
			return nil, err
		}
		b, err := r.readN(int(n))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case tagString:
		return r.readString()
	case tagList:
		elemType, err := r.readByte()
		if err != nil {
			return nil, err
		}
		n, err := r.readInt32()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, r.fail("negative list length %d", n)
		}
		if int(n) > len(r.buf)-r.off && elemType != tagEnd {
			return nil, r.fail("list length %d exceeds remaining stream", n)
		}
		list := make([]any, 0, n)
		for i := int32(0); i < n; i++ {
			v, err := r.readValue(elemType, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case tagCompound:
		return r.readCompound(depth)
	case tagIntArray:
		n, err := r.readInt32()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) > (len(r.buf)-r.off)/4 {
			return nil, r.fail("int array length %d exceeds remaining stream", n)
		}
		arr := make([]int32, n)
		for i := range arr {
			arr[i], err = r.readInt32()
			if err != nil {
				return nil, err
			}
		}
		return arr, nil
	case tagLongArray:
		n, err := r.readInt32()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) > (len(r.buf)-r.off)/8 {
			return nil, r.fail("long array length %d exceeds remaining stream", n)
		}
		arr := make([]int64, n)
		for i := range arr {
			arr[i], err = r.readInt64()
			if err != nil {
				return nil, err
			}
		}
		return arr, nil
	default:
		return nil, r.fail("unknown tag type 0x%02X", typ)
	}
}

// intValue widens any integral tag payload to int. Used where the two
// container formats disagree on the width of a field.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
