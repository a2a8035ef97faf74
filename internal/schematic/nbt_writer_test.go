package schematic

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/gzip"
)

// Minimal big-endian tag-stream encoder for building test fixtures.

type nbtBuf struct {
	bytes.Buffer
}

func (b *nbtBuf) tag(typ byte, name string) {
	b.WriteByte(typ)
	b.str16(name)
}

func (b *nbtBuf) str16(s string) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	b.Write(n[:])
	b.WriteString(s)
}

func (b *nbtBuf) i16(v int16) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(v))
	b.Write(n[:])
}

func (b *nbtBuf) i32(v int32) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(v))
	b.Write(n[:])
}

func (b *nbtBuf) shortField(name string, v int16) {
	b.tag(tagShort, name)
	b.i16(v)
}

func (b *nbtBuf) byteArrayField(name string, v []byte) {
	b.tag(tagByteArray, name)
	b.i32(int32(len(v)))
	b.Write(v)
}

func (b *nbtBuf) end() {
	b.WriteByte(tagEnd)
}

// classicBytes builds a classic container with the given dimensions and
// parallel block/metadata arrays.
func classicBytes(w, h, l int16, blocks, data []byte) []byte {
	var b nbtBuf
	b.tag(tagCompound, "Schematic")
	b.shortField("Width", w)
	b.shortField("Height", h)
	b.shortField("Length", l)
	b.byteArrayField("Blocks", blocks)
	if data != nil {
		b.byteArrayField("Data", data)
	}
	b.end()
	return b.Bytes()
}

type treeBlock struct {
	pos    [3]int32
	state  int32  // palette index; used when id == ""
	id     string // direct string id
	numID  int32  // direct numeric id; used when useNum is set
	useNum bool
}

// treeBytes builds a tree container. A nil palette omits the palette tag.
func treeBytes(size [3]int32, palette []string, entries []treeBlock) []byte {
	var b nbtBuf
	b.tag(tagCompound, "")

	b.tag(tagList, "size")
	b.WriteByte(tagInt)
	b.i32(3)
	for _, v := range size {
		b.i32(v)
	}

	if palette != nil {
		b.tag(tagList, "palette")
		b.WriteByte(tagString)
		b.i32(int32(len(palette)))
		for _, name := range palette {
			b.str16(name)
		}
	}

	b.tag(tagList, "blocks")
	b.WriteByte(tagCompound)
	b.i32(int32(len(entries)))
	for _, e := range entries {
		b.tag(tagList, "pos")
		b.WriteByte(tagInt)
		b.i32(3)
		for _, v := range e.pos {
			b.i32(v)
		}
		switch {
		case e.id != "":
			b.tag(tagString, "id")
			b.str16(e.id)
		case e.useNum:
			b.tag(tagInt, "id")
			b.i32(e.numID)
		default:
			b.tag(tagInt, "state")
			b.i32(e.state)
		}
		b.end()
	}

	b.end()
	return b.Bytes()
}

func gzipped(data []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}
