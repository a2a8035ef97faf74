// Package schematic decodes third-party 3D-structure container files into
// raw block records. Two legacy formats are understood: the classic tagged
// stream (Width/Height/Length shorts plus parallel Blocks/Data byte arrays)
// and the tree-structured format (size vector plus a block list addressed
// by palette index or direct id). Either may arrive gzip-wrapped.
//
// A file is parsed to completion or rejected with a *ParseError; there is
// no partial or placeholder result.
package schematic

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Format discriminates the container variants at the parser boundary.
type Format int

const (
	FormatClassic Format = iota + 1
	FormatTree
)

func (f Format) String() string {
	switch f {
	case FormatClassic:
		return "classic"
	case FormatTree:
		return "tree"
	default:
		return "unknown"
	}
}

type Dimensions struct {
	W, H, L int
}

func (d Dimensions) Volume() int { return d.W * d.H * d.L }

type Position struct {
	X, Y, Z int
}

// KeyKind says how a raw record identifies its block type.
type KeyKind int

const (
	KindID KeyKind = iota + 1
	KindName
)

func (k KeyKind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindName:
		return "name"
	default:
		return "unknown"
	}
}

// RawBlockRecord is the transient per-block output of a parse. It exists
// only until the mapper has resolved it to an internal block type.
type RawBlockRecord struct {
	Kind KeyKind
	ID   int    // set when Kind == KindID
	Name string // set when Kind == KindName

	// Aux carries the classic format's metadata byte (or a tree entry's
	// auxiliary value). It does not participate in mapping.
	Aux int

	Pos        Position
	SourceFile string
}

type Parsed struct {
	Source  Format
	Dims    Dimensions
	Records []RawBlockRecord
}

// maxVolume caps the declared block volume. Beyond it the file is treated
// as malformed rather than allocating unbounded memory.
const maxVolume = 1 << 24

// Parse decodes a structure container file. Leading bytes choose the path:
// a gzip magic pair triggers decompression, then the tag stream is decoded
// and classified by its named fields into the classic or tree variant.
func Parse(data []byte, filename string) (*Parsed, error) {
	if len(data) >= 2 && data[0] == 0x1F && data[1] == 0x8B {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, &ParseError{File: filename, Msg: "gzip header", Err: err}
		}
		raw, err := io.ReadAll(zr)
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, &ParseError{File: filename, Msg: "gzip stream", Err: err}
		}
		data = raw
	}
	if len(data) == 0 {
		return nil, &ParseError{File: filename, Msg: "empty stream"}
	}
	if data[0] != tagCompound {
		return nil, &ParseError{File: filename, Msg: "no compound-tag header; not a structure container"}
	}

	r := &tagReader{buf: data}
	_, root, err := r.readRoot()
	if err != nil {
		return nil, wrapFailure(filename, r, err)
	}

	// Classify by named fields. The tree variant is checked first: its
	// size/blocks pair is unambiguous, while classic needs the full set of
	// dimension fields plus the block array.
	switch {
	case hasTreeFields(root):
		p, err := parseTree(root, filename, r)
		if err != nil {
			return nil, wrapFailure(filename, r, err)
		}
		return p, nil
	case hasClassicFields(root):
		p, err := parseClassic(root, filename, r)
		if err != nil {
			return nil, wrapFailure(filename, r, err)
		}
		return p, nil
	default:
		return nil, &ParseError{
			File:    filename,
			Offset:  int64(r.off),
			LastTag: r.lastTag,
			Msg:     "unrecognized structure container: neither classic (Width/Height/Length/Blocks) nor tree (size/blocks) fields present",
		}
	}
}

func hasClassicFields(root map[string]any) bool {
	_, w := root["Width"]
	_, h := root["Height"]
	_, l := root["Length"]
	_, b := root["Blocks"]
	return w && h && l && b
}

func hasTreeFields(root map[string]any) bool {
	_, s := root["size"]
	_, b := root["blocks"]
	return s && b
}

func wrapFailure(filename string, r *tagReader, err error) error {
	if pe, ok := err.(*ParseError); ok {
		return pe
	}
	if f, ok := err.(*parseFailure); ok {
		return &ParseError{File: filename, Offset: f.off, LastTag: f.lastTag, Msg: f.msg}
	}
	return &ParseError{File: filename, Offset: int64(r.off), LastTag: r.lastTag, Msg: "decode", Err: err}
}
