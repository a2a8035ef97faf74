package schematic

import "fmt"

// ParseError reports a structurally invalid container file. It carries the
// byte offset into the (decompressed) stream and the last tag name the
// decoder recognized, so a bad file can be diagnosed without dumping a
// corrupt guess. A file that fails to parse is rejected whole; the parser
// never substitutes a placeholder shape.
type ParseError struct {
	File    string
	Offset  int64
	LastTag string
	Msg     string
	Err     error
}

func (e *ParseError) Error() string {
	s := fmt.Sprintf("parse %s: %s (offset %d", e.File, e.Msg, e.Offset)
	if e.LastTag != "" {
		s += fmt.Sprintf(", after tag %q", e.LastTag)
	}
	s += ")"
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ParseError) Unwrap() error { return e.Err }
