package schematic

import "fmt"

// Classic tagged-stream variant: dimensions as shorts named Width, Height,
// Length, plus parallel Blocks/Data byte arrays. Block index i maps to
// position (i % w, (i / w) % h, i / (w*h)).

func parseClassic(root map[string]any, filename string, r *tagReader) (*Parsed, error) {
	w, err := classicDim(root, "Width", filename, r)
	if err != nil {
		return nil, err
	}
	h, err := classicDim(root, "Height", filename, r)
	if err != nil {
		return nil, err
	}
	l, err := classicDim(root, "Length", filename, r)
	if err != nil {
		return nil, err
	}
	dims := Dimensions{W: w, H: h, L: l}
	if dims.Volume() > maxVolume {
		return nil, classicErr(filename, r, "Blocks", "declared volume %d exceeds limit %d", dims.Volume(), maxVolume)
	}

	blocks, ok := root["Blocks"].([]byte)
	if !ok {
		return nil, classicErr(filename, r, "Blocks", "field Blocks is not a byte array")
	}
	if len(blocks) != dims.Volume() {
		return nil, classicErr(filename, r, "Blocks",
			"dimension mismatch: %dx%dx%d = %d, but Blocks holds %d entries",
			dims.W, dims.H, dims.L, dims.Volume(), len(blocks))
	}

	var meta []byte
	if v, present := root["Data"]; present {
		meta, ok = v.([]byte)
		if !ok {
			return nil, classicErr(filename, r, "Data", "field Data is not a byte array")
		}
		if len(meta) != len(blocks) {
			return nil, classicErr(filename, r, "Data",
				"metadata array length %d does not match block array length %d", len(meta), len(blocks))
		}
	}

	records := make([]RawBlockRecord, len(blocks))
	for i, id := range blocks {
		aux := 0
		if meta != nil {
			aux = int(meta[i])
		}
		records[i] = RawBlockRecord{
			Kind: KindID,
			ID:   int(id),
			Aux:  aux,
			Pos: Position{
				X: i % dims.W,
				Y: (i / dims.W) % dims.H,
				Z: i / (dims.W * dims.H),
			},
			SourceFile: filename,
		}
	}
	return &Parsed{Source: FormatClassic, Dims: dims, Records: records}, nil
}

func classicDim(root map[string]any, name, filename string, r *tagReader) (int, error) {
	v, present := root[name]
	if !present {
		return 0, classicErr(filename, r, name, "missing field %s", name)
	}
	n, ok := v.(int16)
	if !ok {
		return 0, classicErr(filename, r, name, "field %s is not a short", name)
	}
	if n <= 0 {
		return 0, classicErr(filename, r, name, "field %s must be positive, got %d", name, n)
	}
	return int(n), nil
}

func classicErr(filename string, r *tagReader, tag, msg string, args ...any) *ParseError {
	return &ParseError{
		File:    filename,
		Offset:  int64(r.off),
		LastTag: tag,
		Msg:     fmt.Sprintf(msg, args...),
	}
}
