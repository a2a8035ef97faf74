package schematic

import "fmt"

// Tree-structured variant: a size vector plus a block list. Each block entry
// carries a position and either a palette index (requiring a root palette of
// names) or a direct id (string name or numeric).

func parseTree(root map[string]any, filename string, r *tagReader) (*Parsed, error) {
	dims, err := treeSize(root, filename, r)
	if err != nil {
		return nil, err
	}

	rawBlocks, ok := root["blocks"].([]any)
	if !ok {
		return nil, treeErr(filename, r, "blocks", "field blocks is not a list")
	}
	if len(rawBlocks) > maxVolume {
		return nil, treeErr(filename, r, "blocks", "block list length %d exceeds limit %d", len(rawBlocks), maxVolume)
	}

	palette, havePalette, err := treePalette(root, filename, r)
	if err != nil {
		return nil, err
	}

	records := make([]RawBlockRecord, 0, len(rawBlocks))
	for i, rb := range rawBlocks {
		entry, ok := rb.(map[string]any)
		if !ok {
			return nil, treeErr(filename, r, "blocks", "block entry %d is not a compound", i)
		}
		pos, err := treePos(entry, i, filename, r)
		if err != nil {
			return nil, err
		}

		rec := RawBlockRecord{Pos: pos, SourceFile: filename}
		switch {
		case entry["state"] != nil:
			idx, ok := intValue(entry["state"])
			if !ok {
				return nil, treeErr(filename, r, "state", "block entry %d: state is not an integer", i)
			}
			if !havePalette {
				return nil, treeErr(filename, r, "state", "block entry %d references a palette but the container declares none", i)
			}
			if idx < 0 || idx >= len(palette) {
				return nil, treeErr(filename, r, "state", "block entry %d: palette index %d out of range [0,%d)", i, idx, len(palette))
			}
			rec.Kind = KindName
			rec.Name = palette[idx]
		case entry["id"] != nil:
			if name, ok := entry["id"].(string); ok {
				rec.Kind = KindName
				rec.Name = name
			} else if id, ok := intValue(entry["id"]); ok {
				rec.Kind = KindID
				rec.ID = id
			} else {
				return nil, treeErr(filename, r, "id", "block entry %d: id is neither a string nor an integer", i)
			}
		default:
			return nil, treeErr(filename, r, "blocks", "block entry %d has neither a palette state nor a direct id", i)
		}
		if aux, ok := intValue(entry["aux"]); ok {
			rec.Aux = aux
		}
		records = append(records, rec)
	}

	return &Parsed{Source: FormatTree, Dims: dims, Records: records}, nil
}

func treeSize(root map[string]any, filename string, r *tagReader) (Dimensions, error) {
	raw, ok := root["size"].([]any)
	if !ok {
		return Dimensions{}, treeErr(filename, r, "size", "field size is not a list")
	}
	if len(raw) != 3 {
		return Dimensions{}, treeErr(filename, r, "size", "field size has %d entries, want 3", len(raw))
	}
	var n [3]int
	for i, v := range raw {
		d, ok := intValue(v)
		if !ok {
			return Dimensions{}, treeErr(filename, r, "size", "size[%d] is not an integer", i)
		}
		if d <= 0 {
			return Dimensions{}, treeErr(filename, r, "size", "size[%d] must be positive, got %d", i, d)
		}
		n[i] = d
	}
	dims := Dimensions{W: n[0], H: n[1], L: n[2]}
	if dims.Volume() > maxVolume {
		return Dimensions{}, treeErr(filename, r, "size", "declared volume %d exceeds limit %d", dims.Volume(), maxVolume)
	}
	return dims, nil
}

// treePalette accepts either plain name strings or compounds holding a Name
// field. Any other palette scheme is rejected outright.
func treePalette(root map[string]any, filename string, r *tagReader) ([]string, bool, error) {
	raw, present := root["palette"]
	if !present {
		return nil, false, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false, treeErr(filename, r, "palette", "field palette is not a list")
	}
	names := make([]string, len(list))
	for i, v := range list {
		switch p := v.(type) {
		case string:
			names[i] = p
		case map[string]any:
			name, ok := p["Name"].(string)
			if !ok {
				return nil, false, treeErr(filename, r, "palette", "palette entry %d has no Name", i)
			}
			names[i] = name
		default:
			return nil, false, treeErr(filename, r, "palette", "palette entry %d uses an unrecognized scheme", i)
		}
	}
	return names, true, nil
}

func treePos(entry map[string]any, i int, filename string, r *tagReader) (Position, error) {
	raw, ok := entry["pos"].([]any)
	if !ok {
		return Position{}, treeErr(filename, r, "pos", "block entry %d: pos is not a list", i)
	}
	if len(raw) != 3 {
		return Position{}, treeErr(filename, r, "pos", "block entry %d: pos has %d entries, want 3", i, len(raw))
	}
	var n [3]int
	for j, v := range raw {
		c, ok := intValue(v)
		if !ok {
			return Position{}, treeErr(filename, r, "pos", "block entry %d: pos[%d] is not an integer", i, j)
		}
		n[j] = c
	}
	return Position{X: n[0], Y: n[1], Z: n[2]}, nil
}

func treeErr(filename string, r *tagReader, tag, msg string, args ...any) *ParseError {
	return &ParseError{
		File:    filename,
		Offset:  int64(r.off),
		LastTag: tag,
		Msg:     fmt.Sprintf(msg, args...),
	}
}
