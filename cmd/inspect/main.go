// Command inspect parses one structure file and prints its blueprint
// exchange document, or the parser's diagnostics when the file is
// rejected. Exits non-zero on rejection.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"blockforge.app/internal/blocks"
	"blockforge.app/internal/blueprint"
	"blockforge.app/internal/mapping"
	"blockforge.app/internal/protocol"
	"blockforge.app/internal/schematic"
)

type stderrSink struct{ verbose bool }

func (s stderrSink) WriteMapping(e mapping.AuditEntry) {
	if !s.verbose && !e.Fallback {
		return
	}
	key := e.SourceName
	if e.Kind == "id" {
		key = fmt.Sprintf("id %d", e.SourceID)
	}
	fmt.Fprintf(os.Stderr, "map %s -> %s (fallback=%v)\n", key, e.MappedType, e.Fallback)
}

func main() {
	var (
		blocksPath = flag.String("blocks", "", "path to blocks.json (builtin registry if empty)")
		verbose    = flag.Bool("v", false, "print every mapping decision, not only fallbacks")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: inspect [-blocks blocks.json] [-v] <structure file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	logger := log.New(os.Stderr, "[inspect] ", 0)

	reg := blocks.Builtin()
	if *blocksPath != "" {
		var err error
		reg, err = blocks.Load(*blocksPath)
		if err != nil {
			logger.Fatalf("load block registry: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatalf("read: %v", err)
	}
	name := filepath.Base(path)

	parsed, err := schematic.Parse(data, name)
	if err != nil {
		var pe *schematic.ParseError
		if errors.As(err, &pe) {
			fmt.Fprintf(os.Stderr, "rejected %s: %s\n", pe.File, pe.Msg)
			fmt.Fprintf(os.Stderr, "  byte offset: %d\n", pe.Offset)
			if pe.LastTag != "" {
				fmt.Fprintf(os.Stderr, "  last tag:    %s\n", pe.LastTag)
			}
		} else {
			fmt.Fprintf(os.Stderr, "rejected %s: %v\n", name, err)
		}
		os.Exit(1)
	}

	mapper := mapping.New(reg, stderrSink{verbose: *verbose})
	mapped := make([]blueprint.Block, 0, len(parsed.Records))
	for _, r := range parsed.Records {
		key := mapping.Key{ID: r.ID, Name: r.Name}
		switch r.Kind {
		case schematic.KindID:
			key.Kind = mapping.KindID
		case schematic.KindName:
			key.Kind = mapping.KindName
		}
		mapped = append(mapped, blueprint.Block{
			Type: mapper.Map(key, r.SourceFile),
			Pos:  r.Pos,
		})
	}

	id := strings.TrimSuffix(name, filepath.Ext(name))
	bp, err := blueprint.NewBuilder(reg).Build(parsed.Dims, mapped, blueprint.Meta{
		ID:               id,
		Name:             id,
		Difficulty:       1,
		FromFile:         true,
		OriginalFilename: name,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rejected %s: %v\n", name, err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(protocol.FromBlueprint(bp)); err != nil {
		logger.Fatalf("encode: %v", err)
	}
}
