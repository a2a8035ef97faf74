package api

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"blockforge.app/internal/blocks"
	"blockforge.app/internal/forge"
	"blockforge.app/internal/protocol"
	"blockforge.app/internal/store"
	"blockforge.app/internal/tuning"
)

func classicFile(w, h, l int16, ids []byte) []byte {
	var b bytes.Buffer
	writeTag := func(typ byte, name string) {
		b.WriteByte(typ)
		_ = binary.Write(&b, binary.BigEndian, int16(len(name)))
		b.WriteString(name)
	}
	b.WriteByte(0x0A)
	_ = binary.Write(&b, binary.BigEndian, int16(0))
	writeTag(0x02, "Width")
	_ = binary.Write(&b, binary.BigEndian, w)
	writeTag(0x02, "Height")
	_ = binary.Write(&b, binary.BigEndian, h)
	writeTag(0x02, "Length")
	_ = binary.Write(&b, binary.BigEndian, l)
	writeTag(0x07, "Blocks")
	_ = binary.Write(&b, binary.BigEndian, int32(len(ids)))
	b.Write(ids)
	b.WriteByte(0x00)
	return b.Bytes()
}

func newTestAPI(t *testing.T) (*forge.Service, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	cfg := tuning.Defaults()
	cfg.DataDir = dir
	cfg.StructuresDir = filepath.Join(dir, "structures")

	st, err := store.Open(filepath.Join(dir, "forge.db"), 64)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := log.New(os.Stdout, "[api-test] ", 0)
	svc, err := forge.New(cfg, blocks.Builtin(), st, nil, nil, logger)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	mux := http.NewServeMux()
	NewServer(svc, nil, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return svc, srv
}

func importOne(t *testing.T, svc *forge.Service, dir, name string) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, classicFile(2, 1, 2, []byte{1, 1, 1, 1}), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := svc.ImportFile(p); err != nil {
		t.Fatalf("import: %v", err)
	}
}

func TestBlueprints_ListAndGet(t *testing.T) {
	svc, srv := newTestAPI(t)
	importOne(t, svc, t.TempDir(), "hut.schematic")

	resp, err := http.Get(srv.URL + "/v1/blueprints")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var docs []protocol.BlueprintDoc
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "hut" {
		t.Fatalf("docs: %+v", docs)
	}
	if docs[0].Dimensions != (protocol.DimsDoc{W: 2, H: 1, L: 2}) {
		t.Fatalf("dims: %+v", docs[0].Dimensions)
	}
	if len(docs[0].Blocks) != 4 {
		t.Fatalf("blocks: %d", len(docs[0].Blocks))
	}

	one, err := http.Get(srv.URL + "/v1/blueprints/hut")
	if err != nil {
		t.Fatalf("get one: %v", err)
	}
	defer one.Body.Close()
	var doc protocol.BlueprintDoc
	if err := json.NewDecoder(one.Body).Decode(&doc); err != nil {
		t.Fatalf("decode one: %v", err)
	}
	if doc.ID != "hut" || !doc.FromFile || doc.OriginalFilename != "hut.schematic" {
		t.Fatalf("doc: %+v", doc)
	}
}

func TestBlueprintByID_NoData(t *testing.T) {
	_, srv := newTestAPI(t)
	resp, err := http.Get(srv.URL + "/v1/blueprints/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var ed protocol.ErrorDoc
	if err := json.NewDecoder(resp.Body).Decode(&ed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ed.Code != protocol.ErrNoData {
		t.Fatalf("code: %q", ed.Code)
	}
}

func TestStructures_EmptyList(t *testing.T) {
	_, srv := newTestAPI(t)
	resp, err := http.Get(srv.URL + "/v1/structures")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(b)) != "[]" {
		t.Fatalf("body: %q", b)
	}
}

func TestReload_LoopbackOnly(t *testing.T) {
	svc, srv := newTestAPI(t)
	importOne(t, svc, t.TempDir(), "hut.schematic")

	resp, err := http.Post(srv.URL+"/v1/reload", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var out map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["blueprints"] != 1 {
		t.Fatalf("reloaded: %v", out)
	}

	get, err := http.Get(srv.URL + "/v1/reload")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer get.Body.Close()
	if get.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status: %d", get.StatusCode)
	}
}

func TestMetrics_Exposition(t *testing.T) {
	svc, srv := newTestAPI(t)
	importOne(t, svc, t.TempDir(), "hut.schematic")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	for _, want := range []string{
		"blockforge_blueprints_cached 1",
		"blockforge_parse_failures_total 0",
		"blockforge_grid_cells_occupied 0",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
