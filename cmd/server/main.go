package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"blockforge.app/internal/auditlog"
	"blockforge.app/internal/blocks"
	"blockforge.app/internal/forge"
	"blockforge.app/internal/grid"
	"blockforge.app/internal/protocol"
	"blockforge.app/internal/store"
	"blockforge.app/internal/transport/api"
	"blockforge.app/internal/transport/ws"
	"blockforge.app/internal/tuning"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "http listen address")
		configDir     = flag.String("configs", "./configs", "config directory")
		dataDir       = flag.String("data", "", "runtime data directory (default: from tuning)")
		structuresDir = flag.String("structures", "", "structure file directory (default: from tuning)")
		tuningPath    = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		blocksPath    = flag.String("blocks", "", "path to blocks.json (default: <configs>/blocks.json, builtin if missing)")
		disableTrail  = flag.Bool("disable_audit_trail", false, "disable the compressed JSONL mapping trail")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *dataDir != "" {
		tune.DataDir = *dataDir
	}
	if *structuresDir != "" {
		tune.StructuresDir = *structuresDir
	}

	bp := strings.TrimSpace(*blocksPath)
	if bp == "" {
		bp = filepath.Join(*configDir, "blocks.json")
	}
	var reg *blocks.Registry
	if _, err := os.Stat(bp); err == nil {
		reg, err = blocks.Load(bp)
		if err != nil {
			logger.Fatalf("load block registry: %v", err)
		}
		logger.Printf("block registry from %s: %d types", bp, len(reg.Palette))
	} else {
		reg = blocks.Builtin()
		logger.Printf("builtin block registry: %d types", len(reg.Palette))
	}

	st, err := store.Open(filepath.Join(tune.DataDir, "blockforge.db"), tune.AuditBuffer)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	var trail *auditlog.Logger
	if !*disableTrail {
		trail = auditlog.NewLogger(tune.DataDir)
		defer trail.Close()
	}

	feed := ws.NewServer(log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))

	svc, err := forge.New(tune, reg, st, trail, feedEmitter{feed}, logger)
	if err != nil {
		logger.Fatalf("forge: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if _, err := os.Stat(tune.StructuresDir); err == nil {
		n, err := svc.ImportDir(tune.StructuresDir)
		if err != nil {
			logger.Fatalf("import structures: %v", err)
		}
		logger.Printf("imported %d blueprints from %s", n, tune.StructuresDir)
	} else {
		logger.Printf("structures dir %s missing; starting empty", tune.StructuresDir)
	}

	restored, relocated, err := svc.Restore(ctx)
	if err != nil {
		logger.Fatalf("restore structures: %v", err)
	}
	logger.Printf("restored %d structures (%d relocated)", restored, relocated)

	mux := http.NewServeMux()
	api.NewServer(svc, feed, logger).Register(mux)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		flushCtx, cancel3 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel3()
		if err := st.Flush(flushCtx); err != nil {
			logger.Printf("flush audits: %v", err)
		}
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// feedEmitter bridges pipeline events onto the websocket feed.
type feedEmitter struct{ feed *ws.Server }

func (e feedEmitter) StructureBuilt(id, blueprintID, name string, difficulty int, pos grid.WorldPos) {
	e.feed.Broadcast(protocol.StructureBuiltMsg{
		Type:            protocol.TypeStructureBuilt,
		ProtocolVersion: protocol.Version,
		StructureID:     id,
		BlueprintID:     blueprintID,
		Name:            name,
		Difficulty:      difficulty,
		Position:        pos,
	})
}

func (e feedEmitter) StructureDeleted(id string) {
	e.feed.Broadcast(protocol.StructureDeletedMsg{
		Type:            protocol.TypeStructureDeleted,
		ProtocolVersion: protocol.Version,
		StructureID:     id,
	})
}

func (e feedEmitter) AllStructuresDeleted() {
	e.feed.Broadcast(protocol.AllStructuresDeletedMsg{
		Type:            protocol.TypeAllStructuresDeleted,
		ProtocolVersion: protocol.Version,
	})
}

func (e feedEmitter) StructuresReloaded(n int) {
	e.feed.Broadcast(protocol.StructuresReloadedMsg{
		Type:            protocol.TypeStructuresReloaded,
		ProtocolVersion: protocol.Version,
		Blueprints:      n,
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
