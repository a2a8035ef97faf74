// Package store durably records built-structure metadata and the mapping
// audit tables in sqlite. Structure writes are synchronous; audit rows are
// batched through a single writer goroutine so a flush can never stall the
// mapper.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"blockforge.app/internal/grid"
	"blockforge.app/internal/mapping"
)

// BuiltStructure is the persisted record of a placed structure. Geometry is
// never stored; rehydration re-reads the owning blueprint.
type BuiltStructure struct {
	ID          string
	BlueprintID string
	Name        string
	Difficulty  int
	Position    grid.WorldPos
	CreatedAt   time.Time
}

type auditReq struct {
	entry mapping.AuditEntry
	ack   chan struct{} // non-nil for flush requests
}

type Store struct {
	db *sql.DB

	ch   chan auditReq
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

// Open creates (or reuses) the database at path and starts the audit
// writer. auditBuffer sizes the queue feeding the writer; writes beyond it
// are dropped.
func Open(path string, auditBuffer int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if auditBuffer <= 0 {
		auditBuffer = 8192
	}
	s := &Store{
		db: db,
		ch: make(chan auditReq, auditBuffer),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.auditLoop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style audit workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS structures (
			id TEXT PRIMARY KEY,
			blueprint_id TEXT NOT NULL,
			name TEXT NOT NULL,
			difficulty INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_structures_created ON structures(created_at);`,
		`CREATE TABLE IF NOT EXISTS block_id_mappings (
			source_id INTEGER NOT NULL,
			mapped_type TEXT NOT NULL,
			source_file TEXT NOT NULL,
			fallback INTEGER NOT NULL,
			PRIMARY KEY (source_id, source_file)
		);`,
		`CREATE TABLE IF NOT EXISTS block_name_mappings (
			source_name TEXT NOT NULL,
			mapped_type TEXT NOT NULL,
			source_file TEXT NOT NULL,
			fallback INTEGER NOT NULL,
			PRIMARY KEY (source_name, source_file)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// SaveStructure inserts or replaces one built-structure record.
func (s *Store) SaveStructure(b BuiltStructure) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO structures(id,blueprint_id,name,difficulty,x,y,z,created_at) VALUES(?,?,?,?,?,?,?,?)`,
		b.ID, b.BlueprintID, b.Name, b.Difficulty,
		b.Position.X, b.Position.Y, b.Position.Z,
		b.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// LoadStructures returns all records ordered by creation time, oldest
// first.
func (s *Store) LoadStructures() ([]BuiltStructure, error) {
	rows, err := s.db.Query(`SELECT id,blueprint_id,name,difficulty,x,y,z,created_at FROM structures ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BuiltStructure
	for rows.Next() {
		var b BuiltStructure
		var created string
		if err := rows.Scan(&b.ID, &b.BlueprintID, &b.Name, &b.Difficulty, &b.Position.X, &b.Position.Y, &b.Position.Z, &created); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("structure %s: bad created_at %q: %w", b.ID, created, err)
		}
		b.CreatedAt = t
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateStructurePosition rewrites a record's world position. Used when the
// loader relocates a colliding record.
func (s *Store) UpdateStructurePosition(id string, pos grid.WorldPos) error {
	_, err := s.db.Exec(`UPDATE structures SET x=?, y=?, z=? WHERE id=?`, pos.X, pos.Y, pos.Z, id)
	return err
}

func (s *Store) DeleteStructure(id string) error {
	_, err := s.db.Exec(`DELETE FROM structures WHERE id=?`, id)
	return err
}

func (s *Store) DeleteAllStructures() error {
	_, err := s.db.Exec(`DELETE FROM structures`)
	return err
}

// WriteMapping queues an audit entry. Never blocks; a saturated queue drops
// the entry (the in-memory mapper cache still guarantees deterministic
// mapping).
func (s *Store) WriteMapping(e mapping.AuditEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- auditReq{entry: e}:
	default:
		s.dropped.Add(1)
	}
}

// DroppedAudits counts audit entries dropped due to queue saturation.
func (s *Store) DroppedAudits() uint64 { return s.dropped.Load() }

// MappingRow is one row of an audit table, keyed by source id or name
// depending on the table.
type MappingRow struct {
	SourceID   int    `json:"source_id,omitempty"`
	SourceName string `json:"source_name,omitempty"`
	MappedType string `json:"mapped_type"`
	SourceFile string `json:"source_file"`
	Fallback   bool   `json:"fallback"`
}

// IDMappings returns the numeric-id audit table.
func (s *Store) IDMappings() ([]MappingRow, error) {
	rows, err := s.db.Query(`SELECT source_id,mapped_type,source_file,fallback FROM block_id_mappings ORDER BY source_id, source_file`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MappingRow
	for rows.Next() {
		var r MappingRow
		var fb int
		if err := rows.Scan(&r.SourceID, &r.MappedType, &r.SourceFile, &fb); err != nil {
			return nil, err
		}
		r.Fallback = fb != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// NameMappings returns the string-name audit table.
func (s *Store) NameMappings() ([]MappingRow, error) {
	rows, err := s.db.Query(`SELECT source_name,mapped_type,source_file,fallback FROM block_name_mappings ORDER BY source_name, source_file`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MappingRow
	for rows.Next() {
		var r MappingRow
		var fb int
		if err := rows.Scan(&r.SourceName, &r.MappedType, &r.SourceFile, &fb); err != nil {
			return nil, err
		}
		r.Fallback = fb != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Flush waits until every audit entry queued before the call has been
// committed. Intended for tests and shutdown paths.
func (s *Store) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return nil
	}
	ack := make(chan struct{})
	select {
	case s.ch <- auditReq{ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const (
	commitEvery   = 512
	commitMaxWait = 250 * time.Millisecond
)

func (s *Store) auditLoop() {
	insertID, _ := s.db.Prepare(`INSERT OR IGNORE INTO block_id_mappings(source_id,mapped_type,source_file,fallback) VALUES(?,?,?,?)`)
	insertName, _ := s.db.Prepare(`INSERT OR IGNORE INTO block_name_mappings(source_name,mapped_type,source_file,fallback) VALUES(?,?,?,?)`)
	defer func() {
		if insertID != nil {
			_ = insertID.Close()
		}
		if insertName != nil {
			_ = insertName.Close()
		}
	}()

	ctx := context.Background()
	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		select {
		case req, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			if req.ack != nil {
				commit()
				close(req.ack)
				continue
			}
			e := req.entry
			begin()
			if tx == nil {
				continue
			}
			fb := 0
			if e.Fallback {
				fb = 1
			}
			var err error
			switch e.Kind {
			case "id":
				if insertID != nil {
					_, err = tx.Stmt(insertID).Exec(e.SourceID, e.MappedType, e.SourceFile, fb)
				}
			case "name":
				if insertName != nil {
					_, err = tx.Stmt(insertName).Exec(e.SourceName, e.MappedType, e.SourceFile, fb)
				}
			}
			if err != nil {
				rollback()
				continue
			}
			opCount++
			if opCount >= commitEvery {
				commit()
			}
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}
