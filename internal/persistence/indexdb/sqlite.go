// Package indexdb keeps a queryable sqlite index of the world: finalized
// placements, tombstones, and per-frame stats. Writes go through an async
// writer goroutine and may be dropped under load; the event journal is
// the durable record, this index is for lookups and tooling. Tombstones
// are the exception: they are read back at startup to seed the world, so
// their writes share the same queue but the queue is sized to make drops
// an operational alarm, not an expected mode.
package indexdb

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

	"github.com/collin2985/chunkstream/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqPlacements reqKind = iota + 1
	reqTombstone
	reqFrame
)

type req struct {
	kind reqKind

	frame uint64
	cell  [2]int
	rows  []world.PlacementRow
	id    string
	stats world.FrameRow
}

// OpenSQLite opens (creating if needed) the index for one world. The
// stored world id and seed must match; pointing a server at another
// world's index is a configuration error, not something to heal over.
func OpenSQLite(path, worldID string, seed int64) (*SQLiteIndex, error) {
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
	if err := checkMeta(db, worldID, seed); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Buffered for bursty generation frames (a cell finalizing is one
		// request carrying all its rows).
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
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
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS placements (
			id TEXT PRIMARY KEY,
			cell_x INTEGER NOT NULL,
			cell_z INTEGER NOT NULL,
			category TEXT NOT NULL,
			kind TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			yaw REAL NOT NULL,
			scale REAL NOT NULL,
			quality REAL NOT NULL,
			frame INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_cell ON placements(cell_x, cell_z);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_category ON placements(category);`,
		`CREATE TABLE IF NOT EXISTS tombstones (
			id TEXT PRIMARY KEY,
			cell_x INTEGER NOT NULL,
			cell_z INTEGER NOT NULL,
			frame INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tombstones_cell ON tombstones(cell_x, cell_z);`,
		`CREATE TABLE IF NOT EXISTS frames (
			frame INTEGER PRIMARY KEY,
			elapsed_ms REAL NOT NULL,
			overrun INTEGER NOT NULL,
			cells INTEGER NOT NULL,
			content INTEGER NOT NULL,
			executed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func checkMeta(db *sql.DB, worldID string, seed int64) error {
	wantSeed := fmt.Sprintf("%d", seed)
	checks := []struct{ key, want string }{
		{"schema_version", "1"},
		{"world_id", worldID},
		{"seed", wantSeed},
	}
	for _, c := range checks {
		var got string
		err := db.QueryRow(`SELECT value FROM meta WHERE key=?`, c.key).Scan(&got)
		switch {
		case err == sql.ErrNoRows:
			if _, err := db.Exec(`INSERT INTO meta(key,value) VALUES(?,?)`, c.key, c.want); err != nil {
				return err
			}
		case err != nil:
			return err
		case got != c.want:
			return fmt.Errorf("index db %s is %q, server configured for %q", c.key, got, c.want)
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many index writes were discarded because the
// writer fell behind.
func (s *SQLiteIndex) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (s *SQLiteIndex) WritePlacements(frame uint64, cell [2]int, rows []world.PlacementRow) {
	if s == nil || s.closed.Load() || len(rows) == 0 {
		return
	}
	cp := make([]world.PlacementRow, len(rows))
	copy(cp, rows)
	select {
	case s.ch <- req{kind: reqPlacements, frame: frame, cell: cell, rows: cp}:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) WriteTombstone(frame uint64, cell [2]int, id string) {
	if s == nil || s.closed.Load() || id == "" {
		return
	}
	select {
	case s.ch <- req{kind: reqTombstone, frame: frame, cell: cell, id: id}:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) WriteFrame(row world.FrameRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqFrame, stats: row}:
	default:
		s.dropped.Add(1)
	}
}

// LoadTombstones reads every recorded tombstone, grouped by cell. Called
// once at startup, synchronously, before the writer sees traffic.
func (s *SQLiteIndex) LoadTombstones() (map[[2]int][]string, error) {
	rows, err := s.db.Query(`SELECT cell_x, cell_z, id FROM tombstones ORDER BY cell_x, cell_z, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[[2]int][]string{}
	for rows.Next() {
		var cx, cz int
		var id string
		if err := rows.Scan(&cx, &cz, &id); err != nil {
			return nil, err
		}
		k := [2]int{cx, cz}
		out[k] = append(out[k], id)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertPlacement, _ := s.db.Prepare(`INSERT OR REPLACE INTO placements(id,cell_x,cell_z,category,kind,x,y,z,yaw,scale,quality,frame) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertTombstone, _ := s.db.Prepare(`INSERT OR REPLACE INTO tombstones(id,cell_x,cell_z,frame) VALUES(?,?,?,?)`)
	deletePlacement, _ := s.db.Prepare(`DELETE FROM placements WHERE id=?`)
	insertFrame, _ := s.db.Prepare(`INSERT OR REPLACE INTO frames(frame,elapsed_ms,overrun,cells,content,executed,failed,digest) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertPlacement, insertTombstone, deletePlacement, insertFrame} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
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
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqPlacements:
			if insertPlacement == nil {
				break
			}
			failed := false
			for _, row := range r.rows {
				if _, err := tx.Stmt(insertPlacement).Exec(
					row.ID,
					r.cell[0], r.cell[1],
					row.Category,
					row.Kind,
					row.X, row.Y, row.Z,
					row.Yaw,
					row.Scale,
					row.Quality,
					int64(r.frame),
				); err != nil {
					rollback()
					failed = true
					break
				}
				opCount++
			}
			if failed {
				continue
			}

		case reqTombstone:
			if insertTombstone != nil {
				if _, err := tx.Stmt(insertTombstone).Exec(r.id, r.cell[0], r.cell[1], int64(r.frame)); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			// A tombstoned entity is gone; its placement row goes with it.
			if deletePlacement != nil {
				if _, err := tx.Stmt(deletePlacement).Exec(r.id); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqFrame:
			if insertFrame != nil {
				ov := 0
				if r.stats.Overrun {
					ov = 1
				}
				if _, err := tx.Stmt(insertFrame).Exec(
					int64(r.stats.Frame),
					r.stats.ElapsedMS,
					ov,
					r.stats.CellsLoaded,
					r.stats.Content,
					int64(r.stats.Executed),
					int64(r.stats.Failed),
					r.stats.Digest,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
