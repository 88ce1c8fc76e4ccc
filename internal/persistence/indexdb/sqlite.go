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

	"sc2tap.ai/internal/catalog"
	"sc2tap.ai/internal/entities"
	"sc2tap.ai/internal/protocol"
	"sc2tap.ai/internal/tracker"
)

// SQLiteIndex is a queryable secondary index of relay sessions and the units
// seen in them. Writes are queued to one writer goroutine and dropped when it
// falls behind; recordings stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSession atomic.Uint64
	dropUnit    atomic.Uint64
	dropResult  atomic.Uint64
	writeErrs   atomic.Uint64
}

type reqKind int

const (
	reqSessionStart reqKind = iota + 1
	reqSessionMap
	reqSessionEnd
	reqUnitSeen
	reqUnitGone
	reqResult
)

type req struct {
	kind    reqKind
	session string
	at      string

	upstream string
	mapName  string
	mapW     int
	mapH     int
	loop     uint32

	unit   unitRow
	result protocol.PlayerResult
}

type unitRow struct {
	Tag       uint64
	TypeID    uint32
	Loop      uint32
	Completed bool
}

type IndexStats struct {
	QueueDepth    int
	QueueCapacity int

	DropSessionTotal uint64
	DropUnitTotal    uint64
	DropResultTotal  uint64
	WriteErrorTotal  uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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

	s := &SQLiteIndex{
		db: db,
		// Large enough for a burst of unit churn at game start.
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			units INTEGER NOT NULL,
			abilities INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			upstream TEXT NOT NULL,
			map_name TEXT,
			map_w INTEGER,
			map_h INTEGER,
			last_loop INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);`,
		`CREATE TABLE IF NOT EXISTS units (
			session TEXT NOT NULL,
			tag INTEGER NOT NULL,
			type_id INTEGER NOT NULL,
			first_loop INTEGER NOT NULL,
			last_loop INTEGER NOT NULL,
			completed_loop INTEGER,
			PRIMARY KEY (session, tag)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_units_type ON units(session, type_id);`,
		`CREATE TABLE IF NOT EXISTS results (
			session TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			result TEXT NOT NULL,
			game_loop INTEGER NOT NULL,
			PRIMARY KEY (session, player_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
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

func (s *SQLiteIndex) Stats() IndexStats {
	if s == nil {
		return IndexStats{}
	}
	return IndexStats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropSessionTotal: s.dropSession.Load(),
		DropUnitTotal:    s.dropUnit.Load(),
		DropResultTotal:  s.dropResult.Load(),
		WriteErrorTotal:  s.writeErrs.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// UpsertCatalog stores the digest of the unit catalog in use so a session
// can be matched with the names it was labelled with.
func (s *SQLiteIndex) UpsertCatalog(name string, cat *catalog.Catalog) error {
	if s == nil || cat == nil {
		return nil
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO catalogs(name,digest,units,abilities,updated_at) VALUES(?,?,?,?,?)`,
		name, cat.Digest, cat.Units(), cat.Abilities(), now())
	return err
}

// BeginSession records a new relay session and returns the sink that
// indexes its tracker output.
func (s *SQLiteIndex) BeginSession(id, upstream string) *Session {
	s.enqueue(req{kind: reqSessionStart, session: id, at: now(), upstream: upstream}, &s.dropSession)
	return &Session{idx: s, id: id}
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// Session is a tracker.Sink bound to one session id.
type Session struct {
	idx *SQLiteIndex
	id  string

	lastLoop uint32
}

var _ tracker.Sink = (*Session)(nil)

func (x *Session) ID() string { return x.id }

func (x *Session) OnGameInfo(info tracker.GameInfo) {
	x.idx.enqueue(req{kind: reqSessionMap, session: x.id, mapName: info.MapName, mapW: info.Width, mapH: info.Height}, &x.idx.dropSession)
}

func (x *Session) OnTerrain(tracker.TerrainFrame) {}

func (x *Session) OnEntities(gameLoop uint32, effects []entities.Effect) {
	x.lastLoop = gameLoop
	for _, e := range effects {
		switch e.Kind {
		case entities.EffectUpsert:
			x.idx.enqueue(req{kind: reqUnitSeen, session: x.id, unit: unitRow{
				Tag: e.Tag, TypeID: e.Entity.TypeID, Loop: gameLoop, Completed: e.Completed,
			}}, &x.idx.dropUnit)
		case entities.EffectRemove:
			x.idx.enqueue(req{kind: reqUnitGone, session: x.id, unit: unitRow{
				Tag: e.Tag, TypeID: e.Entity.TypeID, Loop: e.LastSeen,
			}}, &x.idx.dropUnit)
		}
	}
}

func (x *Session) OnGameEnd(gameLoop uint32, results []protocol.PlayerResult) {
	x.lastLoop = gameLoop
	for _, r := range results {
		x.idx.enqueue(req{kind: reqResult, session: x.id, loop: gameLoop, result: r}, &x.idx.dropResult)
	}
}

// End stamps the session's end time and last game loop.
func (x *Session) End() {
	x.idx.enqueue(req{kind: reqSessionEnd, session: x.id, at: now(), loop: x.lastLoop}, &x.idx.dropSession)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(id,started_at,upstream) VALUES(?,?,?)`)
	updateMap, _ := s.db.Prepare(`UPDATE sessions SET map_name=?, map_w=?, map_h=? WHERE id=?`)
	endSession, _ := s.db.Prepare(`UPDATE sessions SET ended_at=?, last_loop=? WHERE id=?`)
	upsertUnit, _ := s.db.Prepare(`INSERT INTO units(session,tag,type_id,first_loop,last_loop,completed_loop) VALUES(?,?,?,?,?,?)
		ON CONFLICT(session,tag) DO UPDATE SET
			type_id=excluded.type_id,
			last_loop=excluded.last_loop,
			completed_loop=COALESCE(units.completed_loop, excluded.completed_loop)`)
	goneUnit, _ := s.db.Prepare(`UPDATE units SET last_loop=? WHERE session=? AND tag=?`)
	insertResult, _ := s.db.Prepare(`INSERT OR REPLACE INTO results(session,player_id,result,game_loop) VALUES(?,?,?,?)`)
	stmts := []*sql.Stmt{insertSession, updateMap, endSession, upsertUnit, goneUnit, insertResult}
	defer func() {
		for _, st := range stmts {
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
		if err := tx.Commit(); err != nil {
			s.writeErrs.Add(1)
		}
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
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.writeErrs.Add(1)
			rollback()
			return
		}
		opCount++
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		var ok bool
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSessionStart:
			exec(insertSession, r.session, r.at, r.upstream)
		case reqSessionMap:
			exec(updateMap, r.mapName, r.mapW, r.mapH, r.session)
		case reqSessionEnd:
			exec(endSession, r.at, int64(r.loop), r.session)
			// Session boundaries are committed at once so readers see them.
			commit()
			continue
		case reqUnitSeen:
			var completed any
			if r.unit.Completed {
				completed = int64(r.unit.Loop)
			}
			exec(upsertUnit, r.session, int64(r.unit.Tag), int64(r.unit.TypeID), int64(r.unit.Loop), int64(r.unit.Loop), completed)
		case reqUnitGone:
			exec(goneUnit, int64(r.unit.Loop), r.session, int64(r.unit.Tag))
		case reqResult:
			exec(insertResult, r.session, int64(r.result.PlayerID), r.result.Result.String(), int64(r.loop))
		}

		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}
