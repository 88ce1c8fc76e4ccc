package indexdb

import (
	"context"
	"database/sql"
)

type SessionRow struct {
	ID        string
	StartedAt string
	EndedAt   string
	Upstream  string
	MapName   string
	MapW      int
	MapH      int
	LastLoop  uint32
}

type UnitRecord struct {
	Tag           uint64
	TypeID        uint32
	FirstLoop     uint32
	LastLoop      uint32
	// Completed is set only for units seen under construction that
	// finished during the session.
	CompletedLoop uint32
	Completed     bool
}

// Sessions lists indexed sessions, newest first.
func (s *SQLiteIndex) Sessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, ended_at, upstream, map_name, map_w, map_h, last_loop
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			r                    SessionRow
			ended, mapName       sql.NullString
			mapW, mapH, lastLoop sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &ended, &r.Upstream, &mapName, &mapW, &mapH, &lastLoop); err != nil {
			return nil, err
		}
		r.EndedAt = ended.String
		r.MapName = mapName.String
		r.MapW = int(mapW.Int64)
		r.MapH = int(mapH.Int64)
		r.LastLoop = uint32(lastLoop.Int64)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Units lists the units seen in a session, by tag.
func (s *SQLiteIndex) Units(ctx context.Context, session string) ([]UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag, type_id, first_loop, last_loop, completed_loop
		FROM units WHERE session=? ORDER BY tag`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnitRecord
	for rows.Next() {
		var (
			u         UnitRecord
			tag       int64
			completed sql.NullInt64
		)
		if err := rows.Scan(&tag, &u.TypeID, &u.FirstLoop, &u.LastLoop, &completed); err != nil {
			return nil, err
		}
		u.Tag = uint64(tag)
		u.CompletedLoop = uint32(completed.Int64)
		u.Completed = completed.Valid
		out = append(out, u)
	}
	return out, rows.Err()
}

// Results returns the recorded player results of a session keyed by
// player id.
func (s *SQLiteIndex) Results(ctx context.Context, session string) (map[uint32]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT player_id, result FROM results WHERE session=?`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[uint32]string{}
	for rows.Next() {
		var id uint32
		var res string
		if err := rows.Scan(&id, &res); err != nil {
			return nil, err
		}
		out[id] = res
	}
	return out, rows.Err()
}
