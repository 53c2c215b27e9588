// Package sqlite is the persistent store of rooms, users, blacklists and
// study history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/studyroom/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// :memory: databases exist per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	log.Info().Str("module", "storage.sqlite").Str("path", dbPath).Msg("database initialized")
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		profile_image TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		master_id TEXT NOT NULL,
		password TEXT NOT NULL DEFAULT '',
		timer INTEGER NOT NULL DEFAULT 25,
		short_break INTEGER NOT NULL DEFAULT 5,
		long_break INTEGER NOT NULL DEFAULT 15,
		long_break_interval INTEGER NOT NULL DEFAULT 4,
		expired_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS room_blocks (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		PRIMARY KEY (room_id, user_id),
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS study_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		join_at INTEGER NOT NULL,
		exit_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_study_history_open ON study_history(room_id, user_id, exit_at);

	CREATE TABLE IF NOT EXISTS room_ignitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	`
	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

// Out-of-band setup, used by the API server and tests.

func (d *Database) CreateUser(ctx context.Context, u domain.User) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO users (id, name, profile_image) VALUES (?, ?, ?)",
		string(u.ID), u.Name, u.ProfileImage,
	)
	return err
}

func (d *Database) CreateRoom(ctx context.Context, rec domain.RoomRecord) error {
	var expired sql.NullInt64
	if !rec.ExpiredAt.IsZero() {
		expired = sql.NullInt64{Int64: millis(rec.ExpiredAt), Valid: true}
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO rooms (id, title, master_id, password, timer, short_break, long_break, long_break_interval, expired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID), rec.Title, string(rec.MasterID), rec.Password,
		rec.Timer.TimerLengthMinutes, rec.Timer.ShortBreakMinutes, rec.Timer.LongBreakMinutes, rec.Timer.LongBreakInterval,
		expired,
	)
	return err
}

// core.Store

func (d *Database) FindRoom(ctx context.Context, id domain.RoomID) (*domain.RoomRecord, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, title, master_id, password, timer, short_break, long_break, long_break_interval, expired_at
		FROM rooms WHERE id = ?`, string(id))

	var (
		rec     domain.RoomRecord
		expired sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.Title, &rec.MasterID, &rec.Password,
		&rec.Timer.TimerLengthMinutes, &rec.Timer.ShortBreakMinutes, &rec.Timer.LongBreakMinutes, &rec.Timer.LongBreakInterval,
		&expired)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expired.Valid {
		rec.ExpiredAt = time.UnixMilli(expired.Int64)
	}

	rec.Blacklist, err = d.blacklist(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *Database) blacklist(ctx context.Context, id domain.RoomID) ([]domain.BlockedUser, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT user_id, user_name FROM room_blocks WHERE room_id = ? ORDER BY created_at ASC, user_id ASC",
		string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []domain.BlockedUser{}
	for rows.Next() {
		var b domain.BlockedUser
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (d *Database) FindUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	err := d.db.QueryRowContext(ctx,
		"SELECT id, name, profile_image FROM users WHERE id = ?", string(id),
	).Scan(&u.ID, &u.Name, &u.ProfileImage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *Database) BlockUser(ctx context.Context, roomID domain.RoomID, user domain.BlockedUser) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO room_blocks (room_id, user_id, user_name, created_at) VALUES (?, ?, ?, ?)",
		string(roomID), string(user.ID), user.Name, millis(time.Now()),
	)
	return err
}

func (d *Database) UnblockUser(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	_, err := d.db.ExecContext(ctx,
		"DELETE FROM room_blocks WHERE room_id = ? AND user_id = ?",
		string(roomID), string(userID),
	)
	return err
}

func (d *Database) UpdateTimerProperty(ctx context.Context, roomID domain.RoomID, prop domain.TimerProperty) error {
	res, err := d.db.ExecContext(ctx,
		"UPDATE rooms SET timer = ?, short_break = ?, long_break = ?, long_break_interval = ? WHERE id = ?",
		prop.TimerLengthMinutes, prop.ShortBreakMinutes, prop.LongBreakMinutes, prop.LongBreakInterval, string(roomID),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update timer of %s: %w", roomID, sql.ErrNoRows)
	}
	return nil
}

func (d *Database) CreateStudyHistory(ctx context.Context, roomID domain.RoomID, userID domain.UserID, at time.Time) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO study_history (room_id, user_id, join_at) VALUES (?, ?, ?)",
		string(roomID), string(userID), millis(at),
	)
	return err
}

// UpdateStudyHistoryExit closes the newest open entry of the user in the room.
func (d *Database) UpdateStudyHistoryExit(ctx context.Context, roomID domain.RoomID, userID domain.UserID, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE study_history SET exit_at = ?
		WHERE id = (
			SELECT id FROM study_history
			WHERE room_id = ? AND user_id = ? AND exit_at IS NULL
			ORDER BY id DESC LIMIT 1
		)`,
		millis(at), string(roomID), string(userID),
	)
	return err
}

func (d *Database) StartRoomIgnition(ctx context.Context, roomID domain.RoomID, at time.Time) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO room_ignitions (room_id, started_at) VALUES (?, ?)",
		string(roomID), millis(at),
	)
	return err
}

func (d *Database) FinishRoomIgnition(ctx context.Context, roomID domain.RoomID, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE room_ignitions SET finished_at = ?
		WHERE id = (
			SELECT id FROM room_ignitions
			WHERE room_id = ? AND finished_at IS NULL
			ORDER BY id DESC LIMIT 1
		)`,
		millis(at), string(roomID),
	)
	return err
}

// StudyEntry is one row of study_history.
type StudyEntry struct {
	UserID domain.UserID
	JoinAt time.Time
	ExitAt *time.Time
}

func (d *Database) StudyHistory(ctx context.Context, roomID domain.RoomID) ([]StudyEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT user_id, join_at, exit_at FROM study_history WHERE room_id = ? ORDER BY id ASC",
		string(roomID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudyEntry
	for rows.Next() {
		var (
			e    StudyEntry
			join int64
			exit sql.NullInt64
		)
		if err := rows.Scan(&e.UserID, &join, &exit); err != nil {
			return nil, err
		}
		e.JoinAt = time.UnixMilli(join)
		if exit.Valid {
			t := time.UnixMilli(exit.Int64)
			e.ExitAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// OpenIgnitions counts ignitions of the room that have not finished.
func (d *Database) OpenIgnitions(ctx context.Context, roomID domain.RoomID) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM room_ignitions WHERE room_id = ? AND finished_at IS NULL",
		string(roomID),
	).Scan(&n)
	return n, err
}
