package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

type Database struct {
	db     *sql.DB
	logger *zap.Logger
}

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is the last saved stroke log of a room.
type Snapshot struct {
	RoomID    string
	Strokes   []protocol.Stroke
	Version   uint64
	UpdatedAt time.Time
}

type Checkpoint struct {
	ID          int64             `json:"id"`
	RoomID      string            `json:"room_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Strokes     []protocol.Stroke `json:"strokes,omitempty"`
	StrokeCount int               `json:"stroke_count"`
	PointCount  int               `json:"point_count"`
	ContentHash string            `json:"content_hash"`
	CreatedBy   string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	IsAuto      bool              `json:"is_auto"` // Auto-saved vs manual
}

type Stats struct {
	RoomCount       int `json:"room_count"`
	SnapshotCount   int `json:"snapshot_count"`
	CheckpointCount int `json:"checkpoint_count"`
}

func New(dbPath string, logger *zap.Logger) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; avoids SQLITE_BUSY between pool connections
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database initialized", zap.String("path", dbPath))
	return &Database{db: db, logger: logger.Named("db")}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS room_snapshots (
		room_id TEXT PRIMARY KEY,
		strokes TEXT NOT NULL,
		version INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS room_checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		strokes TEXT NOT NULL,
		stroke_count INTEGER NOT NULL DEFAULT 0,
		point_count INTEGER NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL,
		created_by TEXT DEFAULT '',
		is_auto BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_room_checkpoints_room_id ON room_checkpoints(room_id, id DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// EncodeStrokes serializes a stroke log and returns it with its content hash.
func EncodeStrokes(strokes []protocol.Stroke) (string, string, error) {
	if strokes == nil {
		strokes = []protocol.Stroke{}
	}
	data, err := json.Marshal(strokes)
	if err != nil {
		return "", "", fmt.Errorf("encode strokes: %w", err)
	}
	sum := sha256.Sum256(data)
	return string(data), hex.EncodeToString(sum[:]), nil
}

func decodeStrokes(content string) ([]protocol.Stroke, error) {
	var strokes []protocol.Stroke
	if err := json.Unmarshal([]byte(content), &strokes); err != nil {
		return nil, fmt.Errorf("decode strokes: %w", err)
	}
	return strokes, nil
}

func countPoints(strokes []protocol.Stroke) int {
	n := 0
	for _, s := range strokes {
		n += len(s.Points)
	}
	return n
}

// Room operations

func (d *Database) CreateRoom(ctx context.Context, id, name string) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO rooms (id, name) VALUES (?, ?)",
		id, name,
	)
	return err
}

func (d *Database) GetRoom(ctx context.Context, id string) (*Room, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM rooms WHERE id = ?",
		id,
	)

	var room Room
	err := row.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (d *Database) ListRooms(ctx context.Context, limit, offset int) ([]Room, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, name, created_at, updated_at FROM rooms ORDER BY updated_at DESC, id LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// DeleteRoom removes a room with its snapshot and checkpoints.
func (d *Database) DeleteRoom(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM room_checkpoints WHERE room_id = ?",
		"DELETE FROM room_snapshots WHERE room_id = ?",
		"DELETE FROM rooms WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Snapshot operations

// SaveSnapshot stores the room's current stroke log, replacing the previous one.
func (d *Database) SaveSnapshot(ctx context.Context, roomID string, strokes []protocol.Stroke, version uint64) error {
	content, _, err := EncodeStrokes(strokes)
	if err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO rooms (id) VALUES (?)", roomID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_snapshots (room_id, strokes, version, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(room_id) DO UPDATE SET
			strokes = excluded.strokes,
			version = excluded.version,
			updated_at = CURRENT_TIMESTAMP
	`, roomID, content, int64(version)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE rooms SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", roomID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSnapshot returns nil when the room has never been saved.
func (d *Database) GetSnapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	var content string
	var version int64
	snap := Snapshot{RoomID: roomID}
	err := d.db.QueryRowContext(ctx,
		"SELECT strokes, version, updated_at FROM room_snapshots WHERE room_id = ?",
		roomID,
	).Scan(&content, &version, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if snap.Strokes, err = decodeStrokes(content); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", roomID, err)
	}
	snap.Version = uint64(version)
	return &snap, nil
}

// LoadStrokes seeds a room from its saved snapshot.
func (d *Database) LoadStrokes(ctx context.Context, roomID string) ([]protocol.Stroke, error) {
	snap, err := d.GetSnapshot(ctx, roomID)
	if err != nil || snap == nil {
		return nil, err
	}
	return snap.Strokes, nil
}

// Checkpoint operations

// CreateCheckpoint saves a named copy of a stroke log
func (d *Database) CreateCheckpoint(ctx context.Context, roomID, name, description, createdBy string, strokes []protocol.Stroke, isAuto bool) (*Checkpoint, error) {
	content, hash, err := EncodeStrokes(strokes)
	if err != nil {
		return nil, err
	}
	if err := d.CreateRoom(ctx, roomID, ""); err != nil {
		return nil, err
	}

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO room_checkpoints (room_id, name, description, strokes, stroke_count, point_count, content_hash, created_by, is_auto)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, roomID, name, description, content, len(strokes), countPoints(strokes), hash, createdBy, isAuto)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return d.GetCheckpoint(ctx, id)
}

const checkpointColumns = "id, room_id, name, description, stroke_count, point_count, content_hash, created_by, is_auto, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner, extra ...any) (*Checkpoint, error) {
	var c Checkpoint
	dest := append([]any{&c.ID, &c.RoomID, &c.Name, &c.Description, &c.StrokeCount, &c.PointCount,
		&c.ContentHash, &c.CreatedBy, &c.IsAuto, &c.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCheckpoint retrieves a checkpoint with its strokes
func (d *Database) GetCheckpoint(ctx context.Context, id int64) (*Checkpoint, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT "+checkpointColumns+", strokes FROM room_checkpoints WHERE id = ?", id)

	var content string
	c, err := scanCheckpoint(row, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.Strokes, err = decodeStrokes(content); err != nil {
		return nil, fmt.Errorf("checkpoint %d: %w", id, err)
	}
	return c, nil
}

// ListCheckpoints returns checkpoint summaries for a room, newest first
func (d *Database) ListCheckpoints(ctx context.Context, roomID string, limit, offset int) ([]Checkpoint, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+checkpointColumns+`
		FROM room_checkpoints
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checkpoints := []Checkpoint{}
	for rows.Next() {
		c, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *c)
	}
	return checkpoints, rows.Err()
}

func (d *Database) CountCheckpoints(ctx context.Context, roomID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM room_checkpoints WHERE room_id = ?", roomID).Scan(&count)
	return count, err
}

// GetLatestCheckpoint returns the most recent checkpoint summary for a room
func (d *Database) GetLatestCheckpoint(ctx context.Context, roomID string) (*Checkpoint, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+checkpointColumns+`
		FROM room_checkpoints
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, roomID)

	c, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// DeleteCheckpoint reports whether a checkpoint was removed
func (d *Database) DeleteCheckpoint(ctx context.Context, id int64) (bool, error) {
	result, err := d.db.ExecContext(ctx, "DELETE FROM room_checkpoints WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// DeleteOldAutoCheckpoints removes old auto-saved checkpoints, keeping the most recent N
func (d *Database) DeleteOldAutoCheckpoints(ctx context.Context, roomID string, keepCount int) error {
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM room_checkpoints
		WHERE room_id = ? AND is_auto = TRUE AND id NOT IN (
			SELECT id FROM room_checkpoints
			WHERE room_id = ? AND is_auto = TRUE
			ORDER BY id DESC
			LIMIT ?
		)
	`, roomID, roomID, keepCount)
	return err
}

// Stats

func (d *Database) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	queries := []struct {
		q    string
		dest *int
	}{
		{"SELECT COUNT(*) FROM rooms", &stats.RoomCount},
		{"SELECT COUNT(*) FROM room_snapshots", &stats.SnapshotCount},
		{"SELECT COUNT(*) FROM room_checkpoints", &stats.CheckpointCount},
	}
	for _, q := range queries {
		if err := d.db.QueryRowContext(ctx, q.q).Scan(q.dest); err != nil {
			return Stats{}, err
		}
	}
	return stats, nil
}
