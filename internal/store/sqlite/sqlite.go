package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/campusride/ridechat-server/internal/core"
	"github.com/campusride/ridechat-server/internal/store"
)

// Schema creates the chat tables. The rides tables are owned by the
// ride-posting service; they are included so a standalone deployment and the
// tests have something to validate rooms against.
const Schema = `
CREATE TABLE IF NOT EXISTS rides (
	id          TEXT PRIMARY KEY,
	driver_id   TEXT NOT NULL,
	origin      TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	depart_at   DATETIME,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ride_passengers (
	ride_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (ride_id, user_id),
	FOREIGN KEY (ride_id) REFERENCES rides(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ride_id     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	text        TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_ride ON messages(ride_id, id);

CREATE TABLE IF NOT EXISTS message_reads (
	message_id INTEGER NOT NULL,
	user_id    TEXT NOT NULL,
	read_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (message_id, user_id),
	FOREIGN KEY (message_id) REFERENCES messages(id)
);

CREATE INDEX IF NOT EXISTS idx_message_reads_user ON message_reads(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and ensures the schema exists.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema and seed data without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message, assigning its id and server timestamp.
func (s *SQLiteStore) SaveMessage(ctx context.Context, m *core.Message) error {
	query := `
		INSERT INTO messages (ride_id, sender_id, sender_name, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, m.Ride, m.SenderID, m.SenderName, m.Text, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	m.ID = id
	m.CreatedAt = now
	return nil
}

// ListMessages returns one page of room history, oldest to newest. The
// autoincrement id is the room order; created_at alone could tie.
func (s *SQLiteStore) ListMessages(ctx context.Context, rideID string, page, limit int, before *time.Time) (*store.HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	countQuery := `SELECT COUNT(*) FROM messages WHERE ride_id = ?`
	countArgs := []any{rideID}
	if before != nil {
		countQuery += ` AND created_at < ?`
		countArgs = append(countArgs, before.UTC())
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	query := `
		SELECT m.id, m.ride_id, m.sender_id, m.sender_name, m.text, m.created_at,
		       COALESCE(GROUP_CONCAT(r.user_id), '')
		FROM messages m
		LEFT JOIN message_reads r ON r.message_id = m.id
		WHERE m.ride_id = ?
	`
	args := []any{rideID}
	if before != nil {
		query += ` AND m.created_at < ?`
		args = append(args, before.UTC())
	}
	query += `
		GROUP BY m.id
		ORDER BY m.id ASC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*core.Message, 0, limit)
	for rows.Next() {
		var m core.Message
		var readers string
		if err := rows.Scan(&m.ID, &m.Ride, &m.SenderID, &m.SenderName, &m.Text, &m.CreatedAt, &readers); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if readers != "" {
			m.ReadBy = strings.Split(readers, ",")
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return &store.HistoryPage{
		Messages: messages,
		Total:    total,
		HasMore:  page*limit < total,
	}, nil
}

// MarkRead inserts read rows for every message up to the cursor. INSERT OR
// IGNORE makes repeats and backward cursors no-ops.
func (s *SQLiteStore) MarkRead(ctx context.Context, rideID, userID string, cursor store.ReadCursor) error {
	switch {
	case cursor.LastMessageID != nil:
		query := `
			INSERT OR IGNORE INTO message_reads (message_id, user_id)
			SELECT id, ? FROM messages WHERE ride_id = ? AND id <= ?
		`
		if _, err := s.db.ExecContext(ctx, query, userID, rideID, *cursor.LastMessageID); err != nil {
			return fmt.Errorf("mark read by id: %w", err)
		}
	case cursor.LastSeenAt != nil:
		query := `
			INSERT OR IGNORE INTO message_reads (message_id, user_id)
			SELECT id, ? FROM messages WHERE ride_id = ? AND created_at <= ?
		`
		if _, err := s.db.ExecContext(ctx, query, userID, rideID, cursor.LastSeenAt.UTC()); err != nil {
			return fmt.Errorf("mark read by time: %w", err)
		}
	default:
		return fmt.Errorf("mark read: empty cursor")
	}
	return nil
}

// ==== RideDirectory implementation ====

// RideExists reports whether the ride id is known.
func (s *SQLiteStore) RideExists(ctx context.Context, rideID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM rides WHERE id = ?)`
	if err := s.db.QueryRowContext(ctx, query, rideID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query ride: %w", err)
	}
	return exists, nil
}

// IsParticipant reports whether the user is the ride's driver or an accepted
// passenger.
func (s *SQLiteStore) IsParticipant(ctx context.Context, rideID, userID string) (bool, error) {
	var isParticipant bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM rides WHERE id = ? AND driver_id = ?
			UNION
			SELECT 1 FROM ride_passengers WHERE ride_id = ? AND user_id = ?
		)
	`
	if err := s.db.QueryRowContext(ctx, query, rideID, userID, rideID, userID).Scan(&isParticipant); err != nil {
		return false, fmt.Errorf("query ride participant: %w", err)
	}
	return isParticipant, nil
}
