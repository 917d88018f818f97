package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/linkerlin/tgmonitor/internal/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a *sql.DB holding the chats and messages observed by the
// Telegram update pump. It is a working buffer between the pump and the
// scan cycle, not an archive.
type DB struct {
	db *sql.DB
}

// Record is a message together with its author's display fields.
type Record struct {
	Message types.Message
	Sender  types.Sender
}

const schema = `
CREATE TABLE IF NOT EXISTS chats (
  id INTEGER PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  is_group INTEGER NOT NULL DEFAULT 0,
  is_channel INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
  chat_id INTEGER NOT NULL,
  id INTEGER NOT NULL,
  sender_id INTEGER NOT NULL DEFAULT 0,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  username TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL DEFAULT '',
  timestamp INTEGER NOT NULL,
  PRIMARY KEY (chat_id, id)
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_id, timestamp);
`

// Open opens (or creates) the SQLite database at the given path. ":memory:"
// keeps everything in process memory.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec(schema); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: sqldb}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveChat upserts a chat. Title and kind follow the latest observation.
func (d *DB) SaveChat(ctx context.Context, c types.Container) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO chats (id, title, is_group, is_channel, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  title = excluded.title,
		  is_group = excluded.is_group,
		  is_channel = excluded.is_channel,
		  updated_at = excluded.updated_at`,
		c.ID, c.Title, boolInt(c.IsGroup), boolInt(c.IsChannel), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

// SaveMessage inserts a message, replacing an earlier copy with the same id
// (edits arrive with the same id).
func (d *DB) SaveMessage(ctx context.Context, r Record) error {
	m := r.Message
	_, err := d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages (chat_id, id, sender_id, first_name, last_name, username, body, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ContainerID, m.ID, m.SenderID, r.Sender.FirstName, r.Sender.LastName, r.Sender.Username,
		m.Body, m.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ListWatchedChats returns every known group or channel.
func (d *DB) ListWatchedChats(ctx context.Context) ([]types.Container, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, title, is_group, is_channel
		FROM chats
		WHERE is_group = 1 OR is_channel = 1
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []types.Container
	for rows.Next() {
		var c types.Container
		var isGroup, isChannel int
		if err := rows.Scan(&c.ID, &c.Title, &isGroup, &isChannel); err != nil {
			return nil, err
		}
		c.IsGroup = isGroup == 1
		c.IsChannel = isChannel == 1
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetRecentMessages returns the limit most recent messages of a chat in
// chronological order.
func (d *DB) GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]types.Message, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT chat_id, id, sender_id, body, timestamp
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		var m types.Message
		var ts int64
		if err := rows.Scan(&m.ContainerID, &m.ID, &m.SenderID, &m.Body, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetSender returns the author fields recorded with a message.
func (d *DB) GetSender(ctx context.Context, chatID, messageID int64) (types.Sender, error) {
	var s types.Sender
	err := d.db.QueryRowContext(ctx, `
		SELECT first_name, last_name, username FROM messages WHERE chat_id = ? AND id = ?`,
		chatID, messageID,
	).Scan(&s.FirstName, &s.LastName, &s.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Sender{}, fmt.Errorf("sender of message %d in chat %d: %w", messageID, chatID, ErrNotFound)
	}
	if err != nil {
		return types.Sender{}, fmt.Errorf("query sender: %w", err)
	}
	return s, nil
}

// PruneMessages deletes messages at or before the cutoff and returns how
// many were removed.
func (d *DB) PruneMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp <= ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
