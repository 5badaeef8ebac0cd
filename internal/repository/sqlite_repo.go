package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT,
	profile_picture TEXT
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	sender_id TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id, created_at DESC);
`

// created_at is stored as unix nanoseconds so ordering is numeric.
const sqliteLatest = `
SELECT r.counterpart, u.name, u.profile_picture, r.id, r.content, r.created_at
FROM (
	SELECT id, content, created_at,
		CASE WHEN sender_id = :user THEN recipient_id ELSE sender_id END AS counterpart,
		ROW_NUMBER() OVER (
			PARTITION BY CASE WHEN sender_id = :user THEN recipient_id ELSE sender_id END
			ORDER BY created_at DESC, id DESC
		) AS rn
	FROM messages
	WHERE sender_id = :user OR recipient_id = :user
) r
LEFT JOIN users u ON u.id = r.counterpart
WHERE r.rn = 1
ORDER BY r.created_at DESC, r.counterpart ASC`

type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

func OpenSQLite(ctx context.Context, path string, timeout time.Duration) (*SQLiteStore, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, unavailable("sqlite open", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, unavailable("sqlite migrate", err)
	}
	return &SQLiteStore{db: db, timeout: timeout}, nil
}

func (r *SQLiteStore) LatestPerCounterpart(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, sqliteLatest, sql.Named("user", userID))
	if err != nil {
		return nil, unavailable("sqlite latest", err)
	}
	defer rows.Close()

	out := []domain.ConversationSummary{}
	for rows.Next() {
		var (
			s            domain.ConversationSummary
			name, avatar sql.NullString
			createdAt    int64
		)
		if err := rows.Scan(&s.CounterpartID, &name, &avatar, &s.LastMessageID, &s.LastMessageContent, &createdAt); err != nil {
			return nil, malformed("sqlite scan", err)
		}
		s.LastMessageAt = time.Unix(0, createdAt).UTC()
		s.CounterpartName = nullable(name)
		s.CounterpartAvatar = nullable(avatar)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("sqlite rows", err)
	}
	if err := checkSummaries("sqlite latest", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteStore) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, profile_picture) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, profile_picture = excluded.profile_picture`,
		u.ID, u.Name, u.ProfilePicture)
	if err != nil {
		return unavailable("sqlite upsert user", err)
	}
	return nil
}

func (r *SQLiteStore) SaveMessage(ctx context.Context, m domain.Message) error {
	m = m.Normalized()
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, sender_id, recipient_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.RecipientID, m.Content, m.CreatedAt.UnixNano())
	if err != nil {
		return unavailable("sqlite save message", err)
	}
	return nil
}

func (r *SQLiteStore) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("sqlite ping", err)
	}
	return nil
}

func (r *SQLiteStore) Close(context.Context) error {
	return r.db.Close()
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
