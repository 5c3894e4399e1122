package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

const schemaLockID = int64(2026031001)

// SessionRepository stores sessions and their ordered chat history.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	last_department_info TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_messages (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, position)
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (id, last_department_info, created_at, updated_at)
VALUES ($1, $2, $3, $4)
`, session.ID, session.LastDepartmentInfo, session.CreatedAt, session.UpdatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if err := insertMessages(ctx, tx, session); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	session := &domain.Session{}
	row := r.db.QueryRowContext(ctx, `
SELECT id, last_department_info, created_at, updated_at
FROM sessions
WHERE id = $1
`, id)
	if err := row.Scan(&session.ID, &session.LastDepartmentInfo, &session.CreatedAt, &session.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", err)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT role, content, created_at
FROM session_messages
WHERE session_id = $1
ORDER BY position ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		session.ChatHistory = append(session.ChatHistory, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session messages: %w", err)
	}
	return session, nil
}

// Save rewrites the history in one transaction; Reset can shrink it.
func (r *SessionRepository) Save(ctx context.Context, session *domain.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE sessions
SET last_department_info = $2, updated_at = $3
WHERE id = $1
`, session.ID, session.LastDepartmentInfo, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSessionNotFound, "save session", errors.New(session.ID))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = $1`, session.ID); err != nil {
		return fmt.Errorf("clear session messages: %w", err)
	}
	if err := insertMessages(ctx, tx, session); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save session tx: %w", err)
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, session *domain.Session) error {
	for i, msg := range session.ChatHistory {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO session_messages (session_id, position, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)
`, session.ID, i, msg.Role, msg.Content, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert session message %d: %w", i, err)
		}
	}
	return nil
}
