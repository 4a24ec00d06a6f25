package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leca/enhance-studio/internal/model"
	_ "modernc.org/sqlite"
)

// connPragmas are applied by the driver to every new connection.
const connPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// timeLayout is fixed-width so that stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteDB implements Database backed by SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) an SQLite database at dsn and runs migrations.
// For in-memory use pass "file::memory:?cache=shared". A dsn that already
// carries _pragma parameters is used as is.
func NewSQLiteDB(dsn string) (*SQLiteDB, error) {
	switch {
	case strings.Contains(dsn, "_pragma="):
	case strings.Contains(dsn, "?"):
		dsn += "&" + connPragmas
	default:
		dsn += "?" + connPragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer and sessions are saved from many goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) CreateSession(st *model.SessionState) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, state, request_state, enhancements, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		st.ID, string(stateJSON), st.Request.String(), st.Enhancements,
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetSession(sessionID string) (*model.SessionState, error) {
	var stateStr string
	err := s.db.QueryRow(`SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&stateStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	st := &model.SessionState{}
	if err := json.Unmarshal([]byte(stateStr), st); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return st, nil
}

func (s *SQLiteDB) SaveSession(st *model.SessionState) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE sessions SET state = ?, request_state = ?, enhancements = ?, updated_at = ?
		WHERE id = ?`,
		string(stateJSON), st.Request.String(), st.Enhancements, formatTime(st.UpdatedAt),
		st.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return checkRowsAffected(res, st.ID)
}

func (s *SQLiteDB) DeleteSession(sessionID string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return checkRowsAffected(res, sessionID)
}

func (s *SQLiteDB) CountSessions() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

func (s *SQLiteDB) ListIdleSessions(before time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM sessions WHERE updated_at < ?
		ORDER BY updated_at ASC`,
		formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *SQLiteDB) ListSessionsInState(state model.RequestState) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM sessions WHERE request_state = ?
		ORDER BY updated_at ASC`,
		state.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions in state %s: %w", state, err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func checkRowsAffected(res sql.Result, sessionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}
