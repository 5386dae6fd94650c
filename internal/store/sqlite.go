package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Pure Go driver; importing it registers "sqlite".
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/samtjhia/SamsStudyTracker/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single connection: SQLite is a single-writer engine and the PRAGMAs
	// below are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// isUniqueViolation matches both the primary and the extended constraint code.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

// --- users ---

const userColumns = `id, email, username, daily_target_min, daily_email_time, email_service_paused, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(s rowScanner) (domain.User, error) {
	var (
		u         domain.User
		pausedInt int
		createdAt int64
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Username, &u.DailyTargetMin, &u.DailyEmailTime, &pausedInt, &createdAt); err != nil {
		return domain.User{}, err
	}
	u.EmailServicePaused = pausedInt != 0
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}

// CreateUser inserts a user and fills in ID and CreatedAt.
func (r *SQLiteRepo) CreateUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, username, daily_target_min, daily_email_time, email_service_paused, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Email, u.Username, u.DailyTargetMin, u.DailyEmailTime, boolToInt(u.EmailServicePaused), u.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// GetUser returns a user by id or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanSQLiteUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users ordered by id.
func (r *SQLiteRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

// ListScheduled returns non-paused users whose send time equals hhmm.
func (r *SQLiteRepo) ListScheduled(ctx context.Context, hhmm string) ([]domain.User, error) {
	return r.queryUsers(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE daily_email_time = ?
		  AND email_service_paused = 0
		ORDER BY id`,
		hhmm,
	)
}

func (r *SQLiteRepo) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateSettings writes the user-editable settings columns.
func (r *SQLiteRepo) UpdateSettings(ctx context.Context, u *domain.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, daily_target_min = ?, daily_email_time = ?, email_service_paused = ?
		WHERE id = ?`,
		u.Username, u.DailyTargetMin, u.DailyEmailTime, boolToInt(u.EmailServicePaused), u.ID,
	)
	return expectRow(res, err, "user", u.ID)
}

// DeleteUser removes a user; sessions and recipients cascade.
func (r *SQLiteRepo) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return expectRow(res, err, "user", id)
}

// --- sessions ---

// AddSession inserts a finished session and fills in its ID.
func (r *SQLiteRepo) AddSession(ctx context.Context, s *domain.Session) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO study_sessions (user_id, start_ms, end_ms, duration_seconds, topic_text, is_private)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.UserID, s.Start, s.End, s.DurationSeconds, s.TopicText, boolToInt(s.IsPrivate),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

// ListSessions returns the user's sessions starting in [from, to), oldest first.
func (r *SQLiteRepo) ListSessions(ctx context.Context, userID int64, from, to time.Time) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, start_ms, end_ms, duration_seconds, topic_text, is_private
		FROM study_sessions
		WHERE user_id = ?
		  AND start_ms >= ?
		  AND start_ms < ?
		ORDER BY start_ms ASC, id ASC`,
		userID, from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Session
	for rows.Next() {
		var (
			s          domain.Session
			privateInt int
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.Start, &s.End, &s.DurationSeconds, &s.TopicText, &privateInt); err != nil {
			return nil, err
		}
		s.IsPrivate = privateInt != 0
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// --- recipients ---

// AddRecipient registers an accountability address for a user.
func (r *SQLiteRepo) AddRecipient(ctx context.Context, userID int64, email string) (*domain.Recipient, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accountability_emails (user_id, email) VALUES (?, ?)`,
		userID, email,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("recipient %s: %w", email, ErrDuplicate)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.Recipient{ID: id, UserID: userID, Email: email}, nil
}

// RemoveRecipient deletes a user's recipient by address.
func (r *SQLiteRepo) RemoveRecipient(ctx context.Context, userID int64, email string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM accountability_emails WHERE user_id = ? AND email = ?`,
		userID, email,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("recipient %s: %w", email, ErrNotFound)
	}
	return nil
}

// ListRecipients returns a user's recipients in insertion order.
func (r *SQLiteRepo) ListRecipients(ctx context.Context, userID int64) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, email, last_sent_date
		FROM accountability_emails
		WHERE user_id = ?
		ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Recipient
	for rows.Next() {
		var (
			rc     domain.Recipient
			lastNS sql.NullString
		)
		if err := rows.Scan(&rc.ID, &rc.UserID, &rc.Email, &lastNS); err != nil {
			return nil, err
		}
		rc.LastSentDate = fromNullString(lastNS)
		res = append(res, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// TryClaim marks the recipient as sent for day in a single conditional UPDATE.
func (r *SQLiteRepo) TryClaim(ctx context.Context, recipientID, userID int64, day string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accountability_emails
		SET last_sent_date = ?
		WHERE id = ?
		  AND user_id = ?
		  AND (last_sent_date IS NULL OR last_sent_date <> ?)`,
		day, recipientID, userID, day,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ResetClaim clears last_sent_date so the next eligible run sends again.
func (r *SQLiteRepo) ResetClaim(ctx context.Context, recipientID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accountability_emails SET last_sent_date = ? WHERE id = ?`,
		toNullString(nil), recipientID,
	)
	return expectRow(res, err, "recipient", recipientID)
}

// expectRow maps a zero-row write to ErrNotFound.
func expectRow(res sql.Result, err error, what string, id int64) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
