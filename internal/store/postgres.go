package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samtjhia/SamsStudyTracker/internal/domain"
)

// PostgresRepo implements Repo on a pgx connection pool.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

var _ Repo = (*PostgresRepo)(nil)

// OpenPostgres connects to databaseURL, pings it and applies pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := runPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &PostgresRepo{pool: pool}, nil
}

func runPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migs, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return err
	}

	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return err
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	for _, m := range migs {
		if done[m.name] {
			continue
		}
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			// No arguments, so pgx sends the file over the simple protocol,
			// which accepts several statements.
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES ($1, $2)`, m.name, appliedAt())
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
	}
	return nil
}

// Close releases the pool.
func (r *PostgresRepo) Close() error {
	r.pool.Close()
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanPgUser(s rowScanner) (domain.User, error) {
	var u domain.User
	err := s.Scan(&u.ID, &u.Email, &u.Username, &u.DailyTargetMin, &u.DailyEmailTime, &u.EmailServicePaused, &u.CreatedAt)
	return u, err
}

func (r *PostgresRepo) CreateUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, username, daily_target_min, daily_email_time, email_service_paused, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		u.Email, u.Username, u.DailyTargetMin, u.DailyEmailTime, u.EmailServicePaused, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *PostgresRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanPgUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (r *PostgresRepo) ListScheduled(ctx context.Context, hhmm string) ([]domain.User, error) {
	return r.queryUsers(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE daily_email_time = $1
		  AND NOT email_service_paused
		ORDER BY id`,
		hhmm,
	)
}

func (r *PostgresRepo) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanPgUser(rows)
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

func (r *PostgresRepo) UpdateSettings(ctx context.Context, u *domain.User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET username = $1, daily_target_min = $2, daily_email_time = $3, email_service_paused = $4
		WHERE id = $5`,
		u.Username, u.DailyTargetMin, u.DailyEmailTime, u.EmailServicePaused, u.ID,
	)
	return expectTag(tag, err, "user", u.ID)
}

func (r *PostgresRepo) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return expectTag(tag, err, "user", id)
}

func (r *PostgresRepo) AddSession(ctx context.Context, s *domain.Session) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO study_sessions (user_id, start_ms, end_ms, duration_seconds, topic_text, is_private)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		s.UserID, s.Start, s.End, s.DurationSeconds, s.TopicText, s.IsPrivate,
	).Scan(&s.ID)
}

func (r *PostgresRepo) ListSessions(ctx context.Context, userID int64, from, to time.Time) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, start_ms, end_ms, duration_seconds, topic_text, is_private
		FROM study_sessions
		WHERE user_id = $1
		  AND start_ms >= $2
		  AND start_ms < $3
		ORDER BY start_ms ASC, id ASC`,
		userID, from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Start, &s.End, &s.DurationSeconds, &s.TopicText, &s.IsPrivate); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *PostgresRepo) AddRecipient(ctx context.Context, userID int64, email string) (*domain.Recipient, error) {
	rc := &domain.Recipient{UserID: userID, Email: email}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accountability_emails (user_id, email) VALUES ($1, $2) RETURNING id`,
		userID, email,
	).Scan(&rc.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, fmt.Errorf("recipient %s: %w", email, ErrDuplicate)
		}
		return nil, err
	}
	return rc, nil
}

func (r *PostgresRepo) RemoveRecipient(ctx context.Context, userID int64, email string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM accountability_emails WHERE user_id = $1 AND email = $2`,
		userID, email,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recipient %s: %w", email, ErrNotFound)
	}
	return nil
}

func (r *PostgresRepo) ListRecipients(ctx context.Context, userID int64) ([]domain.Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, email, last_sent_date
		FROM accountability_emails
		WHERE user_id = $1
		ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Recipient
	for rows.Next() {
		var rc domain.Recipient
		if err := rows.Scan(&rc.ID, &rc.UserID, &rc.Email, &rc.LastSentDate); err != nil {
			return nil, err
		}
		res = append(res, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *PostgresRepo) TryClaim(ctx context.Context, recipientID, userID int64, day string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accountability_emails
		SET last_sent_date = $1
		WHERE id = $2
		  AND user_id = $3
		  AND last_sent_date IS DISTINCT FROM $1`,
		day, recipientID, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepo) ResetClaim(ctx context.Context, recipientID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accountability_emails SET last_sent_date = NULL WHERE id = $1`,
		recipientID,
	)
	return expectTag(tag, err, "recipient", recipientID)
}

func expectTag(tag pgconn.CommandTag, err error, what string, id int64) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
