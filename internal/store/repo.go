package store

import (
	"context"
	"errors"
	"time"

	"github.com/samtjhia/SamsStudyTracker/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// UserRepo covers the user rows the settings flow owns.
type UserRepo interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	// ListScheduled returns users whose send time equals hhmm and whose
	// email service is not paused, ordered by id.
	ListScheduled(ctx context.Context, hhmm string) ([]domain.User, error)
	UpdateSettings(ctx context.Context, u *domain.User) error
	DeleteUser(ctx context.Context, id int64) error
}

// SessionRepo stores finished study sessions.
type SessionRepo interface {
	AddSession(ctx context.Context, s *domain.Session) error
	// ListSessions returns sessions starting in [from, to), ordered by start.
	ListSessions(ctx context.Context, userID int64, from, to time.Time) ([]domain.Session, error)
}

// RecipientLedger tracks accountability recipients and their last-sent day.
type RecipientLedger interface {
	AddRecipient(ctx context.Context, userID int64, email string) (*domain.Recipient, error)
	RemoveRecipient(ctx context.Context, userID int64, email string) error
	ListRecipients(ctx context.Context, userID int64) ([]domain.Recipient, error)
	// TryClaim sets last_sent_date = day in one conditional write, only if the
	// row belongs to userID and was not already claimed for day. It reports
	// whether the row changed.
	TryClaim(ctx context.Context, recipientID, userID int64, day string) (bool, error)
	// ResetClaim clears last_sent_date unconditionally.
	ResetClaim(ctx context.Context, recipientID int64) error
}

// Repo is the full storage surface.
type Repo interface {
	UserRepo
	SessionRepo
	RecipientLedger
	Close() error
}
