// Package admin holds the operator actions shared by the HTTP API and the
// Telegram bot.
package admin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/domain"
)

// Store is the storage the admin actions need.
type Store interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListRecipients(ctx context.Context, userID int64) ([]domain.Recipient, error)
	ResetClaim(ctx context.Context, recipientID int64) error
}

// Dispatcher starts a report run in the background. scheduler.Scheduler
// implements it.
type Dispatcher interface {
	Dispatch(userID int64)
}

// UserOverview is one row of the admin user list.
type UserOverview struct {
	User       domain.User
	Recipients []domain.Recipient
}

type Service struct {
	store      Store
	dispatcher Dispatcher
	log        *zap.Logger
}

func New(store Store, dispatcher Dispatcher, log *zap.Logger) *Service {
	return &Service{store: store, dispatcher: dispatcher, log: log}
}

// Overview lists every user with their recipients and last-sent dates.
func (s *Service) Overview(ctx context.Context) ([]UserOverview, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]UserOverview, 0, len(users))
	for _, u := range users {
		rcs, err := s.store.ListRecipients(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("list recipients of user %d: %w", u.ID, err)
		}
		out = append(out, UserOverview{User: u, Recipients: rcs})
	}
	return out, nil
}

// Trigger starts a report run for userID and returns an acknowledgement
// without waiting for it. The outcome only shows up in the logs.
func (s *Service) Trigger(ctx context.Context, userID int64) (string, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	s.dispatcher.Dispatch(u.ID)
	s.log.Info("admin triggered report", zap.Int64("user_id", u.ID))
	return fmt.Sprintf("Report generation triggered for %s. Check logs/email.", u.DisplayName()), nil
}

// ResetRecipient clears a recipient's last-sent date so the next run sends again.
func (s *Service) ResetRecipient(ctx context.Context, recipientID int64) error {
	if err := s.store.ResetClaim(ctx, recipientID); err != nil {
		return err
	}
	s.log.Info("admin reset recipient", zap.Int64("recipient_id", recipientID))
	return nil
}

// DeleteUser removes a user together with their sessions and recipients.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.log.Info("admin deleted user", zap.Int64("user_id", userID))
	return nil
}
