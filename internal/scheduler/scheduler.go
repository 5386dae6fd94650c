package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/accountability"
	"github.com/samtjhia/SamsStudyTracker/internal/domain"
)

// Users is the part of the store the scheduler reads.
type Users interface {
	ListScheduled(ctx context.Context, hhmm string) ([]domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// Runner runs the daily report for one user. accountability.Orchestrator
// implements it.
type Runner interface {
	RunForUser(ctx context.Context, u domain.User) (accountability.Outcome, error)
}

// Scheduler fires report runs for users whose send time matches the clock,
// once per wall-clock minute.
type Scheduler struct {
	users  Users
	runner Runner
	log    *zap.Logger
	loc    *time.Location
	now    func() time.Time

	wg sync.WaitGroup
}

// New creates a Scheduler. Send times are compared in loc.
func New(users Users, runner Runner, log *zap.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		users:  users,
		runner: runner,
		log:    log,
		loc:    loc,
		now:    time.Now,
	}
}

// Run waits for each minute boundary and starts a tick for it until ctx is
// canceled. Ticks run on their own goroutines so a slow one never delays the
// next minute; started runs finish even after ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", zap.String("tz", s.loc.String()))
	for {
		now := s.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler stopping")
			return
		case <-timer.C:
			s.wg.Add(1)
			go func(at time.Time) {
				defer s.wg.Done()
				s.Tick(context.WithoutCancel(ctx), at)
			}(next)
		}
	}
}

// Tick runs the report for every active user whose send time equals the
// minute of now. A failing user is logged and the tick moves on.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	hhmm := domain.ClockKey(now.In(s.loc))

	users, err := s.users.ListScheduled(ctx, hhmm)
	if err != nil {
		s.log.Error("ListScheduled failed", zap.Error(err), zap.String("time", hhmm))
		return
	}
	if len(users) == 0 {
		return
	}
	s.log.Info("tick", zap.String("time", hhmm), zap.Int("users", len(users)))

	for _, u := range users {
		if _, err := s.runner.RunForUser(ctx, u); err != nil {
			s.log.Error("report run failed", zap.Error(err), zap.Int64("user_id", u.ID))
		}
	}
}

// TriggerNow runs the report for one user immediately, ignoring the send time
// and the paused flag. Recipients already sent today are still skipped.
func (s *Scheduler) TriggerNow(ctx context.Context, userID int64) error {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	s.log.Info("manual report trigger", zap.Int64("user_id", userID))
	if _, err := s.runner.RunForUser(ctx, *u); err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	return nil
}

// Dispatch starts TriggerNow in the background and returns at once.
func (s *Scheduler) Dispatch(userID int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.TriggerNow(context.Background(), userID); err != nil {
			s.log.Error("manual report trigger failed", zap.Error(err), zap.Int64("user_id", userID))
		}
	}()
}

// Wait blocks until all started ticks and dispatched triggers have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
