// Package accountability decides whether a user's daily report is due and
// delivers it at most once per recipient per calendar day.
package accountability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/domain"
	"github.com/samtjhia/SamsStudyTracker/internal/mailer"
	"github.com/samtjhia/SamsStudyTracker/internal/report"
)

// DefaultSendGap is the pause between two deliveries of the same run.
const DefaultSendGap = time.Second

// Store is the storage the orchestrator reads and claims through.
type Store interface {
	ListSessions(ctx context.Context, userID int64, from, to time.Time) ([]domain.Session, error)
	ListRecipients(ctx context.Context, userID int64) ([]domain.Recipient, error)
	TryClaim(ctx context.Context, recipientID, userID int64, day string) (bool, error)
}

// Renderer builds a report body. *report.Builder implements it.
type Renderer interface {
	Build(in report.Input) (*report.Report, error)
}

// Alerter is told about deliveries that were claimed but failed.
type Alerter interface {
	Alert(ctx context.Context, text string)
}

// Skip reasons reported in Outcome.Skipped.
const (
	SkipNoSessions   = "no_sessions"
	SkipNoRecipients = "no_recipients"
)

// Outcome summarises one orchestration run.
type Outcome struct {
	RunID       string
	Day         string
	Skipped     string // non-empty when no report was built
	Recipients  int
	AlreadySent int // claims lost: sent earlier today or by a concurrent run
	Sent        int
	Failed      int
}

// Orchestrator runs the daily report for one user at a time. Runs for the
// same user may overlap; the ledger claim keeps delivery at most once.
type Orchestrator struct {
	store    Store
	renderer Renderer
	gateway  mailer.Gateway
	log      *zap.Logger
	loc      *time.Location
	now      func() time.Time
	sleep    func(time.Duration)
	gap      time.Duration
	alerter  Alerter
}

type Option func(*Orchestrator)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSendGap sets the pause between deliveries within one run.
func WithSendGap(d time.Duration) Option {
	return func(o *Orchestrator) { o.gap = d }
}

// WithAlerter registers a receiver for failed-delivery notices.
func WithAlerter(a Alerter) Option {
	return func(o *Orchestrator) { o.alerter = a }
}

// New creates an Orchestrator. Day boundaries are computed in loc.
func New(store Store, renderer Renderer, gateway mailer.Gateway, log *zap.Logger, loc *time.Location, opts ...Option) *Orchestrator {
	if loc == nil {
		loc = time.Local
	}
	o := &Orchestrator{
		store:    store,
		renderer: renderer,
		gateway:  gateway,
		log:      log,
		loc:      loc,
		now:      time.Now,
		sleep:    time.Sleep,
		gap:      DefaultSendGap,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunForUser builds today's report for u and delivers it to every recipient
// whose claim for today succeeds. A claimed delivery that fails stays claimed
// until an admin resets the recipient. Returned errors are data-access errors;
// they end this user's run only.
func (o *Orchestrator) RunForUser(ctx context.Context, u domain.User) (Outcome, error) {
	now := o.now().In(o.loc)
	out := Outcome{RunID: uuid.NewString(), Day: domain.DayKey(now)}
	log := o.log.With(
		zap.String("run_id", out.RunID),
		zap.Int64("user_id", u.ID),
		zap.String("day", out.Day),
	)

	from, to := domain.DayWindow(now)
	sessions, err := o.store.ListSessions(ctx, u.ID, from, to)
	if err != nil {
		return out, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		log.Info("no sessions today, skipping report")
		out.Skipped = SkipNoSessions
		return out, nil
	}

	total := domain.TotalSeconds(sessions)
	recipients, err := o.store.ListRecipients(ctx, u.ID)
	if err != nil {
		return out, fmt.Errorf("list recipients: %w", err)
	}
	if len(recipients) == 0 {
		log.Info("sessions but no accountability recipients, skipping report")
		out.Skipped = SkipNoRecipients
		return out, nil
	}
	out.Recipients = len(recipients)

	name := u.DisplayName()
	rep, err := o.renderer.Build(report.Input{
		DisplayName:   name,
		DateLabel:     domain.DateLabel(now),
		TotalSeconds:  total,
		TargetMinutes: u.DailyTargetMin,
		Sessions:      sessions,
	})
	if err != nil {
		return out, fmt.Errorf("build report: %w", err)
	}
	log.Info("report prepared",
		zap.String("name", name),
		zap.Int("sessions", rep.SessionCount),
		zap.Int("total_seconds", total),
		zap.Bool("target_met", rep.TargetMet),
		zap.Int("recipients", len(recipients)),
	)

	sentBefore := false
	for _, rc := range recipients {
		if rc.Email == "" {
			continue
		}
		rlog := log.With(zap.Int64("recipient_id", rc.ID), zap.String("to", rc.Email))

		claimed, err := o.store.TryClaim(ctx, rc.ID, u.ID, out.Day)
		if err != nil {
			return out, fmt.Errorf("claim recipient %d: %w", rc.ID, err)
		}
		if !claimed {
			rlog.Info("already sent today, skipping")
			out.AlreadySent++
			continue
		}

		if sentBefore && o.gap > 0 {
			o.sleep(o.gap)
		}
		sentBefore = true

		if o.gateway.Send(ctx, rc.Email, rep.Subject, rep.HTML) {
			rlog.Info("report delivered")
			out.Sent++
			continue
		}

		// The claim stays: a failed send counts as today's attempt.
		rlog.Warn("report delivery failed, recipient stays claimed for today")
		out.Failed++
		if o.alerter != nil {
			o.alerter.Alert(ctx, fmt.Sprintf(
				"Report delivery failed for user %d (%s) to %s on %s. Reset recipient %d to retry.",
				u.ID, name, rc.Email, out.Day, rc.ID,
			))
		}
	}

	log.Info("report run finished",
		zap.Int("sent", out.Sent),
		zap.Int("failed", out.Failed),
		zap.Int("already_sent", out.AlreadySent),
	)
	return out, nil
}
