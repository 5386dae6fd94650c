package accountability

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/domain"
	"github.com/samtjhia/SamsStudyTracker/internal/report"
	"github.com/samtjhia/SamsStudyTracker/internal/store"
)

var testNow = time.Date(2025, time.March, 4, 20, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu         sync.Mutex
	sessions   []domain.Session
	recipients []domain.Recipient
	claims     int
	err        error
}

func (f *fakeStore) ListSessions(_ context.Context, userID int64, from, to time.Time) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Session
	for _, s := range f.sessions {
		st := s.StartTime()
		if s.UserID == userID && !st.Before(from) && st.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRecipients(_ context.Context, userID int64) ([]domain.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Recipient
	for _, rc := range f.recipients {
		if rc.UserID == userID {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (f *fakeStore) TryClaim(_ context.Context, recipientID, userID int64, day string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	for i := range f.recipients {
		rc := &f.recipients[i]
		if rc.ID != recipientID || rc.UserID != userID || rc.SentOn(day) {
			continue
		}
		d := day
		rc.LastSentDate = &d
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) reset(recipientID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.recipients {
		if f.recipients[i].ID == recipientID {
			f.recipients[i].LastSentDate = nil
		}
	}
}

type sent struct{ to, subject, body string }

type fakeGateway struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []sent
}

func (g *fakeGateway) Send(_ context.Context, to, subject, body string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[to] {
		return false
	}
	g.sent = append(g.sent, sent{to, subject, body})
	return true
}

func (g *fakeGateway) count(to string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.sent {
		if s.to == to {
			n++
		}
	}
	return n
}

type fakeAlerter struct{ texts []string }

func (a *fakeAlerter) Alert(_ context.Context, text string) { a.texts = append(a.texts, text) }

func studySession(userID int64, at time.Time, secs int, topic string) domain.Session {
	return domain.Session{
		UserID:          userID,
		Start:           at.UnixMilli(),
		End:             at.Add(time.Duration(secs) * time.Second).UnixMilli(),
		DurationSeconds: secs,
		TopicText:       topic,
	}
}

func strPtr(s string) *string { return &s }

func testUser() domain.User {
	return domain.User{ID: 1, Email: "sam@example.com", Username: "Sam", DailyTargetMin: 120, DailyEmailTime: "20:00"}
}

func newTestOrchestrator(t *testing.T, st Store, gw *fakeGateway, opts ...Option) (*Orchestrator, *[]time.Duration) {
	t.Helper()
	b, err := report.NewBuilder("https://quickchart.io/chart", time.UTC)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	o := New(st, b, gw, zap.NewNop(), time.UTC, opts...)
	var sleeps []time.Duration
	o.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return o, &sleeps
}

func TestRunForUser_DeliversToUnclaimedRecipientsOnly(t *testing.T) {
	st := &fakeStore{
		sessions: []domain.Session{
			studySession(1, testNow.Add(-11*time.Hour), 3600, "Calculus"),
			studySession(1, testNow.Add(-6*time.Hour), 1800, ""),
			studySession(1, testNow.Add(-24*time.Hour), 600, "yesterday"),
		},
		recipients: []domain.Recipient{
			{ID: 1, UserID: 1, Email: "a@example.com", LastSentDate: strPtr("2025-03-04")},
			{ID: 2, UserID: 1, Email: "b@example.com"},
		},
	}
	gw := &fakeGateway{}
	o, _ := newTestOrchestrator(t, st, gw)

	out, err := o.RunForUser(context.Background(), testUser())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Sent != 1 || out.AlreadySent != 1 || out.Failed != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if gw.count("a@example.com") != 0 || gw.count("b@example.com") != 1 {
		t.Fatalf("sends = %+v", gw.sent)
	}

	msg := gw.sent[0]
	if msg.subject != "Sam's Study Report — Mar 4" {
		t.Errorf("subject = %q", msg.subject)
	}
	for _, want := range []string{"1h 30m 0s", "MISSED ❌", "120 minutes"} {
		if !strings.Contains(msg.body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(msg.body, "yesterday") {
		t.Error("sessions from another day must not be reported")
	}
	if got := st.recipients[1].LastSentDate; got == nil || *got != "2025-03-04" {
		t.Errorf("recipient b last sent = %v", got)
	}
}

func TestRunForUser_SecondRunSendsNothing(t *testing.T) {
	st := &fakeStore{
		sessions:   []domain.Session{studySession(1, testNow.Add(-time.Hour), 600, "Reading")},
		recipients: []domain.Recipient{{ID: 1, UserID: 1, Email: "a@example.com"}, {ID: 2, UserID: 1, Email: "b@example.com"}},
	}
	gw := &fakeGateway{}
	o, _ := newTestOrchestrator(t, st, gw)

	for i := 0; i < 3; i++ {
		if _, err := o.RunForUser(context.Background(), testUser()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if gw.count("a@example.com") != 1 || gw.count("b@example.com") != 1 {
		t.Fatalf("each recipient should get exactly one email, got %+v", gw.sent)
	}
}

func TestRunForUser_NoSessionsSendsNothing(t *testing.T) {
	st := &fakeStore{
		sessions:   []domain.Session{studySession(1, testNow.Add(-30*time.Hour), 600, "old")},
		recipients: []domain.Recipient{{ID: 1, UserID: 1, Email: "a@example.com"}},
	}
	gw := &fakeGateway{}
	o, _ := newTestOrchestrator(t, st, gw)

	out, err := o.RunForUser(context.Background(), testUser())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Skipped != SkipNoSessions {
		t.Fatalf("skipped = %q", out.Skipped)
	}
	if len(gw.sent) != 0 || st.claims != 0 {
		t.Fatalf("no claim or send expected, got %d claims %d sends", st.claims, len(gw.sent))
	}
	if st.recipients[0].LastSentDate != nil {
		t.Error("ledger must be untouched")
	}
}

func TestRunForUser_NoRecipientsSendsNothing(t *testing.T) {
	st := &fakeStore{sessions: []domain.Session{studySession(1, testNow.Add(-time.Hour), 600, "Reading")}}
	gw := &fakeGateway{}
	o, _ := newTestOrchestrator(t, st, gw)

	out, err := o.RunForUser(context.Background(), testUser())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Skipped != SkipNoRecipients || len(gw.sent) != 0 {
		t.Fatalf("outcome = %+v, sends = %d", out, len(gw.sent))
	}
}

func TestRunForUser_FailedSendStaysClaimedUntilReset(t *testing.T) {
	st := &fakeStore{
		sessions:   []domain.Session{studySession(1, testNow.Add(-time.Hour), 600, "Reading")},
		recipients: []domain.Recipient{{ID: 7, UserID: 1, Email: "down@example.com"}},
	}
	gw := &fakeGateway{fail: map[string]bool{"down@example.com": true}}
	alerts := &fakeAlerter{}
	o, _ := newTestOrchestrator(t, st, gw, WithAlerter(alerts))
	ctx := context.Background()

	out, err := o.RunForUser(ctx, testUser())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Failed != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if got := st.recipients[0].LastSentDate; got == nil || *got != "2025-03-04" {
		t.Fatalf("failed send must keep the claim, got %v", got)
	}
	if len(alerts.texts) != 1 || !strings.Contains(alerts.texts[0], "down@example.com") {
		t.Fatalf("alerts = %v", alerts.texts)
	}

	gw.fail = nil
	if out, _ := o.RunForUser(ctx, testUser()); out.Sent != 0 || out.AlreadySent != 1 {
		t.Fatalf("claimed recipient must not be retried the same day, outcome = %+v", out)
	}

	st.reset(7)
	if out, _ := o.RunForUser(ctx, testUser()); out.Sent != 1 {
		t.Fatalf("reset recipient should be sent again, outcome = %+v", out)
	}
}

func TestRunForUser_GapOnlyBetweenSends(t *testing.T) {
	st := &fakeStore{
		sessions: []domain.Session{studySession(1, testNow.Add(-time.Hour), 600, "Reading")},
		recipients: []domain.Recipient{
			{ID: 1, UserID: 1, Email: "a@example.com"},
			{ID: 2, UserID: 1, Email: "b@example.com", LastSentDate: strPtr("2025-03-04")},
			{ID: 3, UserID: 1, Email: "c@example.com"},
			{ID: 4, UserID: 1, Email: "d@example.com"},
		},
	}
	gw := &fakeGateway{}
	o, sleeps := newTestOrchestrator(t, st, gw, WithSendGap(250*time.Millisecond))

	if _, err := o.RunForUser(context.Background(), testUser()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("want 2 pauses for 3 sends, got %v", *sleeps)
	}
	for _, d := range *sleeps {
		if d != 250*time.Millisecond {
			t.Errorf("pause = %v", d)
		}
	}
}

func TestRunForUser_StoreErrorIsReturned(t *testing.T) {
	boom := errors.New("disk I/O error")
	o, _ := newTestOrchestrator(t, &fakeStore{err: boom}, &fakeGateway{})
	if _, err := o.RunForUser(context.Background(), testUser()); !errors.Is(err, boom) {
		t.Fatalf("want wrapped store error, got %v", err)
	}
}

func TestRunForUser_ConcurrentRunsDeliverOnce(t *testing.T) {
	ctx := context.Background()
	repo, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer repo.Close()

	u := testUser()
	u.ID = 0
	if err := repo.CreateUser(ctx, &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	s := studySession(u.ID, testNow.Add(-2*time.Hour), 4200, "Physics")
	if err := repo.AddSession(ctx, &s); err != nil {
		t.Fatalf("add session: %v", err)
	}
	emails := []string{"a@example.com", "b@example.com", "c@example.com"}
	for _, e := range emails {
		if _, err := repo.AddRecipient(ctx, u.ID, e); err != nil {
			t.Fatalf("add recipient: %v", err)
		}
	}

	gw := &fakeGateway{}
	o, _ := newTestOrchestrator(t, repo, gw)
	o.sleep = func(time.Duration) {}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.RunForUser(ctx, u); err != nil {
				t.Errorf("run: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, e := range emails {
		if n := gw.count(e); n != 1 {
			t.Errorf("%s received %d emails, want 1", e, n)
		}
	}
}
