package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/accountability"
	"github.com/samtjhia/SamsStudyTracker/internal/domain"
	"github.com/samtjhia/SamsStudyTracker/internal/store"
)

type fakeUsers struct {
	users   []domain.User
	listErr error
	asked   []string
}

func (f *fakeUsers) ListScheduled(_ context.Context, hhmm string) ([]domain.User, error) {
	f.asked = append(f.asked, hhmm)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.User
	for _, u := range f.users {
		if u.DailyEmailTime == hhmm && !u.EmailServicePaused {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (*domain.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
}

type fakeRunner struct {
	mu   sync.Mutex
	ran  []int64
	fail map[int64]bool
}

func (f *fakeRunner) RunForUser(_ context.Context, u domain.User) (accountability.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, u.ID)
	if f.fail[u.ID] {
		return accountability.Outcome{}, errors.New("database is locked")
	}
	return accountability.Outcome{Sent: 1}, nil
}

func (f *fakeRunner) ids() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ran...)
}

func fixtureUsers() *fakeUsers {
	return &fakeUsers{users: []domain.User{
		{ID: 1, DailyEmailTime: "20:00"},
		{ID: 2, DailyEmailTime: "20:00", EmailServicePaused: true},
		{ID: 3, DailyEmailTime: "21:00"},
		{ID: 4, DailyEmailTime: "20:00"},
	}}
}

func TestTick_RunsMatchingActiveUsers(t *testing.T) {
	users := fixtureUsers()
	runner := &fakeRunner{}
	s := New(users, runner, zap.NewNop(), time.UTC)

	s.Tick(context.Background(), time.Date(2025, time.March, 4, 20, 0, 42, 0, time.UTC))

	got := runner.ids()
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("ran = %v, want [1 4]", got)
	}
}

func TestTick_UsesReportLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	users := fixtureUsers()
	s := New(users, &fakeRunner{}, zap.NewNop(), loc)

	s.Tick(context.Background(), time.Date(2025, time.March, 5, 1, 0, 0, 0, time.UTC))

	if len(users.asked) != 1 || users.asked[0] != "20:00" {
		t.Fatalf("asked = %v, want [20:00]", users.asked)
	}
}

func TestTick_FailingUserDoesNotStopOthers(t *testing.T) {
	runner := &fakeRunner{fail: map[int64]bool{1: true}}
	s := New(fixtureUsers(), runner, zap.NewNop(), time.UTC)

	s.Tick(context.Background(), time.Date(2025, time.March, 4, 20, 0, 0, 0, time.UTC))

	if got := runner.ids(); len(got) != 2 {
		t.Fatalf("ran = %v, want both users attempted", got)
	}
}

func TestTick_ListErrorRunsNobody(t *testing.T) {
	users := fixtureUsers()
	users.listErr = errors.New("no such table: users")
	runner := &fakeRunner{}
	s := New(users, runner, zap.NewNop(), time.UTC)

	s.Tick(context.Background(), time.Date(2025, time.March, 4, 20, 0, 0, 0, time.UTC))

	if len(runner.ids()) != 0 {
		t.Fatal("nothing should run when listing fails")
	}
}

func TestTriggerNow_IgnoresTimeAndPause(t *testing.T) {
	runner := &fakeRunner{}
	s := New(fixtureUsers(), runner, zap.NewNop(), time.UTC)

	if err := s.TriggerNow(context.Background(), 2); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got := runner.ids(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("ran = %v, want [2]", got)
	}
}

func TestTriggerNow_UnknownUser(t *testing.T) {
	s := New(fixtureUsers(), &fakeRunner{}, zap.NewNop(), time.UTC)
	if err := s.TriggerNow(context.Background(), 99); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDispatch_WaitCoversBackgroundRun(t *testing.T) {
	runner := &fakeRunner{}
	s := New(fixtureUsers(), runner, zap.NewNop(), time.UTC)

	s.Dispatch(3)
	s.Wait()

	if got := runner.ids(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("ran = %v, want [3]", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(fixtureUsers(), &fakeRunner{}, zap.NewNop(), time.UTC)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	s.Wait()
}
