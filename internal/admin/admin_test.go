package admin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/domain"
	"github.com/samtjhia/SamsStudyTracker/internal/store"
)

type recordingDispatcher struct{ ids []int64 }

func (d *recordingDispatcher) Dispatch(userID int64) { d.ids = append(d.ids, userID) }

func newTestService(t *testing.T) (*Service, *store.SQLiteRepo, *recordingDispatcher) {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	d := &recordingDispatcher{}
	return New(repo, d, zap.NewNop()), repo, d
}

func seed(t *testing.T, repo *store.SQLiteRepo) (*domain.User, *domain.Recipient) {
	t.Helper()
	ctx := context.Background()
	u := &domain.User{Email: "sam@example.com", Username: "Sam", DailyTargetMin: 60, DailyEmailTime: "20:00"}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	rc, err := repo.AddRecipient(ctx, u.ID, "partner@example.com")
	if err != nil {
		t.Fatalf("add recipient: %v", err)
	}
	if ok, err := repo.TryClaim(ctx, rc.ID, u.ID, "2025-03-04"); err != nil || !ok {
		t.Fatalf("claim: %v %v", ok, err)
	}
	return u, rc
}

func TestOverview_ListsRecipientsWithLastSent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(t, repo)

	rows, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(rows) != 1 || len(rows[0].Recipients) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	if !rows[0].Recipients[0].SentOn("2025-03-04") {
		t.Error("last-sent date should be visible")
	}
}

func TestTrigger_DispatchesKnownUser(t *testing.T) {
	svc, repo, d := newTestService(t)
	u, _ := seed(t, repo)

	msg, err := svc.Trigger(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !strings.Contains(msg, "Sam") {
		t.Errorf("ack = %q", msg)
	}
	if len(d.ids) != 1 || d.ids[0] != u.ID {
		t.Fatalf("dispatched = %v", d.ids)
	}
}

func TestTrigger_UnknownUser(t *testing.T) {
	svc, _, d := newTestService(t)
	if _, err := svc.Trigger(context.Background(), 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if len(d.ids) != 0 {
		t.Fatal("unknown user must not be dispatched")
	}
}

func TestResetRecipient(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u, rc := seed(t, repo)
	ctx := context.Background()

	if err := svc.ResetRecipient(ctx, rc.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ok, err := repo.TryClaim(ctx, rc.ID, u.ID, "2025-03-04"); err != nil || !ok {
		t.Fatalf("reset recipient should be claimable again: %v %v", ok, err)
	}
	if err := svc.ResetRecipient(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeleteUser_Cascades(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u, _ := seed(t, repo)
	ctx := context.Background()

	if err := svc.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rcs, err := repo.ListRecipients(ctx, u.ID)
	if err != nil {
		t.Fatalf("list recipients: %v", err)
	}
	if len(rcs) != 0 {
		t.Fatalf("recipients should cascade, got %d", len(rcs))
	}
	if err := svc.DeleteUser(ctx, u.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
