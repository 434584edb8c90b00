package services

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/legalflow/messaging-backend/internal/domain"
	"github.com/legalflow/messaging-backend/internal/repo"
)

func statusFixture(t *testing.T, db *gorm.DB, initial string) (Scope, *domain.Message) {
	t.Helper()
	ctx := context.Background()
	a := mkAccount(t, db, "t1", "i1", "zapmail")
	c := &domain.Contact{TenantID: "t1", AccountID: a.ID, Phone: "5511999990000", DisplayPhone: "+5511999990000"}
	if err := repo.CreateContact(ctx, db, c); err != nil {
		t.Fatalf("contact: %v", err)
	}
	th, err := repo.CreateThread(ctx, db, "t1", a.ID, c.ID)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	m := &domain.Message{
		TenantID:          "t1",
		ThreadID:          th.ID,
		ContactID:         c.ID,
		AccountID:         a.ID,
		ProviderMessageID: "wamid.s1",
		Direction:         domain.DirectionOutbound,
		Type:              domain.TypeText,
		Status:            initial,
		Content:           "olá",
	}
	if err := repo.CreateMessage(ctx, db, m); err != nil {
		t.Fatalf("message: %v", err)
	}
	return Scope{TenantID: "t1", AccountID: a.ID}, m
}

func TestStatusApply_Advances(t *testing.T) {
	db := newSvcDB(t)
	scope, m := statusFixture(t, db, domain.StatusQueued)
	e := &StatusEngine{DB: db}
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	out, err := e.Apply(ctx, scope, m.ProviderMessageID, "3", at) // zapmail delivered
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !out.Applied || out.Message == nil {
		t.Fatalf("outcome: %+v", out)
	}

	got, _ := repo.GetMessage(ctx, db, m.ID)
	if got.Status != domain.StatusDelivered {
		t.Errorf("status: %q", got.Status)
	}
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(at) {
		t.Errorf("delivered_at: %v", got.DeliveredAt)
	}
}

func TestStatusApply_NeverRegresses(t *testing.T) {
	db := newSvcDB(t)
	scope, m := statusFixture(t, db, domain.StatusRead)
	e := &StatusEngine{DB: db}
	ctx := context.Background()

	// A late DELIVERED after READ is discarded.
	out, err := e.Apply(ctx, scope, m.ProviderMessageID, "DELIVERY_ACK", time.Now().UTC())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Applied {
		t.Fatal("stale transition applied")
	}
	got, _ := repo.GetMessage(ctx, db, m.ID)
	if got.Status != domain.StatusRead {
		t.Errorf("status regressed to %q", got.Status)
	}
}

func TestStatusApply_ReadBackfillsDelivered(t *testing.T) {
	db := newSvcDB(t)
	scope, m := statusFixture(t, db, domain.StatusSent)
	e := &StatusEngine{DB: db}
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	out, err := e.Apply(ctx, scope, m.ProviderMessageID, "READ", at)
	if err != nil || !out.Applied {
		t.Fatalf("apply: %+v, %v", out, err)
	}
	got, _ := repo.GetMessage(ctx, db, m.ID)
	if got.Status != domain.StatusRead {
		t.Errorf("status: %q", got.Status)
	}
	if got.ReadAt == nil || got.DeliveredAt == nil {
		t.Errorf("timestamps: read=%v delivered=%v", got.ReadAt, got.DeliveredAt)
	}
}

func TestStatusApply_FailedIsAcceptedAndTerminal(t *testing.T) {
	db := newSvcDB(t)
	scope, m := statusFixture(t, db, domain.StatusQueued)
	e := &StatusEngine{DB: db}
	ctx := context.Background()

	out, err := e.Apply(ctx, scope, m.ProviderMessageID, "-1", time.Now().UTC())
	if err != nil || !out.Applied {
		t.Fatalf("fail apply: %+v, %v", out, err)
	}
	got, _ := repo.GetMessage(ctx, db, m.ID)
	if got.Status != domain.StatusFailed || got.FailReason == "" {
		t.Errorf("failed state: status=%q reason=%q", got.Status, got.FailReason)
	}

	// Nothing ranked may follow a FAILED message.
	out, err = e.Apply(ctx, scope, m.ProviderMessageID, "4", time.Now().UTC())
	if err != nil {
		t.Fatalf("post-fail apply: %v", err)
	}
	if out.Applied {
		t.Fatal("transition applied after FAILED")
	}
}

func TestStatusApply_UnknownCodeDropped(t *testing.T) {
	db := newSvcDB(t)
	scope, m := statusFixture(t, db, domain.StatusQueued)
	e := &StatusEngine{DB: db}

	out, err := e.Apply(context.Background(), scope, m.ProviderMessageID, "banana", time.Now().UTC())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Message != nil || out.Applied {
		t.Fatalf("unknown code produced outcome: %+v", out)
	}
}

func TestStatusApply_NoMatchingMessageDropped(t *testing.T) {
	db := newSvcDB(t)
	scope, _ := statusFixture(t, db, domain.StatusQueued)
	e := &StatusEngine{DB: db}

	out, err := e.Apply(context.Background(), scope, "wamid.never-seen", "3", time.Now().UTC())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Message != nil {
		t.Fatalf("phantom message: %+v", out)
	}
}

func TestTransitionTable(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name    string
		current string
		next    string
		applied bool
	}{
		{"queued to sent", domain.StatusQueued, domain.StatusSent, true},
		{"sent to delivered", domain.StatusSent, domain.StatusDelivered, true},
		{"delivered to read", domain.StatusDelivered, domain.StatusRead, true},
		{"delivered repeat", domain.StatusDelivered, domain.StatusDelivered, false},
		{"read to sent", domain.StatusRead, domain.StatusSent, false},
		{"queued to failed", domain.StatusQueued, domain.StatusFailed, true},
		{"failed to read", domain.StatusFailed, domain.StatusRead, false},
	}
	for _, tc := range cases {
		msg := &domain.Message{Status: tc.current}
		_, applied := transition(msg, tc.next, now)
		if applied != tc.applied {
			t.Errorf("%s: applied=%v, want %v", tc.name, applied, tc.applied)
		}
	}
}
