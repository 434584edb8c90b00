package services

import (
	"context"
	"errors"
	"testing"

	"github.com/legalflow/messaging-backend/internal/domain"
	"github.com/legalflow/messaging-backend/internal/repo"
)

func TestGuard_Thread(t *testing.T) {
	db := newSvcDB(t)
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
	g := &Guard{DB: db}

	got, err := g.Thread(ctx, Scope{TenantID: "t1"}, th.ID)
	if err != nil || got.ID != th.ID {
		t.Fatalf("own thread: %v, %v", got, err)
	}
	if _, err := g.Thread(ctx, Scope{TenantID: "t2"}, th.ID); !errors.Is(err, ErrCrossTenant) {
		t.Errorf("cross tenant: expected ErrCrossTenant, got %v", err)
	}
	if _, err := g.Thread(ctx, Scope{TenantID: "t1"}, "missing"); !errors.Is(err, ErrThreadNotFound) {
		t.Errorf("missing: expected ErrThreadNotFound, got %v", err)
	}
}

func TestGuard_MessageAndAccount(t *testing.T) {
	db := newSvcDB(t)
	ctx := context.Background()
	a := mkAccount(t, db, "t1", "i1", "zapmail")
	c := &domain.Contact{TenantID: "t1", AccountID: a.ID, Phone: "5511999990000", DisplayPhone: "+5511999990000"}
	if err := repo.CreateContact(ctx, db, c); err != nil {
		t.Fatalf("contact: %v", err)
	}
	th, _ := repo.CreateThread(ctx, db, "t1", a.ID, c.ID)
	m := &domain.Message{
		TenantID:          "t1",
		ThreadID:          th.ID,
		ContactID:         c.ID,
		AccountID:         a.ID,
		ProviderMessageID: "wamid.g1",
		Direction:         domain.DirectionInbound,
		Type:              domain.TypeText,
		Status:            domain.StatusDelivered,
	}
	if err := repo.CreateMessage(ctx, db, m); err != nil {
		t.Fatalf("message: %v", err)
	}
	g := &Guard{DB: db}

	if _, err := g.Message(ctx, Scope{TenantID: "t1"}, m.ID); err != nil {
		t.Errorf("own message: %v", err)
	}
	if _, err := g.Message(ctx, Scope{TenantID: "t2"}, m.ID); !errors.Is(err, ErrCrossTenant) {
		t.Errorf("cross-tenant message: %v", err)
	}
	if _, err := g.Message(ctx, Scope{TenantID: "t1"}, "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("missing message: %v", err)
	}

	if _, err := g.Account(ctx, Scope{TenantID: "t1"}, a.ID); err != nil {
		t.Errorf("own account: %v", err)
	}
	if _, err := g.Account(ctx, Scope{TenantID: "t2"}, a.ID); !errors.Is(err, ErrCrossTenant) {
		t.Errorf("cross-tenant account: %v", err)
	}
	if _, err := g.Account(ctx, Scope{TenantID: "t1"}, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("missing account: %v", err)
	}
}
