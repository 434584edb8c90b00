// Package services – Tenant Guard
//
// Every resolver and status-engine call runs under a Scope derived from the
// authenticated caller: webhook-originated calls take it from the Account
// matched by provider instance name, user-originated calls from the caller's
// profile. Before any cross-referencing read the guard compares the record's
// stored tenant id against the scope and rejects mismatches with
// ErrCrossTenant. This is a fail-closed check, not a query filter: a
// mismatch is observable and logged as a security event instead of silently
// returning an empty result.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/legalflow/messaging-backend/internal/domain"
	"github.com/legalflow/messaging-backend/internal/repo"
)

// Scope is the tenant/account context a call executes under. AccountID is
// empty for user-originated calls that are not bound to one account.
type Scope struct {
	TenantID  string
	AccountID string
}

// Guard performs fail-closed tenant checks on record lookups.
type Guard struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// Thread loads a thread by id and verifies it belongs to the scope's
// tenant. A mismatch returns ErrCrossTenant; a missing row returns
// ErrThreadNotFound.
func (g *Guard) Thread(ctx context.Context, scope Scope, threadID string) (*domain.Thread, error) {
	t, err := repo.GetThread(ctx, g.DB, threadID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	if t.TenantID != scope.TenantID {
		g.securityEvent(scope, "thread", threadID, t.TenantID)
		return nil, ErrCrossTenant
	}
	return t, nil
}

// Message loads a message by id and verifies tenant ownership.
func (g *Guard) Message(ctx context.Context, scope Scope, messageID string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, g.DB, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if m.TenantID != scope.TenantID {
		g.securityEvent(scope, "message", messageID, m.TenantID)
		return nil, ErrCrossTenant
	}
	return m, nil
}

// Account loads an account by id and verifies tenant ownership.
func (g *Guard) Account(ctx context.Context, scope Scope, accountID string) (*domain.Account, error) {
	a, err := repo.GetAccount(ctx, g.DB, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if a.TenantID != scope.TenantID {
		g.securityEvent(scope, "account", accountID, a.TenantID)
		return nil, ErrCrossTenant
	}
	return a, nil
}

// securityEvent logs a cross-tenant reference. The record's owner tenant is
// deliberately not included in anything returned to the caller.
func (g *Guard) securityEvent(scope Scope, kind, id, ownerTenant string) {
	g.Log.Warn().
		Str("security_event", "cross_tenant_access").
		Str("caller_tenant", scope.TenantID).
		Str("record_kind", kind).
		Str("record_id", id).
		Str("record_tenant", ownerTenant).
		Msg("rejected cross-tenant reference")
}
