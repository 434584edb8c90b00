// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Thread model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/messaging-backend/internal/domain"
)

// GetLatestActiveThread returns the most recently created active thread for
// (accountID, contactID), or ErrNotFound. Resolution always prefers the
// newest open thread when a contact has several historical ones.
func GetLatestActiveThread(ctx context.Context, db *gorm.DB, accountID, contactID string) (*domain.Thread, error) {
	var t domain.Thread
	err := db.WithContext(ctx).
		Where("account_id = ? AND contact_id = ? AND status = ?", accountID, contactID, domain.ThreadActive).
		Order("created_at DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateThread inserts a new active thread for the account/contact pair.
// The ux_thread_open unique index admits one active thread per pair; a
// concurrent create maps to ErrDuplicate and callers re-read the winner.
func CreateThread(ctx context.Context, db *gorm.DB, tenantID, accountID, contactID string) (*domain.Thread, error) {
	open := 1
	t := &domain.Thread{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AccountID: accountID,
		ContactID: contactID,
		Status:    domain.ThreadActive,
		OpenSlot:  &open,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return t, nil
}

// GetThread fetches a thread by primary key.
func GetThread(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	var t domain.Thread
	err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateThreadStatus sets the status (active/closed) of a thread, keeping
// the open-slot column in step with it. Closing is always an explicit caller
// action; reopening while another active thread exists for the pair trips
// the unique index and maps to ErrDuplicate.
func UpdateThreadStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	updates := map[string]any{"status": status}
	if status == domain.ThreadActive {
		updates["open_slot"] = 1
	} else {
		updates["open_slot"] = nil
	}
	res := db.WithContext(ctx).Model(&domain.Thread{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if IsDuplicate(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchThread stamps last_message_at, and additionally
// last_contact_message_at when the message came from the contact.
func TouchThread(ctx context.Context, db *gorm.DB, id string, at time.Time, fromContact bool) error {
	updates := map[string]any{"last_message_at": at}
	if fromContact {
		updates["last_contact_message_at"] = at
	}
	return db.WithContext(ctx).Model(&domain.Thread{}).Where("id = ?", id).Updates(updates).Error
}

// CountThreads returns the number of threads for a tenant (pagination).
func CountThreads(ctx context.Context, db *gorm.DB, tenantID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Thread{}).Where("tenant_id = ?", tenantID).Count(&total).Error
	return total, err
}

// ListThreadsPage returns a page of the tenant's threads, most recent
// conversation first, with the contact preloaded for the UI list view.
func ListThreadsPage(ctx context.Context, db *gorm.DB, tenantID string, offset, limit int) ([]domain.Thread, error) {
	var out []domain.Thread
	err := db.WithContext(ctx).
		Preload("Contact").
		Where("tenant_id = ?", tenantID).
		Order("last_message_at DESC NULLS LAST, created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
