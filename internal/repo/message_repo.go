// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/messaging-backend/internal/domain"
)

// CreateMessage inserts a message row. The unique index on
// (account_id, provider_message_id) is the webhook idempotency barrier: a
// redelivered payload maps to ErrDuplicate instead of a second row.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetMessage fetches a message by primary key.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetMessageByProviderID resolves the message a status webhook refers to,
// scoped to the account the webhook arrived on. ErrNotFound is expected when
// the status update outruns the message insert; callers treat it as a no-op.
func GetMessageByProviderID(ctx context.Context, db *gorm.DB, accountID, providerMessageID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("account_id = ? AND provider_message_id = ?", accountID, providerMessageID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageStatus applies the status columns computed by the status
// engine. Content columns are never touched here; message content is
// immutable after insert.
func UpdateMessageStatus(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMessageMedia attaches the relayed media locator to a persisted
// message: object-store path, signed URL, and its expiry.
func UpdateMessageMedia(ctx context.Context, db *gorm.DB, id, path, url string, expiresAt time.Time) error {
	return db.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", id).Updates(map[string]any{
		"media_path":           path,
		"media_url":            url,
		"media_url_expires_at": expiresAt,
	}).Error
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, threadID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE thread_id = ? AND deleted_at IS NULL", threadID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a page of a thread's messages ordered by the
// message's own timestamp (insert order is not guaranteed across concurrent
// webhook calls), with ID as the deterministic tiebreak.
func ListMessagesPage(ctx context.Context, db *gorm.DB, threadID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("timestamp ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
