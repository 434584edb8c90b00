// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Contact and
// for the read-only CRM contact linkage lookup.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/messaging-backend/internal/domain"
)

// GetContactByPhone returns the contact for (accountID, phone) or ErrNotFound.
// phone is the normalized digit form, not the display form.
func GetContactByPhone(ctx context.Context, db *gorm.DB, accountID, phone string) (*domain.Contact, error) {
	var c domain.Contact
	err := db.WithContext(ctx).
		Where("account_id = ? AND phone = ?", accountID, phone).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContact inserts a contact row. A concurrent insert for the same
// (account_id, phone) trips the unique index and maps to ErrDuplicate; the
// resolver recovers by re-reading.
func CreateContact(ctx context.Context, db *gorm.DB, c *domain.Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetContact fetches a contact by primary key.
func GetContact(ctx context.Context, db *gorm.DB, id string) (*domain.Contact, error) {
	var c domain.Contact
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateContactName refreshes the display name when the provider sends a
// newer one. Blank hints never overwrite an existing name.
func UpdateContactName(ctx context.Context, db *gorm.DB, id, name string) error {
	if name == "" {
		return nil
	}
	return db.WithContext(ctx).Model(&domain.Contact{}).Where("id = ?", id).Update("display_name", name).Error
}

// FindCRMContactByPhone looks for a CRM contact of the tenant whose phone
// ends with the normalized number. Suffix matching tolerates the stored CRM
// phone carrying a country code or formatting the gateway number lacks.
// Returns ErrNotFound when no candidate matches.
func FindCRMContactByPhone(ctx context.Context, db *gorm.DB, tenantID, phone string) (*domain.CRMContact, error) {
	if len(phone) < 8 {
		return nil, ErrNotFound
	}
	// Compare on the last 8 digits: national numbers minus area formatting.
	suffix := phone[len(phone)-8:]
	var c domain.CRMContact
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND phone LIKE ?", tenantID, "%"+suffix).
		Order("created_at ASC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
