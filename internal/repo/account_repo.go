// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Account
// model: the tenant's configured gateway instances.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/messaging-backend/internal/domain"
)

// CreateAccount inserts a new gateway account for a tenant. The instance
// name is unique across tenants; a second insert for the same instance maps
// to ErrDuplicate.
func CreateAccount(ctx context.Context, db *gorm.DB, tenantID, instanceName, provider string) (*domain.Account, error) {
	a := &domain.Account{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		InstanceName: instanceName,
		Provider:     provider,
		Status:       domain.AccountConnected,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return a, nil
}

// GetAccountByInstance returns the account configured for a provider
// instance name, or ErrNotFound. This is the lookup the dispatcher performs
// on every webhook call; callers may cache the result read-through.
func GetAccountByInstance(ctx context.Context, db *gorm.DB, instanceName string) (*domain.Account, error) {
	var a domain.Account
	err := db.WithContext(ctx).Where("instance_name = ?", instanceName).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount fetches an account by primary key.
func GetAccount(ctx context.Context, db *gorm.DB, id string) (*domain.Account, error) {
	var a domain.Account
	err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAccountStatus records the connection status reported by the provider.
func UpdateAccountStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
