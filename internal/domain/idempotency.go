// Package domain defines the persistence models for the messaging subsystem.
package domain

import "time"

// Idempotency records the result of a previously processed outbound send,
// keyed by (tenant_id, thread_id, key). It lets the UI retry POSTs on a
// thread safely: a replayed Idempotency-Key returns the originally created
// message instead of queueing a second send.
//
// Inbound webhook idempotency does not use this table; it is keyed on the
// provider message id unique index on messages.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	TenantID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_tenant_thread_key,priority:1"`
	ThreadID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_tenant_thread_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_tenant_thread_key,priority:3"`
	MessageID string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
