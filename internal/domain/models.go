// Package domain defines the persistence models for the messaging subsystem:
// gateway accounts, external contacts, conversation threads, and messages.
// These types are mapped with GORM and shared across the repository and
// service layers.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Direction of a message relative to the tenant's account.
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Message content types. The normalizer detects the type from the provider
// payload; anything else is ignored upstream.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeDocument = "document"
)

// Message delivery lifecycle states. Order matters: a message's status only
// ever moves forward through QUEUED → SENT → DELIVERED → READ.
// FAILED is terminal and reachable from QUEUED or SENT.
const (
	StatusQueued    = "QUEUED"
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusRead      = "READ"
	StatusFailed    = "FAILED"
)

// Thread lifecycle states.
const (
	ThreadActive = "active"
	ThreadClosed = "closed"
)

// Account connection states, reported by the gateway provider.
const (
	AccountConnected    = "connected"
	AccountDisconnected = "disconnected"
)

// Account is a tenant's configured messaging-gateway instance. Webhook calls
// identify the account by the provider instance name, which is unique across
// tenants. At most one active account exists per instance name.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - TenantID: owning tenant; every child record copies it for scoping.
//   - InstanceName: provider-side instance identifier (unique).
//   - Provider: gateway provider tag ("zapmail" or "evolution").
//   - Status: connection status as last reported by the provider.
type Account struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	TenantID     string         `json:"tenant_id"     gorm:"type:varchar(64);not null;index"`
	InstanceName string         `json:"instance_name" gorm:"type:varchar(128);not null;uniqueIndex:ux_account_instance"`
	Provider     string         `json:"provider"      gorm:"type:varchar(32);not null"`
	Status       string         `json:"status"        gorm:"type:varchar(32);not null;default:'connected'"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// Contact is an external phone identity known to the messaging subsystem.
// Contacts are created lazily on first inbound or outbound event and are
// never deleted by this subsystem. The (account_id, phone) pair is unique
// and is the store-level mutual-exclusion mechanism that makes concurrent
// get-or-create safe.
//
// CRMContactID optionally links the messaging contact to the practice's CRM
// contact record; linkage is best-effort by phone match and may be absent.
type Contact struct {
	ID           string         `json:"id"             gorm:"type:char(36);primaryKey"`
	TenantID     string         `json:"tenant_id"      gorm:"type:varchar(64);not null;index"`
	AccountID    string         `json:"account_id"     gorm:"type:char(36);not null;uniqueIndex:ux_contact_account_phone,priority:1"`
	Phone        string         `json:"phone"          gorm:"type:varchar(32);not null;uniqueIndex:ux_contact_account_phone,priority:2"`
	DisplayPhone string         `json:"display_phone"  gorm:"type:varchar(34);not null"`
	DisplayName  string         `json:"display_name"   gorm:"type:varchar(255)"`
	CRMContactID *string        `json:"crm_contact_id,omitempty" gorm:"type:char(36);index"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"              gorm:"index"`

	Account Account `json:"-" gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string { return "contacts" }

// CRMContact is the slice of the practice's CRM contact record this
// subsystem reads: enough to link an inbound phone identity to an existing
// client. The CRM domain owns the full record; rows here are never written
// by the messaging pipeline.
type CRMContact struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(64);not null;index"`
	Name      string    `json:"name"      gorm:"type:varchar(255);not null"`
	Phone     string    `json:"phone"     gorm:"type:varchar(32);index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CRMContact.
func (CRMContact) TableName() string { return "crm_contacts" }

// Thread is a conversation between an Account and a Contact. New inbound
// messages always target the most recently created active thread for the
// pair; threads are closed only by an explicit user action, never
// automatically.
type Thread struct {
	ID        string `json:"id"         gorm:"type:char(36);primaryKey"`
	TenantID  string `json:"tenant_id"  gorm:"type:varchar(64);not null;index"`
	AccountID string `json:"account_id" gorm:"type:char(36);not null;index:idx_thread_account;uniqueIndex:ux_thread_open,priority:1"`
	ContactID string `json:"contact_id" gorm:"type:char(36);not null;index:idx_thread_contact;uniqueIndex:ux_thread_open,priority:2"`
	Status    string `json:"status"     gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','closed')"`
	// OpenSlot is 1 while the thread is active and NULL once closed. SQLite
	// unique indexes ignore NULLs, so ux_thread_open admits any number of
	// closed threads per pair but at most one open one, which keeps
	// concurrent thread get-or-create race-free at the store level.
	OpenSlot             *int           `json:"-"          gorm:"uniqueIndex:ux_thread_open,priority:3"`
	LastMessageAt        *time.Time     `json:"last_message_at,omitempty"`
	LastContactMessageAt *time.Time     `json:"last_contact_message_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `json:"-"          gorm:"index"`

	Contact Contact `json:"contact,omitempty" gorm:"foreignKey:ContactID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Thread.
func (Thread) TableName() string { return "threads" }

// Message is one inbound or outbound conversation unit. Content is immutable
// once persisted; only the status fields and the media fields may change
// afterwards (status webhooks and the media relay, respectively).
//
// ProviderMessageID is the external gateway's identifier and the idempotency
// key: unique per account, it deduplicates redelivered webhooks and matches
// status updates to their message.
type Message struct {
	ID                string         `json:"id"        gorm:"type:char(36);primaryKey"`
	TenantID          string         `json:"tenant_id" gorm:"type:varchar(64);not null;index"`
	ThreadID          string         `json:"thread_id" gorm:"type:char(36);not null;index:idx_thread_messages,priority:1"`
	ContactID         string         `json:"contact_id" gorm:"type:char(36);not null;index"`
	AccountID         string         `json:"account_id" gorm:"type:char(36);not null;uniqueIndex:ux_message_account_provider,priority:1"`
	ProviderMessageID string         `json:"provider_message_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_message_account_provider,priority:2"`
	Direction         string         `json:"direction" gorm:"type:varchar(8);not null;check:direction IN ('INBOUND','OUTBOUND')"`
	Type              string         `json:"type"      gorm:"type:varchar(16);not null;default:'text'"`
	Status            string         `json:"status"    gorm:"type:varchar(16);not null;default:'QUEUED'"`
	Content           string         `json:"content"   gorm:"type:text"`
	Caption           string         `json:"caption,omitempty"   gorm:"type:text"`
	FileName          string         `json:"file_name,omitempty" gorm:"type:varchar(255)"`
	MimeType          string         `json:"mime_type,omitempty" gorm:"type:varchar(128)"`
	DurationSeconds   *int           `json:"duration_seconds,omitempty"`
	MediaPath         *string        `json:"-"         gorm:"type:varchar(512)"`
	MediaURL          *string        `json:"media_url,omitempty" gorm:"type:varchar(1024)"`
	MediaURLExpiresAt *time.Time     `json:"media_url_expires_at,omitempty"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty"`
	ReadAt            *time.Time     `json:"read_at,omitempty"`
	FailReason        string         `json:"fail_reason,omitempty" gorm:"type:text"`
	Timestamp         time.Time      `json:"timestamp" gorm:"not null;index:idx_thread_messages,priority:2"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-"         gorm:"index"`

	Thread Thread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// StatusRank maps a lifecycle state to its position in the total order used
// by the monotonic-progression rule. FAILED is not ranked: it is always
// accepted and short-circuits any state.
func StatusRank(s string) (int, bool) {
	switch s {
	case StatusQueued:
		return 0, true
	case StatusSent:
		return 1, true
	case StatusDelivered:
		return 2, true
	case StatusRead:
		return 3, true
	default:
		return 0, false
	}
}

// HasMedia reports whether the message type carries a binary payload.
func (m *Message) HasMedia() bool {
	switch m.Type {
	case TypeImage, TypeVideo, TypeAudio, TypeDocument:
		return true
	}
	return false
}
