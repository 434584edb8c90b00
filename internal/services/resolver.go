// Package services – Contact/Thread Resolver
//
// Resolve idempotently maps an external phone identity to an internal
// contact record and an open conversation thread, creating both on first
// contact. Duplicate concurrent webhook deliveries for the same phone must
// not produce two contacts or two threads: the store-level uniqueness
// constraint on (account_id, phone) is the source of truth, and the resolver
// recovers from a unique-constraint violation by re-reading instead of
// propagating an error.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/legalflow/messaging-backend/internal/domain"
	"github.com/legalflow/messaging-backend/internal/repo"
)

// ContactResolver owns contact/thread get-or-create.
type ContactResolver struct {
	DB *gorm.DB

	// NameLocale drives display-name casing; Und falls back to Portuguese,
	// the practice's default locale.
	NameLocale language.Tag
}

// Resolution is the result of a resolve call.
type Resolution struct {
	Contact *domain.Contact
	Thread  *domain.Thread
	// ContactCreated and ThreadCreated report first-contact creation, used
	// by the dispatcher for fan-out and logging.
	ContactCreated bool
	ThreadCreated  bool
}

// Resolve returns the contact and open thread for an external phone identity
// under the given account, creating either on first contact.
//
// externalKey is the provider chat identifier (phone plus provider suffix);
// nameHint is the sender display name the provider pushed, used only when
// creating or when the stored name is empty.
func (r *ContactResolver) Resolve(ctx context.Context, account *domain.Account, externalKey, nameHint string) (*Resolution, error) {
	tr := otel.Tracer("services/ContactResolver")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(
			attribute.String("account.id", account.ID),
		),
	)
	defer span.End()

	phone, display := NormalizePhone(externalKey)
	if phone == "" {
		return nil, ErrInvalidPhone
	}

	res := &Resolution{}

	contact, err := repo.GetContactByPhone(ctx, r.DB, account.ID, phone)
	switch {
	case err == nil:
		// Known contact; refresh a missing display name best-effort.
		if contact.DisplayName == "" && nameHint != "" {
			name := r.caseName(nameHint)
			if uerr := repo.UpdateContactName(ctx, r.DB, contact.ID, name); uerr == nil {
				contact.DisplayName = name
			}
		}
	case errors.Is(err, repo.ErrNotFound):
		contact, err = r.createContact(ctx, account, phone, display, nameHint)
		if err != nil {
			return nil, err
		}
		res.ContactCreated = true
	default:
		return nil, err
	}
	res.Contact = contact

	thread, err := repo.GetLatestActiveThread(ctx, r.DB, account.ID, contact.ID)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrNotFound):
		thread, err = repo.CreateThread(ctx, r.DB, account.TenantID, account.ID, contact.ID)
		if errors.Is(err, repo.ErrDuplicate) {
			// A concurrent delivery opened the thread first; use theirs.
			thread, err = repo.GetLatestActiveThread(ctx, r.DB, account.ID, contact.ID)
		} else if err == nil {
			res.ThreadCreated = true
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	res.Thread = thread
	return res, nil
}

// createContact inserts the contact with a best-effort CRM linkage; on a
// concurrent duplicate insert it re-reads the winner's row.
func (r *ContactResolver) createContact(ctx context.Context, account *domain.Account, phone, display, nameHint string) (*domain.Contact, error) {
	c := &domain.Contact{
		TenantID:     account.TenantID,
		AccountID:    account.ID,
		Phone:        phone,
		DisplayPhone: display,
		DisplayName:  r.caseName(nameHint),
	}

	// Linkage failure is non-fatal: a contact without a CRM link is valid.
	if crm, err := repo.FindCRMContactByPhone(ctx, r.DB, account.TenantID, phone); err == nil {
		c.CRMContactID = &crm.ID
		if c.DisplayName == "" {
			c.DisplayName = crm.Name
		}
	}

	err := repo.CreateContact(ctx, r.DB, c)
	if err == nil {
		return c, nil
	}
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost the race against a concurrent webhook delivery.
		return repo.GetContactByPhone(ctx, r.DB, account.ID, phone)
	}
	return nil, err
}

// caseName title-cases an all-caps or all-lower pushed name; mixed-case
// names are assumed intentional and kept as-is.
func (r *ContactResolver) caseName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if name != strings.ToUpper(name) && name != strings.ToLower(name) {
		return name
	}
	tag := r.NameLocale
	if tag == language.Und {
		tag = language.BrazilianPortuguese
	}
	return cases.Title(tag).String(strings.ToLower(name))
}

// NormalizePhone reduces a provider chat identifier to its canonical digit
// form plus a "+"-prefixed display form. Provider suffixes ("@c.us",
// ":device") and formatting are stripped; group identifiers (no usable
// digits) yield "".
func NormalizePhone(externalKey string) (digits, display string) {
	s := externalKey
	if i := strings.IndexAny(s, "@:"); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits = b.String()
	if len(digits) < 8 || len(digits) > 15 {
		return "", ""
	}
	return digits, "+" + digits
}
