// Package services – Media Relay
//
// Provider media URLs are ephemeral, so the relay copies the binary into our
// object store right after the owning message is persisted and hands the UI
// a signed, time-limited URL. Every failure here is per-asset: the message
// already persisted with its caption/placeholder content, so a fetch or
// store error degrades to "media unavailable" instead of failing the event.
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/legalflow/messaging-backend/internal/domain"
	"github.com/legalflow/messaging-backend/internal/repo"
	"github.com/legalflow/messaging-backend/internal/storage"
)

// MediaAsset is the stored locator the relay produces.
type MediaAsset struct {
	Path      string
	URL       string
	ExpiresAt time.Time
}

// MediaRelay fetches remote media and persists it to the object store.
type MediaRelay struct {
	DB     *gorm.DB
	Store  storage.ObjectStore
	Client *http.Client
	Log    zerolog.Logger

	// URLTTL is the signed-URL validity window. Zero means one hour.
	URLTTL time.Duration
	// MaxBytes caps a fetched asset. Zero means 32 MiB.
	MaxBytes int64

	// Observe, when set, receives "stored" or "failed" per relay attempt.
	// The HTTP layer wires it to the Prometheus counter.
	Observe func(result string)
}

func (r *MediaRelay) observe(result string) {
	if r.Observe != nil {
		r.Observe(result)
	}
}

const (
	defaultURLTTL   = time.Hour
	defaultMaxBytes = 32 << 20
)

// Relay fetches remoteURL once, stores it under a tenant-scoped
// time-suffixed path, and returns the signed locator. No retry is performed;
// callers treat any error as "no media".
func (r *MediaRelay) Relay(ctx context.Context, tenantID, remoteURL, fileName, mimeType string) (*MediaAsset, error) {
	tr := otel.Tracer("services/MediaRelay")
	ctx, span := tr.Start(ctx, "Relay",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	data, err := r.fetch(ctx, remoteURL)
	if err != nil {
		return nil, err
	}

	p := r.objectPath(tenantID, fileName, mimeType)
	if err := r.Store.Put(ctx, p, data, mimeType); err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}

	url, exp, err := r.Store.SignedURL(p, r.ttl())
	if err != nil {
		return nil, err
	}
	return &MediaAsset{Path: p, URL: url, ExpiresAt: exp}, nil
}

// Attach relays the media referenced by msg and records the locator on the
// already-persisted row. Failures are logged and swallowed: the message
// stands on its text content and the UI shows media as unavailable.
func (r *MediaRelay) Attach(ctx context.Context, msg *domain.Message, remoteURL string) {
	if remoteURL == "" || !msg.HasMedia() {
		return
	}
	asset, err := r.Relay(ctx, msg.TenantID, remoteURL, msg.FileName, msg.MimeType)
	if err != nil {
		r.observe("failed")
		r.Log.Warn().Err(err).Str("message_id", msg.ID).Msg("media relay failed, message kept without media")
		return
	}
	r.observe("stored")
	if err := repo.UpdateMessageMedia(ctx, r.DB, msg.ID, asset.Path, asset.URL, asset.ExpiresAt); err != nil {
		r.Log.Warn().Err(err).Str("message_id", msg.ID).Msg("media locator update failed")
		return
	}
	msg.MediaPath = &asset.Path
	msg.MediaURL = &asset.URL
	msg.MediaURLExpiresAt = &asset.ExpiresAt
}

// RefreshURL re-signs the stored object of a message whose previous URL
// expired. It never re-fetches from the provider.
func (r *MediaRelay) RefreshURL(ctx context.Context, msg *domain.Message) (*MediaAsset, error) {
	if msg.MediaPath == nil || *msg.MediaPath == "" {
		return nil, ErrNoMedia
	}
	url, exp, err := r.Store.SignedURL(*msg.MediaPath, r.ttl())
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateMessageMedia(ctx, r.DB, msg.ID, *msg.MediaPath, url, exp); err != nil {
		return nil, err
	}
	return &MediaAsset{Path: *msg.MediaPath, URL: url, ExpiresAt: exp}, nil
}

// fetch performs the single-attempt download with the size cap applied.
func (r *MediaRelay) fetch(ctx context.Context, remoteURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("media fetch: %w", err)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch: unexpected status %d", resp.StatusCode)
	}

	max := r.MaxBytes
	if max <= 0 {
		max = defaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, max+1))
	if err != nil {
		return nil, fmt.Errorf("media fetch: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("media fetch: asset exceeds %d bytes", max)
	}
	return data, nil
}

// objectPath builds the tenant-scoped, time-suffixed object path. Paths are
// never reused: the uuid segment makes every relay unique.
func (r *MediaRelay) objectPath(tenantID, fileName, mimeType string) string {
	name := sanitizeFileName(fileName)
	if name == "" {
		name = "asset" + extForMime(mimeType)
	}
	now := time.Now().UTC()
	return path.Join(
		tenantID,
		now.Format("2006/01"),
		fmt.Sprintf("%d-%s-%s", now.Unix(), uuid.NewString(), name),
	)
}

func (r *MediaRelay) ttl() time.Duration {
	if r.URLTTL > 0 {
		return r.URLTTL
	}
	return defaultURLTTL
}

// sanitizeFileName keeps a conservative character set so stored names are
// safe in paths and URLs.
func sanitizeFileName(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

func extForMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(mime, "image/png"):
		return ".png"
	case strings.HasPrefix(mime, "video/"):
		return ".mp4"
	case strings.HasPrefix(mime, "audio/"):
		return ".ogg"
	case strings.HasPrefix(mime, "application/pdf"):
		return ".pdf"
	default:
		return ".bin"
	}
}
