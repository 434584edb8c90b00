// Media HTTP handlers.
//
// Two endpoints cover stored media:
//   - POST /api/v1/messages/:id/media/refresh re-signs the stored object of
//     a message whose previous URL expired. It never re-fetches from the
//     provider; the binary is already ours.
//   - GET /media/*path serves a stored object after verifying the exp/sig
//     query pair. The route is public (no tenant header): possession of a
//     valid signature is the capability, same as a presigned bucket URL.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/legalflow/messaging-backend/internal/storage"
)

// RefreshMediaResponse carries the re-signed URL for a message's media.
type RefreshMediaResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshMedia re-signs the stored media of a message owned by the caller's
// tenant.
func (h *Handlers) RefreshMedia(c *gin.Context) {
	ctx := c.Request.Context()
	messageID := c.Param("id")

	if _, err := uuid.Parse(messageID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}

	msg, err := h.Guard.Message(ctx, scope(c), messageID)
	if err != nil {
		failFromService(c, err)
		return
	}

	asset, err := h.Media.RefreshURL(ctx, msg)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, RefreshMediaResponse{URL: asset.URL, ExpiresAt: asset.ExpiresAt})
}

// ServeMedia verifies a signed media URL and streams the stored file.
func (h *Handlers) ServeMedia(c *gin.Context) {
	path := c.Param("path")
	exp := c.Query("exp")
	sig := c.Query("sig")

	full, err := h.Store.Verify(path, exp, sig)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "object not found")
		default:
			// Expired and tampered URLs are indistinguishable on purpose.
			fail(c, http.StatusForbidden, ErrCodeBadSignature, "invalid or expired signature")
		}
		return
	}

	c.File(full)
}
