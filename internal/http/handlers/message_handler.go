// Message HTTP handlers.
//
// This file exposes REST endpoints for thread messages:
//   - POST /threads/{id}/messages   (queue an outbound send)
//   - GET  /threads/{id}/messages   (list paginated messages for a thread)
//
// Handlers are transport-thin:
//   - validate & normalize inputs
//   - delegate to the dispatcher under the caller's tenant scope
//   - implement idempotency semantics for sends
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// send exists for (tenant, thread, key), the handler returns that recorded
// message and sets `Idempotency-Replayed: true` instead of queueing again.
package handlers

import (
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/legalflow/messaging-backend/internal/domain"
	"github.com/legalflow/messaging-backend/internal/http/middleware"
	"github.com/legalflow/messaging-backend/internal/repo"
)

// maxMessageRunes caps outbound text at the edge. The messaging gateways
// reject longer bodies anyway.
const maxMessageRunes = 4096

//
// DTOs
//

// PostMessageRequest is the JSON payload for queueing an outbound message.
type PostMessageRequest struct {
	// Content is the message text. It must be non-empty.
	Content string `json:"content" binding:"required,min=1"`
}

// PostMessageResponse is the JSON envelope for a queued outbound message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a page of thread messages and pagination
// metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// PostMessage queues an outbound message on a thread. The message is
// persisted as QUEUED and handed to the dispatch queue; delivery receipts
// from the provider advance its status later. Supports idempotent retries
// via the Idempotency-Key header.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	threadID := c.Param("id")

	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	if utf8.RuneCountInString(content) > maxMessageRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content too long")
		return
	}

	sc := scope(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if rec, err := repo.GetIdempotency(ctx, h.DB, sc.TenantID, threadID, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err2 := repo.GetMessage(ctx, h.DB, rec.MessageID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, PostMessageResponse{Message: prev})
				return
			}
		}
	}

	m, err := h.Dispatcher.Send(ctx, sc, threadID, content)
	if err != nil {
		failFromService(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		ttl := h.IdemTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		_, _ = repo.CreateIdempotency(ctx, h.DB, sc.TenantID, threadID, idemKey, m.ID, http.StatusCreated, ttl)
	}

	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages returns a page of messages for a thread in chronological
// order. The thread must belong to the caller's tenant.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	threadID := c.Param("id")

	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}

	if _, err := h.Guard.Thread(ctx, scope(c), threadID); err != nil {
		failFromService(c, err)
		return
	}

	page, pageSize := clampPagination(c)

	total, err := repo.CountMessages(ctx, h.DB, threadID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListMessagesPage(ctx, h.DB, threadID, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
