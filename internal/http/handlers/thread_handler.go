// Thread HTTP handlers.
//
// This file exposes REST endpoints for conversation threads:
//   - GET   /threads        (list, paginated, tenant-scoped)
//   - PATCH /threads/:id    (open or close a thread)
//
// Handlers are transport-thin: they validate input, call application
// services under the caller's tenant scope, and translate results into HTTP
// responses. Tenant isolation itself lives in the service layer; handlers
// only build the Scope and map ErrCrossTenant to 403.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legalflow/messaging-backend/internal/domain"
	"github.com/legalflow/messaging-backend/internal/http/middleware"
	"github.com/legalflow/messaging-backend/internal/repo"
	"github.com/legalflow/messaging-backend/internal/services"
	"github.com/legalflow/messaging-backend/internal/storage"
	"github.com/legalflow/messaging-backend/internal/utils"
)

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for webhooks, threads, messages, and
// media. It holds the concrete pipeline services; transport concerns stay
// here, pipeline semantics stay in internal/services.
type Handlers struct {
	DB         *gorm.DB
	Dispatcher *services.Dispatcher
	Guard      *services.Guard
	Media      *services.MediaRelay
	Store      *storage.DiskStore

	// IdemTTL is how long a recorded Idempotency-Key replays. Zero means 24h.
	IdemTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(db *gorm.DB, disp *services.Dispatcher, guard *services.Guard, media *services.MediaRelay, store *storage.DiskStore, idemTTL time.Duration) *Handlers {
	return &Handlers{DB: db, Dispatcher: disp, Guard: guard, Media: media, Store: store, IdemTTL: idemTTL}
}

// scope builds the tenant scope for user-originated calls from the identity
// stashed by the tenant middleware.
func scope(c *gin.Context) services.Scope {
	id, _ := middleware.GetTenantID(c)
	return services.Scope{TenantID: id}
}

//
// DTOs
//

// UpdateThreadRequest is the JSON payload for PATCH /threads/:id.
type UpdateThreadRequest struct {
	// Status must be "active" or "closed".
	Status string `json:"status" binding:"required"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListThreadsResponse wraps a page of threads and pagination information.
type ListThreadsResponse struct {
	Threads    []domain.Thread `json:"threads"`
	Pagination Pagination      `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// ListThreads returns a page of the tenant's threads ordered by recent
// activity (last_message_at desc, nulls last). Each thread row preloads its
// contact so inbox views need no follow-up requests.
func (h *Handlers) ListThreads(c *gin.Context) {
	ctx := c.Request.Context()
	sc := scope(c)
	page, pageSize := clampPagination(c)

	total, err := repo.CountThreads(ctx, h.DB, sc.TenantID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListThreadsPage(ctx, h.DB, sc.TenantID, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListThreadsResponse{
		Threads: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// UpdateThread opens or closes a thread. Reopening fails with 409 when the
// contact already has another open thread on the same account.
func (h *Handlers) UpdateThread(c *gin.Context) {
	ctx := c.Request.Context()
	threadID := c.Param("id")
	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}

	var req UpdateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != domain.ThreadActive && status != domain.ThreadClosed {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `status must be "active" or "closed"`)
		return
	}

	thread, err := h.Guard.Thread(ctx, scope(c), threadID)
	if err != nil {
		failFromService(c, err)
		return
	}
	if thread.Status == status {
		noContent(c)
		return
	}

	if err := repo.UpdateThreadStatus(ctx, h.DB, threadID, status); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			fail(c, http.StatusConflict, ErrCodeConflict, "contact already has an open thread")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// failFromService maps the service layer's sentinel errors onto the HTTP
// error envelope. Cross-tenant references are forbidden, not hidden: the
// caller learns the record exists but is not theirs.
func failFromService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrCrossTenant):
		fail(c, http.StatusForbidden, ErrCodeCrossTenant, "record belongs to another tenant")
	case errors.Is(err, services.ErrThreadNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
	case errors.Is(err, services.ErrAccountNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "account not found")
	case errors.Is(err, services.ErrThreadClosed):
		fail(c, http.StatusConflict, ErrCodeThreadClosed, "thread is closed")
	case errors.Is(err, services.ErrEmptyBody):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
	case errors.Is(err, services.ErrNoMedia):
		fail(c, http.StatusConflict, ErrCodeNoMedia, "message has no stored media")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
