package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/gitingest-pipeline/internal/cache"
	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/storage"
)

// Handler handles API requests
type Handler struct {
	gate *cache.Gate
	runs storage.RunStore
}

// NewHandler creates a new API handler
func NewHandler(gate *cache.Gate, runs storage.RunStore) *Handler {
	return &Handler{
		gate: gate,
		runs: runs,
	}
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// GetRuns returns the most recent pipeline runs
// GET /api/v1/runs?limit=20
func (h *Handler) GetRuns(c *gin.Context) {
	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			respondError(c, apperrors.NewBadRequestError("limit must be between 1 and 1000", err))
			return
		}
		limit = n
	}

	runs, err := h.runs.GetRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, apperrors.NewInternalError("failed to list runs", err))
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": runs,
	})
}

// GetCacheEntry checks or reads a cache entry.
// With ?pushedAt= the gate decides: 200 with the entry on a hit, 404 with the
// reason otherwise. Without it the stored entry is returned as is.
// GET /cache/:org/:repo
func (h *Handler) GetCacheEntry(c *gin.Context) {
	org := c.Param("org")
	name := c.Param("repo")

	raw := c.Query("pushedAt")
	if raw == "" {
		entry, err := h.gate.Entry(c.Request.Context(), org, name)
		if apperrors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"reason": domain.CacheMiss})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
		return
	}

	pushedAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("pushedAt must be an RFC3339 timestamp", err))
		return
	}

	res := h.gate.Check(c.Request.Context(), domain.Repository{Org: org, Name: name, PushedAt: pushedAt})
	if res.NeedsProcessing {
		c.JSON(http.StatusNotFound, gin.H{"reason": res.Reason})
		return
	}
	c.JSON(http.StatusOK, res.Entry)
}

type putCacheRequest struct {
	PushedAt string `json:"pushedAt" binding:"required"`
}

// PutCacheEntry records a completed upload
// PUT /cache/:org/:repo
func (h *Handler) PutCacheEntry(c *gin.Context) {
	var req putCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("body must contain pushedAt", err))
		return
	}
	pushedAt, err := time.Parse(time.RFC3339, req.PushedAt)
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("pushedAt must be an RFC3339 timestamp", err))
		return
	}

	repo := domain.Repository{Org: c.Param("org"), Name: c.Param("repo"), PushedAt: pushedAt}
	if err := h.gate.Put(c.Request.Context(), repo); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetCacheStats returns the gate counters since the server started
// GET /cache/stats
func (h *Handler) GetCacheStats(c *gin.Context) {
	s := h.gate.Stats()
	c.JSON(http.StatusOK, gin.H{
		"totalChecks":   s.Checks,
		"hits":          s.Hits,
		"misses":        s.Misses,
		"stale":         s.Stale,
		"writeFailures": s.WriteFailures,
		"hitRate":       s.HitRate(),
	})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeCacheRead, apperrors.ErrCodeCacheWrite:
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
