package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/timeline-comb/app/authors"
	"github.com/lysyi3m/timeline-comb/app/database"
	"github.com/lysyi3m/timeline-comb/app/feed"
	"github.com/lysyi3m/timeline-comb/app/tasks"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// NewHandler returns the HTTP handlers. history may be nil when run history
// is disabled.
func NewHandler(feeds FeedReader, authorCounter AuthorCounter, history database.HistoryRepository,
	scheduler HarvestScheduler, version string) *Handler {
	return &Handler{
		feeds:     feeds,
		authors:   authorCounter,
		history:   history,
		scheduler: scheduler,
		version:   version,
	}
}

// WithMetrics exposes metrics on /metrics.
func (h *Handler) WithMetrics(metrics http.Handler) *Handler {
	h.metrics = metrics
	return h
}

func (h *Handler) GetFeed(c *gin.Context) {
	handle := strings.TrimSuffix(c.Param("handle"), ".xml")
	if !authors.ValidHandle(handle) {
		c.Status(http.StatusBadRequest)
		return
	}

	data, modTime, err := h.feeds.Read(handle)
	if errors.Is(err, feed.ErrFeedNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to read feed", "author", handle, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	c.Header("X-Feed-Author", handle)
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", data)
}

func (h *Handler) ListFeeds(c *gin.Context) {
	handles, err := h.feeds.Handles()
	if err != nil {
		slog.Error("Failed to list feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list feeds"})
		return
	}

	feeds := make([]gin.H, 0, len(handles))
	for _, handle := range handles {
		feeds = append(feeds, gin.H{
			"author": handle,
			"url":    "/feeds/" + handle + ".xml",
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if handles, err := h.feeds.Handles(); err == nil {
		health["feeds"] = len(handles)
	}
	if h.authors != nil {
		health["loaded_authors"] = h.authors.GetAuthorCount()
	}
	if h.scheduler != nil {
		health["harvest_running"] = h.scheduler.Running()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"version": h.version,
	}

	if h.scheduler != nil {
		if last, ok := h.scheduler.LastRun(); ok {
			stats["last_run"] = last
		}
	}

	if h.history != nil {
		authorStats, err := h.history.GetAuthorStats(c.Request.Context())
		if err != nil {
			slog.Error("Database error", "operation", "get_author_stats", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		stats["authors"] = authorStats
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APITriggerHarvest(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Harvesting is not scheduled"})
		return
	}

	if err := h.scheduler.EnqueueRun(); err != nil {
		if errors.Is(err, tasks.ErrRunPending) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "Harvest already pending",
				"details": err.Error(),
			})
			return
		}
		slog.Error("Error enqueueing harvest", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue harvest",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Harvest enqueued",
		"running": h.scheduler.Running(),
	})
}

func (h *Handler) APIListRuns(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run history is disabled"})
		return
	}

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.history.GetRecentRuns(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}
