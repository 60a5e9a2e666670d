package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/livebox/cache"
	"github.com/use-agent/livebox/models"
	"github.com/use-agent/livebox/orchestrator"
	"github.com/use-agent/livebox/scraper"
	"github.com/use-agent/livebox/webhook"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
// Flow:
//  1. Parse & validate request, normalize the URL.
//  2. Serve from cache when max_age allows.
//  3. Run the orchestrated scrape for the requested mode.
//  4. Cache the result and emit a room.scraped webhook event.
func Scrape(svc Service, cc *cache.Cache, wh *webhook.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()

		target, err := scraper.NormalizeURL(req.URL)
		if err != nil {
			respondScrapeError(c, err, requestID, start)
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		cacheKey := cache.Key(target, req.Mode)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				cached.RequestID = requestID
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{TotalMs: time.Since(start).Milliseconds()}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Scrape ───────────────────────────────────────────────
		out, err := run(c.Request.Context(), svc, req.Mode, target)
		if err != nil {
			respondScrapeError(c, err, requestID, start)
			return
		}

		resp := &models.ScrapeResponse{
			Success:         true,
			RequestID:       requestID,
			URL:             target,
			Room:            out.Result.Room(),
			Source:          out.Source,
			Attempts:        out.Attempts,
			Reauthenticated: out.Reauthenticated,
			Timing:          models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
		}

		// ── 4. Cache store + webhook ────────────────────────────────
		if cc != nil && req.MaxAge > 0 {
			cc.Set(cacheKey, resp)
			resp.CacheStatus = "miss"
		}
		wh.DeliverAsync(webhook.NewEvent(webhook.EventRoomScraped, requestID, resp))

		slog.Info("room scraped",
			"request_id", requestID,
			"url", target,
			"mode", req.Mode,
			"source", out.Source,
			"attempts", out.Attempts,
			"reauthenticated", out.Reauthenticated,
		)
		c.JSON(http.StatusOK, resp)
	}
}

func run(ctx context.Context, svc Service, mode, target string) (*orchestrator.Outcome, error) {
	switch mode {
	case models.ModeRendered:
		return svc.ScrapeRendered(ctx, target)
	case models.ModeAuto:
		return svc.ScrapeAuto(ctx, target)
	default:
		return svc.Scrape(ctx, target)
	}
}

// respondScrapeError writes a structured JSON error response.
func respondScrapeError(c *gin.Context, err error, requestID string, start time.Time) {
	status, detail := errorDetail(err)
	c.JSON(status, models.ScrapeResponse{
		Success:   false,
		RequestID: requestID,
		Error:     detail,
		Timing:    models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
	})
}
