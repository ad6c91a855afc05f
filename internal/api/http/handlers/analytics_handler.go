package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-service/internal/analytics"
	"github.com/spec-kit/modmail-service/pkg/util"
)

const defaultWindowDays = 30

// AnalyticsHandler serves the read-only analytics views.
type AnalyticsHandler struct {
	engine *analytics.Engine
}

// NewAnalyticsHandler returns a new handler instance.
func NewAnalyticsHandler(engine *analytics.Engine) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine}
}

// Basic serves GET /guilds/:guildID/analytics.
func (h *AnalyticsHandler) Basic(c *fiber.Ctx) error {
	guildID := c.Params("guildID")
	days := c.QueryInt("days", defaultWindowDays)
	if days <= 0 {
		return util.NewValidationError("days must be positive", map[string]any{"days": days})
	}
	return c.JSON(h.engine.BasicStats(guildID, days))
}

// Performance serves GET /guilds/:guildID/performance.
func (h *AnalyticsHandler) Performance(c *fiber.Ctx) error {
	guildID := c.Params("guildID")
	days := c.QueryInt("days", defaultWindowDays)
	if days <= 0 {
		return util.NewValidationError("days must be positive", map[string]any{"days": days})
	}
	return c.JSON(fiber.Map{
		"guild_id":    guildID,
		"window_days": days,
		"staff":       h.engine.StaffPerformance(guildID, days),
	})
}

// Report serves GET /guilds/:guildID/report with filter query parameters.
func (h *AnalyticsHandler) Report(c *fiber.Ctx) error {
	guildID := c.Params("guildID")

	opts := analytics.ReportOptions{
		Days:     c.QueryInt("days", defaultWindowDays),
		StaffID:  c.Query("staff_id"),
		Category: c.Query("category"),
	}
	if tags := c.Query("tags"); tags != "" {
		opts.Tags = strings.Split(tags, ",")
	}
	if metrics := c.Query("metrics"); metrics != "" {
		opts.Metrics = strings.Split(metrics, ",")
	}

	var err error
	if opts.StartDate, err = parseDate(c.Query("start")); err != nil {
		return err
	}
	if opts.EndDate, err = parseDate(c.Query("end")); err != nil {
		return err
	}

	return c.JSON(h.engine.CustomReport(guildID, opts))
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, util.NewValidationError("dates must be YYYY-MM-DD", map[string]any{"value": value})
	}
	return &parsed, nil
}
