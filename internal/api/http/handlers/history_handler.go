package handlers

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-service/internal/api/dto"
	"github.com/spec-kit/modmail-service/internal/storage"
	"github.com/spec-kit/modmail-service/pkg/util"
)

// HistoryHandler serves archived-ticket search.
type HistoryHandler struct {
	history *storage.HistoryStore
}

// NewHistoryHandler returns a new handler instance.
func NewHistoryHandler(history *storage.HistoryStore) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// Search serves GET /guilds/:guildID/history.
func (h *HistoryHandler) Search(c *fiber.Ctx) error {
	criteria := storage.SearchCriteria{
		GuildID:  c.Params("guildID"),
		UserID:   c.Query("user_id"),
		Username: c.Query("username"),
		TicketID: c.Query("ticket_id"),
		Category: c.Query("category"),
		Content:  c.Query("content"),
		StaffID:  c.Query("staff_id"),
	}
	if tags := c.Query("tags"); tags != "" {
		criteria.Tags = strings.Split(tags, ",")
	}

	var err error
	if criteria.StartDate, err = parseDate(c.Query("start")); err != nil {
		return err
	}
	if criteria.EndDate, err = parseDate(c.Query("end")); err != nil {
		return err
	}
	if criteria.MinRating, err = parseRating(c.Query("min_rating")); err != nil {
		return err
	}
	if criteria.MaxRating, err = parseRating(c.Query("max_rating")); err != nil {
		return err
	}

	records := h.history.Search(criteria)
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	limit := c.QueryInt("limit", 50)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	results := make([]dto.HistorySummary, 0, len(records))
	for _, record := range records {
		results = append(results, dto.NewHistorySummary(record))
	}
	return c.JSON(dto.HistorySearchResponse{Total: len(results), Results: results})
}

// Get serves GET /tickets/:ticketID/history with the full archived record.
func (h *HistoryHandler) Get(c *fiber.Ctx) error {
	ticketID := c.Params("ticketID")
	record, ok := h.history.Record(ticketID)
	if !ok {
		return util.NewNotFound("history record", map[string]any{"ticket_id": ticketID})
	}
	return c.JSON(record)
}

func parseRating(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	rating, err := strconv.Atoi(value)
	if err != nil || rating < 1 || rating > 5 {
		return 0, util.NewValidationError("ratings must be 1-5", map[string]any{"value": value})
	}
	return rating, nil
}
