package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-service/internal/transcript"
)

// TranscriptHandler serves rendered transcripts of closed tickets.
type TranscriptHandler struct {
	transcripts *transcript.Generator
}

// NewTranscriptHandler returns a new handler instance.
func NewTranscriptHandler(transcripts *transcript.Generator) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

// Get serves GET /tickets/:ticketID/transcript as markdown.
func (h *TranscriptHandler) Get(c *fiber.Ctx) error {
	data, err := h.transcripts.Read(c.Params("ticketID"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	return c.Send(data)
}
