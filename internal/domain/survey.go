package domain

import "time"

// SurveyTTL is how long a satisfaction survey stays answerable.
const SurveyTTL = 7 * 24 * time.Hour

// Survey tracks an outstanding post-close satisfaction prompt. At most one
// survey is active per ticket; it is destroyed on response or expiry.
type Survey struct {
	TicketID  string    `json:"ticketId"`
	GuildID   string    `json:"guildId"`
	UserID    string    `json:"userId"`
	SentAt    time.Time `json:"sentAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the survey can no longer be answered.
func (s *Survey) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
