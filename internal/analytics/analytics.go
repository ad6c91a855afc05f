// Package analytics computes read-only aggregates over the ticket history
// archive. Nothing here mutates state or touches open-ticket locks.
package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/internal/storage"
)

// TopN is how many entries leaderboards carry.
const TopN = 5

// OpenCounter reports open-ticket counts from the live registry. Optional;
// without one, totals cover archived tickets only.
type OpenCounter interface {
	OpenCount(guildID string) int
	OpenAssignedCount(guildID, staffID string) int
}

// Engine derives statistics from archived tickets filtered to a time window.
type Engine struct {
	history *storage.HistoryStore
	open    OpenCounter
	now     func() time.Time
}

// NewEngine creates an analytics engine. open may be nil.
func NewEngine(history *storage.HistoryStore, open OpenCounter) *Engine {
	return &Engine{history: history, open: open, now: time.Now}
}

// NewEngineWithClock is NewEngine with an injected clock, for tests.
func NewEngineWithClock(history *storage.HistoryStore, open OpenCounter, now func() time.Time) *Engine {
	e := NewEngine(history, open)
	e.now = now
	return e
}

// UserActivity is one leaderboard row for ticket-opening users.
type UserActivity struct {
	UserID  string `json:"userId"`
	UserTag string `json:"userTag,omitempty"`
	Tickets int    `json:"tickets"`
}

// StaffActivity is one leaderboard row for staff, with their rating average.
type StaffActivity struct {
	StaffID       string  `json:"staffId"`
	DisplayName   string  `json:"displayName,omitempty"`
	Tickets       int     `json:"tickets"`
	AverageRating float64 `json:"averageRating,omitempty"`
}

// SatisfactionStats is the rating distribution for a window.
type SatisfactionStats struct {
	Distribution map[int]int `json:"distribution"`
	Responses    int         `json:"responses"`
	Average      float64     `json:"average,omitempty"`
	ResponseRate float64     `json:"responseRate"`
}

// BasicStats is the standard per-guild analytics summary.
type BasicStats struct {
	GuildID                 string            `json:"guildId"`
	WindowDays              int               `json:"windowDays"`
	TotalTickets            int               `json:"totalTickets"`
	ClosedTickets           int               `json:"closedTickets"`
	OpenTickets             int               `json:"openTickets"`
	CloseRate               float64           `json:"closeRate"`
	AvgFirstResponseMinutes float64           `json:"avgFirstResponseMinutes"`
	AvgResolutionHours      float64           `json:"avgResolutionHours"`
	Categories              map[string]int    `json:"categories"`
	Priorities              map[string]int    `json:"priorities"`
	Tags                    map[string]int    `json:"tags"`
	TicketsPerDay           map[string]int    `json:"ticketsPerDay"`
	TopUsers                []UserActivity    `json:"topUsers"`
	TopStaff                []StaffActivity   `json:"topStaff"`
	Satisfaction            SatisfactionStats `json:"satisfaction"`
}

const dayLayout = "2006-01-02"

// BasicStats computes the summary for tickets created in the last `days`
// days. Deterministic for a fixed archive and clock.
func (e *Engine) BasicStats(guildID string, days int) *BasicStats {
	records := e.window(guildID, days, nil, nil)

	stats := &BasicStats{
		GuildID:    guildID,
		WindowDays: days,
		Categories: make(map[string]int),
		Priorities: make(map[string]int),
		Tags:       make(map[string]int),
		Satisfaction: SatisfactionStats{
			Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		},
	}

	// Every day in the window appears, zero or not, so chart consumers get a
	// contiguous series.
	stats.TicketsPerDay = make(map[string]int, days)
	today := e.now().UTC()
	for i := 0; i < days; i++ {
		stats.TicketsPerDay[today.AddDate(0, 0, -i).Format(dayLayout)] = 0
	}

	userCounts := make(map[string]*UserActivity)
	staffCounts := make(map[string]*StaffActivity)
	staffRatings := make(map[string][]int)
	var responseSum time.Duration
	responseN := 0
	var resolutionSum time.Duration
	resolutionN := 0
	ratingSum := 0

	for _, r := range records {
		stats.ClosedTickets++
		day := r.CreatedAt.UTC().Format(dayLayout)
		if _, ok := stats.TicketsPerDay[day]; ok {
			stats.TicketsPerDay[day]++
		}
		if r.Category != "" {
			stats.Categories[r.Category]++
		}
		if r.Priority != "" {
			stats.Priorities[string(r.Priority)]++
		}
		for _, tag := range r.Tags {
			stats.Tags[tag]++
		}

		if r.FirstResponseTime != nil {
			responseSum += r.FirstResponseTime.Sub(r.CreatedAt)
			responseN++
		}
		resolutionSum += r.ClosedAt.Sub(r.CreatedAt)
		resolutionN++

		u := userCounts[r.UserID]
		if u == nil {
			u = &UserActivity{UserID: r.UserID, UserTag: r.UserTag}
			userCounts[r.UserID] = u
		}
		u.Tickets++

		if r.AssignedTo != "" {
			s := staffCounts[r.AssignedTo]
			if s == nil {
				s = &StaffActivity{StaffID: r.AssignedTo, DisplayName: r.AssignedToTag}
				staffCounts[r.AssignedTo] = s
			}
			s.Tickets++
			if r.SatisfactionRating > 0 {
				staffRatings[r.AssignedTo] = append(staffRatings[r.AssignedTo], r.SatisfactionRating)
			}
		}

		if r.SatisfactionRating >= 1 && r.SatisfactionRating <= 5 {
			stats.Satisfaction.Distribution[r.SatisfactionRating]++
			stats.Satisfaction.Responses++
			ratingSum += r.SatisfactionRating
		}
	}

	stats.TotalTickets = stats.ClosedTickets
	if e.open != nil {
		stats.OpenTickets = e.open.OpenCount(guildID)
		stats.TotalTickets += stats.OpenTickets
	}
	if stats.TotalTickets > 0 {
		stats.CloseRate = float64(stats.ClosedTickets) / float64(stats.TotalTickets) * 100
	}
	if responseN > 0 {
		stats.AvgFirstResponseMinutes = (responseSum / time.Duration(responseN)).Minutes()
	}
	if resolutionN > 0 {
		stats.AvgResolutionHours = (resolutionSum / time.Duration(resolutionN)).Hours()
	}
	if stats.Satisfaction.Responses > 0 {
		stats.Satisfaction.Average = float64(ratingSum) / float64(stats.Satisfaction.Responses)
	}
	if stats.ClosedTickets > 0 {
		stats.Satisfaction.ResponseRate = float64(stats.Satisfaction.Responses) / float64(stats.ClosedTickets) * 100
	}

	for id, ratings := range staffRatings {
		staffCounts[id].AverageRating = averageInt(ratings)
	}
	stats.TopUsers = topUsers(userCounts)
	stats.TopStaff = topStaff(staffCounts)
	return stats
}

// StaffPerformance is one row of the per-staff report.
type StaffPerformance struct {
	StaffID            string         `json:"staffId"`
	DisplayName        string         `json:"displayName,omitempty"`
	TicketsHandled     int            `json:"ticketsHandled"`
	TicketsClosed      int            `json:"ticketsClosed"`
	CloseRate          float64        `json:"closeRate"`
	AvgResponseMinutes float64        `json:"avgResponseMinutes"`
	AvgResolutionHours float64        `json:"avgResolutionHours"`
	AverageRating      float64        `json:"averageRating,omitempty"`
	Ratings            int            `json:"ratings"`
	Categories         map[string]int `json:"categories"`
	Tags               map[string]int `json:"tags"`
}

// StaffPerformance reports per-staff numbers for tickets created in the
// window, sorted by tickets handled descending.
func (e *Engine) StaffPerformance(guildID string, days int) []StaffPerformance {
	records := e.window(guildID, days, nil, nil)

	type acc struct {
		perf          StaffPerformance
		responseSum   time.Duration
		responseN     int
		resolutionSum time.Duration
		ratings       []int
	}
	byStaff := make(map[string]*acc)

	for _, r := range records {
		if r.AssignedTo == "" {
			continue
		}
		a := byStaff[r.AssignedTo]
		if a == nil {
			a = &acc{perf: StaffPerformance{
				StaffID:     r.AssignedTo,
				DisplayName: r.AssignedToTag,
				Categories:  make(map[string]int),
				Tags:        make(map[string]int),
			}}
			byStaff[r.AssignedTo] = a
		}
		a.perf.TicketsClosed++
		if r.FirstResponseTime != nil {
			a.responseSum += r.FirstResponseTime.Sub(r.CreatedAt)
			a.responseN++
		}
		a.resolutionSum += r.ClosedAt.Sub(r.CreatedAt)
		if r.Category != "" {
			a.perf.Categories[r.Category]++
		}
		for _, tag := range r.Tags {
			a.perf.Tags[tag]++
		}
		if r.SatisfactionRating > 0 {
			a.ratings = append(a.ratings, r.SatisfactionRating)
		}
	}

	rows := make([]StaffPerformance, 0, len(byStaff))
	for id, a := range byStaff {
		a.perf.TicketsHandled = a.perf.TicketsClosed
		if e.open != nil {
			a.perf.TicketsHandled += e.open.OpenAssignedCount(guildID, id)
		}
		if a.perf.TicketsHandled > 0 {
			a.perf.CloseRate = float64(a.perf.TicketsClosed) / float64(a.perf.TicketsHandled) * 100
		}
		if a.responseN > 0 {
			a.perf.AvgResponseMinutes = (a.responseSum / time.Duration(a.responseN)).Minutes()
		}
		if a.perf.TicketsClosed > 0 {
			a.perf.AvgResolutionHours = (a.resolutionSum / time.Duration(a.perf.TicketsClosed)).Hours()
		}
		a.perf.Ratings = len(a.ratings)
		a.perf.AverageRating = averageInt(a.ratings)
		rows = append(rows, a.perf)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TicketsHandled != rows[j].TicketsHandled {
			return rows[i].TicketsHandled > rows[j].TicketsHandled
		}
		return rows[i].StaffID < rows[j].StaffID
	})
	return rows
}

// Metric names accepted by CustomReport.
const (
	MetricVolume         = "volume"
	MetricResponseTime   = "response_time"
	MetricResolutionTime = "resolution_time"
	MetricSatisfaction   = "satisfaction"
	MetricCategories     = "categories"
	MetricTags           = "tags"
	MetricStaff          = "staff"
)

var allMetrics = []string{
	MetricVolume, MetricResponseTime, MetricResolutionTime,
	MetricSatisfaction, MetricCategories, MetricTags, MetricStaff,
}

// ReportOptions filters a custom report. Days is ignored when explicit
// dates are given. An empty Metrics list computes every metric.
type ReportOptions struct {
	Days      int
	StartDate *time.Time
	EndDate   *time.Time
	StaffID   string
	Category  string
	Tags      []string
	Metrics   []string
}

// Report is a custom filtered report. Metric values are pre-formatted;
// metrics undefined for the matched set carry "N/A" rather than failing.
type Report struct {
	GuildID     string            `json:"guildId"`
	GeneratedAt time.Time         `json:"generatedAt"`
	TicketCount int               `json:"ticketCount"`
	Metrics     map[string]string `json:"metrics"`
}

// CustomReport applies the filters and computes only the requested metrics.
func (e *Engine) CustomReport(guildID string, opts ReportOptions) *Report {
	var records []*domain.HistoryRecord
	if opts.StartDate != nil || opts.EndDate != nil {
		records = e.window(guildID, 0, opts.StartDate, opts.EndDate)
	} else {
		records = e.window(guildID, opts.Days, nil, nil)
	}

	filtered := records[:0:0]
	for _, r := range records {
		if opts.StaffID != "" && r.AssignedTo != opts.StaffID {
			continue
		}
		if opts.Category != "" && r.Category != opts.Category {
			continue
		}
		if len(opts.Tags) > 0 && !hasAnyTag(r.Tags, opts.Tags) {
			continue
		}
		filtered = append(filtered, r)
	}

	metrics := opts.Metrics
	if len(metrics) == 0 {
		metrics = allMetrics
	}

	report := &Report{
		GuildID:     guildID,
		GeneratedAt: e.now(),
		TicketCount: len(filtered),
		Metrics:     make(map[string]string, len(metrics)),
	}
	for _, metric := range metrics {
		report.Metrics[metric] = e.computeMetric(metric, filtered)
	}
	return report
}

func (e *Engine) computeMetric(metric string, records []*domain.HistoryRecord) string {
	switch metric {
	case MetricVolume:
		return fmt.Sprintf("%d tickets", len(records))

	case MetricResponseTime:
		var sum time.Duration
		n := 0
		for _, r := range records {
			if r.FirstResponseTime != nil {
				sum += r.FirstResponseTime.Sub(r.CreatedAt)
				n++
			}
		}
		if n == 0 {
			return "N/A"
		}
		return fmt.Sprintf("%.1f minutes", (sum / time.Duration(n)).Minutes())

	case MetricResolutionTime:
		if len(records) == 0 {
			return "N/A"
		}
		var sum time.Duration
		for _, r := range records {
			sum += r.ClosedAt.Sub(r.CreatedAt)
		}
		return fmt.Sprintf("%.1f hours", (sum / time.Duration(len(records))).Hours())

	case MetricSatisfaction:
		sum, n := 0, 0
		for _, r := range records {
			if r.SatisfactionRating > 0 {
				sum += r.SatisfactionRating
				n++
			}
		}
		if n == 0 {
			return "N/A"
		}
		rate := float64(n) / float64(len(records)) * 100
		return fmt.Sprintf("%.2f/5 from %d responses (%.1f%% response rate)", float64(sum)/float64(n), n, rate)

	case MetricCategories:
		return formatHistogram(histogram(records, func(r *domain.HistoryRecord) []string {
			if r.Category == "" {
				return nil
			}
			return []string{r.Category}
		}))

	case MetricTags:
		return formatHistogram(histogram(records, func(r *domain.HistoryRecord) []string {
			return r.Tags
		}))

	case MetricStaff:
		return formatHistogram(histogram(records, func(r *domain.HistoryRecord) []string {
			if r.AssignedTo == "" {
				return nil
			}
			name := r.AssignedToTag
			if name == "" {
				name = r.AssignedTo
			}
			return []string{name}
		}))
	}
	return "N/A"
}

// window returns the guild's archived records created inside the bounds.
func (e *Engine) window(guildID string, days int, start, end *time.Time) []*domain.HistoryRecord {
	if start == nil && days > 0 {
		cutoff := e.now().AddDate(0, 0, -days)
		start = &cutoff
	}
	records := e.history.RecordsByGuild(guildID)
	filtered := records[:0:0]
	for _, r := range records {
		if start != nil && r.CreatedAt.Before(*start) {
			continue
		}
		if end != nil && r.CreatedAt.After(*end) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func topUsers(counts map[string]*UserActivity) []UserActivity {
	rows := make([]UserActivity, 0, len(counts))
	for _, u := range counts {
		rows = append(rows, *u)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Tickets != rows[j].Tickets {
			return rows[i].Tickets > rows[j].Tickets
		}
		return rows[i].UserID < rows[j].UserID
	})
	if len(rows) > TopN {
		rows = rows[:TopN]
	}
	return rows
}

func topStaff(counts map[string]*StaffActivity) []StaffActivity {
	rows := make([]StaffActivity, 0, len(counts))
	for _, s := range counts {
		rows = append(rows, *s)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Tickets != rows[j].Tickets {
			return rows[i].Tickets > rows[j].Tickets
		}
		return rows[i].StaffID < rows[j].StaffID
	})
	if len(rows) > TopN {
		rows = rows[:TopN]
	}
	return rows
}

func histogram(records []*domain.HistoryRecord, keys func(*domain.HistoryRecord) []string) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		for _, key := range keys(r) {
			counts[key]++
		}
	}
	return counts
}

func formatHistogram(counts map[string]int) string {
	if len(counts) == 0 {
		return "N/A"
	}
	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for k, c := range counts {
		entries = append(entries, entry{k, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s: %d", e.key, e.count)
	}
	return strings.Join(parts, ", ")
}

func hasAnyTag(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func averageInt(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
