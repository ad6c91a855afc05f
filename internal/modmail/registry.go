package modmail

import (
	"sync"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/pkg/util"
)

// Registry owns the authoritative in-memory set of open tickets. Secondary
// indices (channel, thread, guild+user) are maintained alongside the primary
// map so event handlers never scan the full set. Mutations to a single ticket
// are serialized with a per-ticket lock held by the caller via Lock.
type Registry struct {
	mu        sync.RWMutex
	tickets   map[string]*domain.Ticket
	byChannel map[string]string
	byThread  map[string]string
	byUser    map[string]string
	locks     map[string]*sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tickets:   make(map[string]*domain.Ticket),
		byChannel: make(map[string]string),
		byThread:  make(map[string]string),
		byUser:    make(map[string]string),
		locks:     make(map[string]*sync.Mutex),
	}
}

func userKey(guildID, userID string) string {
	return guildID + "|" + userID
}

// Add registers an open ticket. At most one open ticket may exist per
// guild+user pair; a second is a conflict.
func (r *Registry) Add(ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tickets[ticket.ID]; exists {
		return util.NewConflict("ticket already registered", map[string]any{"ticket_id": ticket.ID})
	}
	if existing, ok := r.byUser[userKey(ticket.GuildID, ticket.UserID)]; ok {
		return util.NewConflict("user already has an open ticket", map[string]any{"ticket_id": existing})
	}

	r.tickets[ticket.ID] = ticket
	r.index(ticket)
	return nil
}

// index must be called with r.mu held.
func (r *Registry) index(ticket *domain.Ticket) {
	r.byUser[userKey(ticket.GuildID, ticket.UserID)] = ticket.ID
	if !ticket.ThreadMode() {
		r.byChannel[ticket.ChannelID] = ticket.ID
	}
	if ticket.ThreadID != "" {
		r.byThread[ticket.ThreadID] = ticket.ID
	}
}

// Remove drops a ticket and its index entries.
func (r *Registry) Remove(ticketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok {
		return
	}
	delete(r.tickets, ticketID)
	delete(r.byUser, userKey(ticket.GuildID, ticket.UserID))
	// In legacy mode tickets can share a container channel. If the index
	// pointed at the removed ticket, hand the channel to another open
	// legacy ticket there so the survivor stays resolvable via BySurface.
	if !ticket.ThreadMode() && r.byChannel[ticket.ChannelID] == ticketID {
		delete(r.byChannel, ticket.ChannelID)
		for id, other := range r.tickets {
			if !other.ThreadMode() && other.ChannelID == ticket.ChannelID {
				r.byChannel[ticket.ChannelID] = id
				break
			}
		}
	}
	if ticket.ThreadID != "" {
		delete(r.byThread, ticket.ThreadID)
	}
	delete(r.locks, ticketID)
}

// Get returns an open ticket by id.
func (r *Registry) Get(ticketID string) (*domain.Ticket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[ticketID]
	return ticket, ok
}

// ByUser returns the user's open ticket in a guild, if any.
func (r *Registry) ByUser(guildID, userID string) (*domain.Ticket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUser[userKey(guildID, userID)]
	if !ok {
		return nil, false
	}
	return r.tickets[id], true
}

// BySurface resolves the ticket a message surface belongs to: the thread
// index first, then the channel index for legacy-mode tickets.
//
// Legacy-mode caveat: a container channel maps to one ticket at a time, the
// most recently indexed. With several open legacy tickets in one channel the
// others stay reachable only via Get or ByUser; thread mode avoids the
// ambiguity entirely.
func (r *Registry) BySurface(surfaceID string) (*domain.Ticket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byThread[surfaceID]; ok {
		return r.tickets[id], true
	}
	if id, ok := r.byChannel[surfaceID]; ok {
		return r.tickets[id], true
	}
	return nil, false
}

// Snapshot copies the current open-ticket set for persistence.
func (r *Registry) Snapshot() []domain.Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tickets := make([]domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		tickets = append(tickets, *ticket)
	}
	return tickets
}

// OpenCount reports how many tickets are open in a guild.
func (r *Registry) OpenCount(guildID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, ticket := range r.tickets {
		if ticket.GuildID == guildID {
			count++
		}
	}
	return count
}

// OpenAssignedCount reports how many open tickets in a guild are assigned
// to a staff member.
func (r *Registry) OpenAssignedCount(guildID, staffID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, ticket := range r.tickets {
		if ticket.GuildID == guildID && ticket.AssignedTo == staffID {
			count++
		}
	}
	return count
}

// Len reports the total number of open tickets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tickets)
}

// Restore replaces the registry contents from a loaded snapshot. Used at
// startup after integrity verification.
func (r *Registry) Restore(tickets []*domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tickets = make(map[string]*domain.Ticket, len(tickets))
	r.byChannel = make(map[string]string)
	r.byThread = make(map[string]string)
	r.byUser = make(map[string]string)
	r.locks = make(map[string]*sync.Mutex)
	for _, ticket := range tickets {
		r.tickets[ticket.ID] = ticket
		r.index(ticket)
	}
}

// Lock acquires the per-ticket mutation lock and returns its release func.
// The lock outlives registry removal within one operation; callers always
// pair Lock with a deferred release.
func (r *Registry) Lock(ticketID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[ticketID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[ticketID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
