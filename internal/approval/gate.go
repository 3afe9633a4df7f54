package approval

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlpilot/sqlpilot/internal/session"
)

var ErrTicketNotFound = errors.New("approval ticket not found")

// Ticket is a parked mutation. Snapshot is a deep copy of the session at the
// moment it was suspended and is never handed out without cloning.
type Ticket struct {
	ID        string
	SessionID string
	SQL       string
	Reason    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Snapshot  session.State

	seq uint64
}

// Summary is the listing view of a ticket.
type Summary struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SQL       string    `json:"sql"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Config struct {
	TTL time.Duration
	Now func() time.Time
}

// Gate holds pending tickets keyed by id. Every operation takes the same
// lock; a ticket can be taken exactly once.
type Gate struct {
	mu      sync.Mutex
	tickets map[string]Ticket
	nextSeq uint64
	ttl     time.Duration
	now     func() time.Time
}

func NewGate(cfg Config) *Gate {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{tickets: map[string]Ticket{}, ttl: cfg.TTL, now: now}
}

func (g *Gate) Enqueue(sql, reason string, snapshot session.State) Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()

	createdAt := g.now().UTC()
	ticket := Ticket{
		ID:        uuid.NewString(),
		SessionID: snapshot.SessionID,
		SQL:       sql,
		Reason:    reason,
		CreatedAt: createdAt,
		Snapshot:  snapshot.Clone(),
		seq:       g.nextSeq,
	}
	if g.ttl > 0 {
		ticket.ExpiresAt = createdAt.Add(g.ttl)
	}
	g.nextSeq++
	g.tickets[ticket.ID] = ticket
	return ticket.clone()
}

// List returns pending tickets in creation order.
func (g *Gate) List() []Summary {
	g.mu.Lock()
	defer g.mu.Unlock()

	ordered := g.orderedLocked()
	out := make([]Summary, 0, len(ordered))
	for _, ticket := range ordered {
		out = append(out, ticket.summary())
	}
	return out
}

// Take removes and returns the ticket. A second Take for the same id fails
// with ErrTicketNotFound.
func (g *Gate) Take(id string) (Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ticket, ok := g.tickets[id]
	if !ok {
		return Ticket{}, ErrTicketNotFound
	}
	delete(g.tickets, id)
	return ticket.clone(), nil
}

// Expire removes every ticket whose deadline is at or before now.
func (g *Gate) Expire(now time.Time) []Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()

	expired := make([]Ticket, 0)
	for _, ticket := range g.orderedLocked() {
		if ticket.ExpiresAt.IsZero() || ticket.ExpiresAt.After(now) {
			continue
		}
		delete(g.tickets, ticket.ID)
		expired = append(expired, ticket.clone())
	}
	return expired
}

func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tickets)
}

func (g *Gate) orderedLocked() []Ticket {
	ordered := make([]Ticket, 0, len(g.tickets))
	for _, ticket := range g.tickets {
		ordered = append(ordered, ticket)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	return ordered
}

func (t Ticket) clone() Ticket {
	out := t
	out.Snapshot = t.Snapshot.Clone()
	return out
}

func (t Ticket) summary() Summary {
	return Summary{
		ID:        t.ID,
		SessionID: t.SessionID,
		SQL:       t.SQL,
		Reason:    t.Reason,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}
