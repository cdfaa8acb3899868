package exchange

import (
	"github.com/puzpuzpuz/xsync/v3"

	"dropcat.dev/dropcat/ticket"
)

// Registry is the process-lifetime ticket table, keyed by query code. It is
// shared by every in-flight accept, so it is an explicit concurrent map
// rather than a mutex held around lookups. Entries are never evicted; a
// ticket stays servable until the process exits.
type Registry struct {
	m *xsync.MapOf[string, ticket.Ticket]
}

func NewRegistry() *Registry {
	return &Registry{m: xsync.NewMapOf[string, ticket.Ticket]()}
}

// Insert files a ticket under its query code. A colliding query silently
// replaces the earlier ticket.
func (r *Registry) Insert(t ticket.Ticket) {
	r.m.Store(t.Query, t)
}

// Lookup returns the ticket filed under query, if any.
func (r *Registry) Lookup(query string) (ticket.Ticket, bool) {
	return r.m.Load(query)
}

// Len reports the number of servable tickets.
func (r *Registry) Len() int {
	return r.m.Size()
}
