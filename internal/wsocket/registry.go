package wsocket

import "sync"

// Registry maps each identity to its single live connection. A newer
// connection for the same identity replaces the older one.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register stores c as the identity's connection and returns the connection
// it replaced, if any.
func (r *Registry) Register(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.clients[c.identity.ID]
	r.clients[c.identity.ID] = c
	return previous
}

// Unregister removes c only while it is still the identity's current
// connection. It reports whether c was removed.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[c.identity.ID]; ok && current == c {
		delete(r.clients, c.identity.ID)
		return true
	}
	return false
}

func (r *Registry) Lookup(identityID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[identityID]
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) each(fn func(*Client)) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()
	for _, c := range clients {
		fn(c)
	}
}
