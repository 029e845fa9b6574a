package session

import "sync"

// Session is the transient (client, worker) tuple produced by a
// successful match. Unlike the original client<->worker cyclic
// backlink, neither Connection owns the other; the Registry below is
// the sole owner and both halves reference it only by id.
type Session struct {
	ID     int64
	Client *Connection
	Worker *Connection
}

// Registry is the master's session map. It is the only place a Session
// is created or destroyed; Connections only carry the id.
type Registry struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]*Session
	byHost  map[string]int64 // hostID -> session id, both roles share the space
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[int64]*Session), byHost: make(map[string]int64)}
}

// Pair creates a new session for client and worker, attaching the id to
// both connections.
func (r *Registry) Pair(client, worker *Connection) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	s := &Session{ID: id, Client: client, Worker: worker}
	r.byID[id] = s
	r.byHost[client.HostID()] = id
	r.byHost[worker.HostID()] = id
	client.SetSession(id)
	worker.SetSession(id)
	return s
}

// Lookup returns the session a host id currently belongs to, if any.
func (r *Registry) Lookup(hostID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHost[hostID]
	if !ok {
		return nil, false
	}
	s, ok := r.byID[id]
	return s, ok
}

// Drop removes a session by host id and returns the peer connection, if
// the host was found in an active session. It clears the session id on
// both connections so a subsequent Drop of the peer is a no-op — spec.md
// §5's "whichever side of the pair disconnects first wins the race to
// tear down".
func (r *Registry) Drop(hostID string) (peer *Connection, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHost[hostID]
	if !ok {
		return nil, false
	}
	s := r.byID[id]
	delete(r.byID, id)
	delete(r.byHost, s.Client.HostID())
	delete(r.byHost, s.Worker.HostID())
	s.Client.SetSession(0)
	s.Worker.SetSession(0)
	if s.Client.HostID() == hostID {
		return s.Worker, true
	}
	return s.Client, true
}
