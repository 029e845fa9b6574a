package store

import (
	"strings"

	"github.com/garyburd/redigo/redis"
)

const presencePrefix = "timefuse:presence:"

// PresenceCache tracks ABSENT/PRESENT flags outside the SQL store,
// grounded on driver/redis/redis.go's redis.Pool construction — presence
// is high-churn, short-lived state that doesn't belong in the durable
// account tables.
type PresenceCache struct {
	pool *redis.Pool
}

// NewPresenceCache dials server, formatted "tcp://host:port" like the
// teacher's driver string.
func NewPresenceCache(server string) *PresenceCache {
	parts := strings.SplitN(server, "://", 2)
	addr := server
	if len(parts) == 2 {
		addr = parts[1]
	}
	pool := redis.NewPool(func() (redis.Conn, error) {
		return redis.Dial("tcp", addr)
	}, 3)
	return &PresenceCache{pool: pool}
}

// Set records username as present or absent.
func (p *PresenceCache) Set(username string, present bool) error {
	conn := p.pool.Get()
	defer conn.Close()
	flag := "0"
	if present {
		flag = "1"
	}
	_, err := conn.Do("SET", presencePrefix+username, flag)
	return err
}

// Get reports the last known presence for username. Absent entries (no
// key yet) report false, matching a freshly created account's default.
func (p *PresenceCache) Get(username string) (bool, error) {
	conn := p.pool.Get()
	defer conn.Close()
	v, err := redis.String(conn.Do("GET", presencePrefix+username))
	if err == redis.ErrNil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// Close releases the underlying connection pool.
func (p *PresenceCache) Close() error {
	return p.pool.Close()
}

// presenceStore overrides SetPresence to route through a PresenceCache
// instead of the wrapped Store, so ABSENT/PRESENT churn never touches
// the SQL adapter.
type presenceStore struct {
	Store
	presence *PresenceCache
}

// WithPresence wraps s so SetPresence writes to cache instead of s.
func WithPresence(s Store, cache *PresenceCache) Store {
	return &presenceStore{Store: s, presence: cache}
}

func (p *presenceStore) SetPresence(username string, present bool) error {
	return p.presence.Set(username, present)
}
