// Package store is the worker's database adapter: a thin query layer
// over the SQL-backed account/event store spec.md §4.5 and §6 treat as
// an external boundary. Grounded on driver/driver.go's StoreDriver
// interface — an abstract persistence boundary the rest of the system
// depends on, not a concrete backend.
package store

import (
	"errors"
	"time"
)

// User mirrors the users table (spec.md §6).
type User struct {
	UserID     int64
	ScheduleID int64
	Username   string
	Password   string
	Email      string
	Cell       string
}

// Group mirrors the groups table.
type Group struct {
	GroupID   int64
	GroupName string
}

// Event mirrors the events table. GroupID is zero for personal events.
type Event struct {
	EventID    int64
	OwnerID    int64
	Title      string
	Location   string
	Start      time.Time
	End        time.Time
	RepeatRule string
	Notes      string
	Color      string
	IsGroup    bool
	GroupID    int64
}

// ErrNotFound is returned by lookups that find nothing, letting callers
// in internal/dispatch distinguish "no such row" from a live DbError.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary internal/dispatch programs against.
// One implementation, mysqlStore, backs it with database/sql; tests use
// an in-memory fake satisfying the same interface.
type Store interface {
	CreateAccount(username, password, email string) error
	Authenticate(username, password string) error
	UpdateUser(oldUser, oldPass, newPass, newUser, newMail, newCell string) error
	AccountInfo(username string) (User, error)

	CreateGroup(name string) error
	DeleteGroup(name string) error
	JoinGroup(username, group string) error
	LeaveGroup(username, group string) error
	ListGroups(username string) ([]string, error)
	ListGroupUsers(group string) ([]string, error)

	FriendRequest(userA, userB string) error
	AcceptFriend(userA, userB string) error
	DeleteFriend(userA, userB string) error
	Friends(username string) ([]string, error)
	FriendRequests(username string) ([]string, error)

	SetPresence(username string, present bool) error

	CreatePersonalEvent(username string, ev Event) error
	ListUserEvents(username string, from, to time.Time) ([]Event, error)
	ListMonthEvents(username string, month, year int) ([]Event, error)

	ResetPassword(username, email, newPass string) error

	Close() error
}
