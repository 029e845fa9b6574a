package dispatch

import (
	"testing"
	"time"

	"github.com/hallen/timefuse/internal/store"
)

type memStore struct {
	users  map[string]store.User
	passwd map[string]string
	groups map[string]map[string]bool
	events map[string][]store.Event
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[string]store.User),
		passwd: make(map[string]string),
		groups: make(map[string]map[string]bool),
		events: make(map[string][]store.Event),
	}
}

func (m *memStore) CreateAccount(username, password, email string) error {
	if _, ok := m.users[username]; ok {
		return store.ErrNotFound
	}
	m.users[username] = store.User{Username: username, Email: email}
	m.passwd[username] = password
	return nil
}

func (m *memStore) Authenticate(username, password string) error {
	p, ok := m.passwd[username]
	if !ok {
		return store.ErrNotFound
	}
	if p != password {
		return store.ErrNotFound
	}
	return nil
}

func (m *memStore) UpdateUser(oldUser, oldPass, newPass, newUser, newMail, newCell string) error {
	return nil
}
func (m *memStore) AccountInfo(username string) (store.User, error) {
	u, ok := m.users[username]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}
func (m *memStore) CreateGroup(name string) error {
	m.groups[name] = make(map[string]bool)
	return nil
}
func (m *memStore) DeleteGroup(name string) error { delete(m.groups, name); return nil }
func (m *memStore) JoinGroup(username, group string) error {
	if m.groups[group] == nil {
		m.groups[group] = make(map[string]bool)
	}
	m.groups[group][username] = true
	return nil
}
func (m *memStore) LeaveGroup(username, group string) error {
	delete(m.groups[group], username)
	return nil
}
func (m *memStore) ListGroups(username string) ([]string, error) {
	var out []string
	for g, members := range m.groups {
		if members[username] {
			out = append(out, g)
		}
	}
	return out, nil
}
func (m *memStore) ListGroupUsers(group string) ([]string, error) {
	var out []string
	for u := range m.groups[group] {
		out = append(out, u)
	}
	return out, nil
}
func (m *memStore) FriendRequest(userA, userB string) error          { return nil }
func (m *memStore) AcceptFriend(userA, userB string) error           { return nil }
func (m *memStore) DeleteFriend(userA, userB string) error           { return nil }
func (m *memStore) Friends(username string) ([]string, error)       { return nil, nil }
func (m *memStore) FriendRequests(username string) ([]string, error) { return nil, nil }
func (m *memStore) SetPresence(username string, present bool) error { return nil }
func (m *memStore) CreatePersonalEvent(username string, ev store.Event) error {
	m.events[username] = append(m.events[username], ev)
	return nil
}
func (m *memStore) ListUserEvents(username string, from, to time.Time) ([]store.Event, error) {
	return m.events[username], nil
}
func (m *memStore) ListMonthEvents(username string, month, year int) ([]store.Event, error) {
	return m.events[username], nil
}
func (m *memStore) ResetPassword(username, email, newPass string) error { return nil }
func (m *memStore) Close() error                                        { return nil }

func TestCreateAccountThenLogin(t *testing.T) {
	d := New(newMemStore())

	resp, _ := d.Dispatch("CREATE_ACCOUNT alice s3cret a%40x")
	if resp != "OK" {
		t.Fatalf("except: OK, got: %q", resp)
	}
	resp, _ = d.Dispatch("LOGIN alice s3cret")
	if resp != "OK" {
		t.Fatalf("except: OK, got: %q", resp)
	}
	resp, _ = d.Dispatch("LOGIN alice wrong")
	if resp != "FAIL NOT_FOUND" {
		t.Fatalf("except: FAIL NOT_FOUND, got: %q", resp)
	}
}

func TestGroupJoinLeaveRoundTrip(t *testing.T) {
	d := New(newMemStore())
	d.Dispatch("CREATE_GROUP eng")
	d.Dispatch("JOIN_GROUP alice eng")

	resp, _ := d.Dispatch("LIST_GROUP_USERS eng")
	if resp != "OK alice" {
		t.Fatalf("except: OK alice, got: %q", resp)
	}

	d.Dispatch("LEAVE_GROUP alice eng")
	resp, _ = d.Dispatch("LIST_GROUP_USERS eng")
	if resp != "OK " {
		t.Fatalf("except: OK <empty>, got: %q", resp)
	}
}

func TestUnknownVerb(t *testing.T) {
	d := New(newMemStore())
	resp, closeConn := d.Dispatch("FROBNICATE x y")
	if resp != "FAIL UNKNOWN_VERB" || closeConn {
		t.Fatalf("except: FAIL UNKNOWN_VERB, got: %q, %v", resp, closeConn)
	}
}

func TestArityMismatch(t *testing.T) {
	d := New(newMemStore())
	resp, _ := d.Dispatch("LOGIN alice")
	if resp != "FAIL UNKNOWN_VERB" {
		t.Fatalf("except: FAIL UNKNOWN_VERB, got: %q", resp)
	}
}

func TestBye(t *testing.T) {
	d := New(newMemStore())
	resp, closeConn := d.Dispatch("BYE")
	if resp != "" || !closeConn {
		t.Fatalf("except: empty response and close, got: %q, %v", resp, closeConn)
	}
}

func TestEventCreateThenList(t *testing.T) {
	d := New(newMemStore())
	d.Dispatch("CREATE_ACCOUNT alice s3cret a%40x")
	resp, _ := d.Dispatch("CREATE_PERSONAL_EVENT alice Standup Room1 2024-06-01T09:00 2024-06-01T09:30 none notes blue")
	if resp != "OK" {
		t.Fatalf("except: OK, got: %q", resp)
	}
	resp, _ = d.Dispatch("LIST_USER_EVENTS alice 2024-06-01T00:00 2024-06-01T23:59")
	if resp == "OK " || resp == "" {
		t.Fatalf("except a non-empty event list, got: %q", resp)
	}
}
