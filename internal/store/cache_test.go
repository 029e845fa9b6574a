package store

import (
	"testing"
	"time"
)

type fakeStore struct {
	users    map[string]User
	infoHits int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]User)}
}

func (f *fakeStore) CreateAccount(username, password, email string) error {
	f.users[username] = User{Username: username, Password: password, Email: email}
	return nil
}
func (f *fakeStore) Authenticate(username, password string) error { return nil }
func (f *fakeStore) UpdateUser(oldUser, oldPass, newPass, newUser, newMail, newCell string) error {
	u := f.users[oldUser]
	delete(f.users, oldUser)
	u.Username = newUser
	u.Password = newPass
	u.Email = newMail
	u.Cell = newCell
	f.users[newUser] = u
	return nil
}
func (f *fakeStore) AccountInfo(username string) (User, error) {
	f.infoHits++
	u, ok := f.users[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}
func (f *fakeStore) CreateGroup(name string) error                          { return nil }
func (f *fakeStore) DeleteGroup(name string) error                          { return nil }
func (f *fakeStore) JoinGroup(username, group string) error                 { return nil }
func (f *fakeStore) LeaveGroup(username, group string) error                { return nil }
func (f *fakeStore) ListGroups(username string) ([]string, error)           { return nil, nil }
func (f *fakeStore) ListGroupUsers(group string) ([]string, error)          { return nil, nil }
func (f *fakeStore) FriendRequest(userA, userB string) error                { return nil }
func (f *fakeStore) AcceptFriend(userA, userB string) error                 { return nil }
func (f *fakeStore) DeleteFriend(userA, userB string) error                 { return nil }
func (f *fakeStore) Friends(username string) ([]string, error)              { return nil, nil }
func (f *fakeStore) FriendRequests(username string) ([]string, error)       { return nil, nil }
func (f *fakeStore) SetPresence(username string, present bool) error        { return nil }
func (f *fakeStore) CreatePersonalEvent(username string, ev Event) error    { return nil }
func (f *fakeStore) ListUserEvents(username string, from, to time.Time) ([]Event, error) {
	return nil, nil
}
func (f *fakeStore) ListMonthEvents(username string, month, year int) ([]Event, error) {
	return nil, nil
}
func (f *fakeStore) ResetPassword(username, email, newPass string) error { return nil }
func (f *fakeStore) Close() error                                        { return nil }

func TestAccountCacheServesFromCache(t *testing.T) {
	fs := newFakeStore()
	fs.CreateAccount("alice", "s3cret", "alice@example.com")
	c := NewAccountCache(fs, 10)

	if _, err := c.AccountInfo("alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AccountInfo("alice"); err != nil {
		t.Fatal(err)
	}
	if fs.infoHits != 1 {
		t.Fatalf("except: 1 underlying lookup, got: %d", fs.infoHits)
	}
}

func TestAccountCacheInvalidatesOnUpdate(t *testing.T) {
	fs := newFakeStore()
	fs.CreateAccount("alice", "s3cret", "alice@example.com")
	c := NewAccountCache(fs, 10)

	if _, err := c.AccountInfo("alice"); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateUser("alice", "s3cret", "newpass", "alice2", "a2@example.com", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AccountInfo("alice2"); err != nil {
		t.Fatal(err)
	}
	if fs.infoHits != 2 {
		t.Fatalf("except: 2 underlying lookups (miss after rename), got: %d", fs.infoHits)
	}
}

func TestAccountCacheMissPropagatesNotFound(t *testing.T) {
	fs := newFakeStore()
	c := NewAccountCache(fs, 10)
	if _, err := c.AccountInfo("ghost"); err != ErrNotFound {
		t.Fatalf("except: ErrNotFound, got: %v", err)
	}
}
