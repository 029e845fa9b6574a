package store

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/hallen/timefuse/internal/protocol"
)

// Config carries the four environment variables spec.md §6 requires;
// absence of any is fatal at worker startup.
type Config struct {
	Host, Name, User, Pass string
}

// ConfigFromEnv reads DBHOST/DBNAME/DBUSR/DBPASS, matching the original
// worker_node::setup_db's getenv calls.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	var missing string
	get := func(name string) string {
		v := os.Getenv(name)
		if v == "" && missing == "" {
			missing = name
		}
		return v
	}
	cfg.Host = get("DBHOST")
	cfg.Name = get("DBNAME")
	cfg.User = get("DBUSR")
	cfg.Pass = get("DBPASS")
	if missing != "" {
		return Config{}, fmt.Errorf("%w: missing required environment variable %s", protocol.ErrConfig, missing)
	}
	return cfg, nil
}

// mysqlStore serializes every query through one mutex since a worker
// serves exactly one client at a time (spec.md §4.5): no connection
// pooling is attempted at this layer, matching the original's single
// QSqlDatabase connection per worker.
type mysqlStore struct {
	mu sync.Mutex
	db *sql.DB
}

// Open connects to MySQL using cfg, matching
// original_source/src/worker_node.cpp::setup_db's QMYSQL driver choice.
func Open(cfg Config) (Store, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", cfg.User, cfg.Pass, cfg.Host, cfg.Name)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, dbErr(err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, dbErr(err)
	}
	return &mysqlStore{db: db}, nil
}

func (s *mysqlStore) Close() error { return s.db.Close() }

// dbErr classifies a database/sql error per spec.md §7's taxonomy:
// sql.ErrNoRows becomes the caller-distinguishable ErrNotFound, anything
// else is wrapped in protocol.ErrDb so dispatch.reason can tell a live
// database failure from any other FAIL cause without string-matching.
func dbErr(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", protocol.ErrDb, err)
}

func (s *mysqlStore) CreateAccount(username, password, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The original insert_query has a well-known typo in this column
	// list ("user_name passwd" missing a comma, spec.md §9); the
	// corrected list is used here.
	res, err := s.db.Exec(
		`INSERT INTO users (schedule_id, user_name, passwd, email) VALUES (0, ?, ?, ?)`,
		username, password, email,
	)
	if err != nil {
		return dbErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return dbErr(err)
	}
	// schedule_id tracks user_id (spec.md §9): a user's own calendar is
	// keyed by their own id.
	_, err = s.db.Exec(`UPDATE users SET schedule_id = ? WHERE user_id = ?`, id, id)
	return dbErr(err)
}

func (s *mysqlStore) Authenticate(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var passwd string
	err := s.db.QueryRow(`SELECT passwd FROM users WHERE user_name = ?`, username).Scan(&passwd)
	if err != nil {
		return dbErr(err)
	}
	if passwd != password {
		return fmt.Errorf("store: bad credentials")
	}
	return nil
}

func (s *mysqlStore) UpdateUser(oldUser, oldPass, newPass, newUser, newMail, newCell string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var userID int64
	var passwd string
	err := s.db.QueryRow(`SELECT user_id, passwd FROM users WHERE user_name = ?`, oldUser).Scan(&userID, &passwd)
	if err != nil {
		return dbErr(err)
	}
	if passwd != oldPass {
		return fmt.Errorf("store: bad credentials")
	}
	_, err = s.db.Exec(
		`UPDATE users SET passwd = ?, user_name = ?, email = ?, cell = ? WHERE user_id = ?`,
		newPass, newUser, newMail, newCell, userID,
	)
	return dbErr(err)
}

func (s *mysqlStore) AccountInfo(username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var u User
	err := s.db.QueryRow(
		`SELECT user_id, schedule_id, user_name, email, cell FROM users WHERE user_name = ?`, username,
	).Scan(&u.UserID, &u.ScheduleID, &u.Username, &u.Email, &u.Cell)
	if err != nil {
		return User{}, dbErr(err)
	}
	return u, nil
}

func (s *mysqlStore) CreateGroup(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO groups (group_name) VALUES (?)`, name)
	return dbErr(err)
}

func (s *mysqlStore) DeleteGroup(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM groups WHERE group_name = ?`, name)
	if err != nil {
		return dbErr(err)
	}
	return checkAffected(res)
}

func (s *mysqlStore) JoinGroup(username, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO user_groups (user_id, group_id)
		 SELECT u.user_id, g.group_id FROM users u, groups g
		 WHERE u.user_name = ? AND g.group_name = ?`,
		username, group,
	)
	return dbErr(err)
}

func (s *mysqlStore) LeaveGroup(username, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`DELETE ug FROM user_groups ug
		 JOIN users u ON u.user_id = ug.user_id
		 JOIN groups g ON g.group_id = ug.group_id
		 WHERE u.user_name = ? AND g.group_name = ?`,
		username, group,
	)
	if err != nil {
		return dbErr(err)
	}
	return checkAffected(res)
}

func (s *mysqlStore) ListGroups(username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT g.group_name FROM groups g
		 JOIN user_groups ug ON ug.group_id = g.group_id
		 JOIN users u ON u.user_id = ug.user_id
		 WHERE u.user_name = ?`,
		username,
	)
	if err != nil {
		return nil, dbErr(err)
	}
	return scanStrings(rows)
}

func (s *mysqlStore) ListGroupUsers(group string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT u.user_name FROM users u
		 JOIN user_groups ug ON ug.user_id = u.user_id
		 JOIN groups g ON g.group_id = ug.group_id
		 WHERE g.group_name = ?`,
		group,
	)
	if err != nil {
		return nil, dbErr(err)
	}
	return scanStrings(rows)
}

func (s *mysqlStore) FriendRequest(userA, userB string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO friendships (user_a, user_b, accepted)
		 SELECT a.user_id, b.user_id, 0 FROM users a, users b
		 WHERE a.user_name = ? AND b.user_name = ?`,
		userA, userB,
	)
	return dbErr(err)
}

func (s *mysqlStore) AcceptFriend(userA, userB string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`UPDATE friendships f
		 JOIN users a ON a.user_id = f.user_a
		 JOIN users b ON b.user_id = f.user_b
		 SET f.accepted = 1
		 WHERE a.user_name = ? AND b.user_name = ?`,
		userA, userB,
	)
	if err != nil {
		return dbErr(err)
	}
	return checkAffected(res)
}

func (s *mysqlStore) DeleteFriend(userA, userB string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`DELETE f FROM friendships f
		 JOIN users a ON a.user_id = f.user_a
		 JOIN users b ON b.user_id = f.user_b
		 WHERE (a.user_name = ? AND b.user_name = ?) OR (a.user_name = ? AND b.user_name = ?)`,
		userA, userB, userB, userA,
	)
	if err != nil {
		return dbErr(err)
	}
	return checkAffected(res)
}

func (s *mysqlStore) Friends(username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT b.user_name FROM friendships f
		 JOIN users a ON a.user_id = f.user_a
		 JOIN users b ON b.user_id = f.user_b
		 WHERE a.user_name = ? AND f.accepted = 1
		 UNION
		 SELECT a.user_name FROM friendships f
		 JOIN users a ON a.user_id = f.user_a
		 JOIN users b ON b.user_id = f.user_b
		 WHERE b.user_name = ? AND f.accepted = 1`,
		username, username,
	)
	if err != nil {
		return nil, dbErr(err)
	}
	return scanStrings(rows)
}

func (s *mysqlStore) FriendRequests(username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT a.user_name FROM friendships f
		 JOIN users a ON a.user_id = f.user_a
		 JOIN users b ON b.user_id = f.user_b
		 WHERE b.user_name = ? AND f.accepted = 0`,
		username,
	)
	if err != nil {
		return nil, dbErr(err)
	}
	return scanStrings(rows)
}

func (s *mysqlStore) SetPresence(username string, present bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag := 0
	if present {
		flag = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO presence (user_id, present_flag)
		 SELECT user_id, ? FROM users WHERE user_name = ?
		 ON DUPLICATE KEY UPDATE present_flag = VALUES(present_flag)`,
		flag, username,
	)
	return dbErr(err)
}

func (s *mysqlStore) CreatePersonalEvent(username string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO events (owner_id, title, location, start_ts, end_ts, repeat_rule, notes, color, is_group)
		 SELECT user_id, ?, ?, ?, ?, ?, ?, ?, 0 FROM users WHERE user_name = ?`,
		ev.Title, ev.Location, ev.Start, ev.End, ev.RepeatRule, ev.Notes, ev.Color, username,
	)
	return dbErr(err)
}

func (s *mysqlStore) ListUserEvents(username string, from, to time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT e.event_id, e.owner_id, e.title, e.location, e.start_ts, e.end_ts, e.repeat_rule, e.notes, e.color, e.is_group, IFNULL(e.group_id, 0)
		 FROM events e JOIN users u ON u.user_id = e.owner_id
		 WHERE u.user_name = ? AND e.start_ts <= ? AND e.end_ts >= ?
		 ORDER BY e.start_ts`,
		username, to, from,
	)
	if err != nil {
		return nil, dbErr(err)
	}
	return scanEvents(rows)
}

func (s *mysqlStore) ListMonthEvents(username string, month, year int) ([]Event, error) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return s.ListUserEvents(username, from, to)
}

func (s *mysqlStore) ResetPassword(username, email, newPass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`UPDATE users SET passwd = ? WHERE user_name = ? AND email = ?`,
		newPass, username, email,
	)
	if err != nil {
		return dbErr(err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var isGroup int
		if err := rows.Scan(&e.EventID, &e.OwnerID, &e.Title, &e.Location, &e.Start, &e.End, &e.RepeatRule, &e.Notes, &e.Color, &isGroup, &e.GroupID); err != nil {
			return nil, dbErr(err)
		}
		e.IsGroup = isGroup != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
