// Package dispatch implements the worker's request dispatcher (spec.md
// §4.4): a closed table of verbs, each with a fixed arity, routed to the
// backing store.Store. Grounded on sched/client.go's Handle switch —
// same shape (parse a line, switch on the leading token, write one
// response line back) generalized from job-queue verbs to account/
// calendar verbs.
package dispatch

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/hallen/timefuse/internal/protocol"
	"github.com/hallen/timefuse/internal/store"
)

// timeLayout is used for every wire-level timestamp field.
const timeLayout = "2006-01-02T15:04"

// Dispatcher satisfies worker.Dispatcher, routing one request line at a
// time against a store.Store. Nothing here is safe to share across
// concurrent connections beyond what store.Store itself guarantees,
// which matches spec.md §4.5's "one client at a time" assumption.
type Dispatcher struct {
	Store store.Store
}

// New builds a Dispatcher over s.
func New(s store.Store) *Dispatcher {
	return &Dispatcher{Store: s}
}

// Dispatch parses line into a verb and arguments, invokes the matching
// store operation, and returns the response line. closeConn is true
// only for BYE; the worker state machine also recognizes BYE itself
// before reaching here, so this branch mainly protects direct callers.
func (d *Dispatcher) Dispatch(line string) (response string, closeConn bool) {
	fields := protocol.Fields(line)
	if len(fields) == 0 {
		return "FAIL UNKNOWN_VERB", false
	}
	verb := fields[0]
	args := fields[1:]

	switch verb {
	case "BYE":
		return "", true

	case "LOGIN":
		return d.arity(args, 2, func(a []string) string {
			if err := d.Store.Authenticate(a[0], a[1]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "CREATE_ACCOUNT":
		return d.arity(args, 3, func(a []string) string {
			if err := d.Store.CreateAccount(a[0], a[1], a[2]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "UPDATE_USER":
		return d.arity(args, 6, func(a []string) string {
			if err := d.Store.UpdateUser(a[0], a[1], a[2], a[3], a[4], a[5]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "ACCOUNT_INFO":
		return d.arity(args, 1, func(a []string) string {
			u, err := d.Store.AccountInfo(a[0])
			if err != nil {
				return "FAIL " + reason(err)
			}
			return "OK " + encodeCSV(
				u.Username, u.Email, u.Cell, strconv.FormatInt(u.ScheduleID, 10),
			)
		})

	case "CREATE_GROUP":
		return d.arity(args, 1, func(a []string) string {
			if err := d.Store.CreateGroup(a[0]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "DELETE_GROUP":
		return d.arity(args, 1, func(a []string) string {
			if err := d.Store.DeleteGroup(a[0]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "JOIN_GROUP":
		return d.arity(args, 2, func(a []string) string {
			if err := d.Store.JoinGroup(a[0], a[1]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "LEAVE_GROUP":
		return d.arity(args, 2, func(a []string) string {
			if err := d.Store.LeaveGroup(a[0], a[1]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "LIST_GROUPS":
		return d.arity(args, 1, func(a []string) string {
			names, err := d.Store.ListGroups(a[0])
			if err != nil {
				return "FAIL " + reason(err)
			}
			return "OK " + encodeCSV(names...)
		})

	case "LIST_GROUP_USERS":
		return d.arity(args, 1, func(a []string) string {
			names, err := d.Store.ListGroupUsers(a[0])
			if err != nil {
				return "FAIL " + reason(err)
			}
			return "OK " + encodeCSV(names...)
		})

	case "FRIEND_REQUEST":
		return d.arity(args, 2, func(a []string) string {
			if err := d.Store.FriendRequest(a[0], a[1]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "ACCEPT_FRIEND":
		return d.arity(args, 2, func(a []string) string {
			if err := d.Store.AcceptFriend(a[0], a[1]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "DELETE_FRIEND":
		return d.arity(args, 2, func(a []string) string {
			if err := d.Store.DeleteFriend(a[0], a[1]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "FRIENDS":
		return d.arity(args, 1, func(a []string) string {
			names, err := d.Store.Friends(a[0])
			if err != nil {
				return "FAIL " + reason(err)
			}
			return "OK " + encodeCSV(names...)
		})

	case "FRIEND_REQUESTS":
		return d.arity(args, 1, func(a []string) string {
			names, err := d.Store.FriendRequests(a[0])
			if err != nil {
				return "FAIL " + reason(err)
			}
			return "OK " + encodeCSV(names...)
		})

	case "ABSENT":
		return d.arity(args, 1, func(a []string) string {
			if err := d.Store.SetPresence(a[0], false); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "PRESENT":
		return d.arity(args, 1, func(a []string) string {
			if err := d.Store.SetPresence(a[0], true); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "CREATE_PERSONAL_EVENT":
		return d.arity(args, 8, func(a []string) string {
			start, err := time.Parse(timeLayout, a[3])
			if err != nil {
				return "FAIL BAD_TIME"
			}
			end, err := time.Parse(timeLayout, a[4])
			if err != nil {
				return "FAIL BAD_TIME"
			}
			ev := store.Event{
				Title:      a[1],
				Location:   a[2],
				Start:      start,
				End:        end,
				RepeatRule: a[5],
				Notes:      a[6],
				Color:      a[7],
			}
			if err := d.Store.CreatePersonalEvent(a[0], ev); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	case "LIST_USER_EVENTS":
		return d.arity(args, 3, func(a []string) string {
			from, to, err := parseRange(a[1], a[2])
			if err != nil {
				return "FAIL BAD_TIME"
			}
			events, err := d.Store.ListUserEvents(a[0], from, to)
			if err != nil {
				return "FAIL " + reason(err)
			}
			return "OK " + encodeEvents(events)
		})

	case "LIST_MONTH_EVENTS":
		return d.arity(args, 3, func(a []string) string {
			month, err1 := strconv.Atoi(a[1])
			year, err2 := strconv.Atoi(a[2])
			if err1 != nil || err2 != nil {
				return "FAIL BAD_ARG"
			}
			events, err := d.Store.ListMonthEvents(a[0], month, year)
			if err != nil {
				return "FAIL " + reason(err)
			}
			return "OK " + encodeEvents(events)
		})

	case "SUGGEST_USER_TIMES":
		return d.arity(args, 4, func(a []string) string {
			return d.suggestUser(a[0], a[1], a[2], a[3])
		})

	case "SUGGEST_GROUP_TIMES":
		return d.arity(args, 4, func(a []string) string {
			return d.suggestGroup(a[0], a[1], a[2], a[3])
		})

	case "RESET_PASSWORD":
		return d.arity(args, 3, func(a []string) string {
			if err := d.Store.ResetPassword(a[0], a[1], a[2]); err != nil {
				return "FAIL " + reason(err)
			}
			return "OK"
		})

	default:
		return "FAIL UNKNOWN_VERB", false
	}
}

// arity checks the argument count before invoking fn, folding the
// arity-mismatch case into the same FAIL UNKNOWN_VERB response spec.md
// §4.4 specifies for both unknown verbs and wrong arities.
func (d *Dispatcher) arity(args []string, want int, fn func([]string) string) (string, bool) {
	if len(args) != want {
		return "FAIL UNKNOWN_VERB", false
	}
	return fn(args), false
}

// reason maps a store error to the wire-level FAIL token. A protocol.ErrDb
// (spec.md §7's DbError: "surface FAIL to peer, keep connection") is
// distinguished from any other store failure so operators reading logs
// can tell a live database problem from a plain business-rule rejection.
func reason(err error) string {
	if err == store.ErrNotFound {
		return "NOT_FOUND"
	}
	if errors.Is(err, protocol.ErrDb) {
		log.Printf("dispatch: %v\n", err)
		return "DB_ERROR"
	}
	return "ERROR"
}

func parseRange(fromStr, toStr string) (from, to time.Time, err error) {
	from, err = time.Parse(timeLayout, fromStr)
	if err != nil {
		return
	}
	to, err = time.Parse(timeLayout, toStr)
	return
}

func encodeCSV(fields ...string) string {
	encoded := make([]string, len(fields))
	for i, f := range fields {
		encoded[i] = protocol.EncodeField(f)
	}
	return strings.Join(encoded, ",")
}

// encodeEvents renders a slice of events as one comma-separated field
// per event, with '|' separating each event's own sub-fields.
func encodeEvents(events []store.Event) string {
	parts := make([]string, len(events))
	for i, e := range events {
		sub := []string{
			strconv.FormatInt(e.EventID, 10),
			e.Title,
			e.Location,
			e.Start.Format(timeLayout),
			e.End.Format(timeLayout),
			e.RepeatRule,
			e.Notes,
			e.Color,
		}
		for j, f := range sub {
			sub[j] = protocol.EncodeField(f)
		}
		parts[i] = strings.Join(sub, "|")
	}
	return strings.Join(parts, ",")
}
