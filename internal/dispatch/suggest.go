package dispatch

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hallen/timefuse/internal/store"
)

// maxSuggestions caps SUGGEST_USER_TIMES/SUGGEST_GROUP_TIMES output at
// spec.md §4.4's k=10.
const maxSuggestions = 10

type interval struct {
	start, end time.Time
}

func (d *Dispatcher) suggestUser(user, durationStr, fromStr, toStr string) string {
	dur, from, to, err := parseSuggestArgs(durationStr, fromStr, toStr)
	if err != nil {
		return "FAIL BAD_ARG"
	}
	events, err := d.Store.ListUserEvents(user, from, to)
	if err != nil {
		return "FAIL " + reason(err)
	}
	return "OK " + encodeGaps(findGaps(toIntervals(events), from, to, dur))
}

// suggestGroup unions every member's own personal events rather than
// querying events tagged with the group directly: no verb ever writes
// a group-owned event (CREATE_PERSONAL_EVENT is always personal), so
// "the union of all members" from spec.md §4.4 means the union of each
// member's individual calendar, evaluated fresh against current
// membership on every call.
func (d *Dispatcher) suggestGroup(group, durationStr, fromStr, toStr string) string {
	dur, from, to, err := parseSuggestArgs(durationStr, fromStr, toStr)
	if err != nil {
		return "FAIL BAD_ARG"
	}
	members, err := d.Store.ListGroupUsers(group)
	if err != nil {
		return "FAIL " + reason(err)
	}
	var busy []interval
	for _, member := range members {
		events, err := d.Store.ListUserEvents(member, from, to)
		if err != nil {
			return "FAIL " + reason(err)
		}
		busy = append(busy, toIntervals(events)...)
	}
	return "OK " + encodeGaps(findGaps(busy, from, to, dur))
}

func parseSuggestArgs(durationStr, fromStr, toStr string) (dur time.Duration, from, to time.Time, err error) {
	minutes, err := strconv.Atoi(durationStr)
	if err != nil {
		return
	}
	dur = time.Duration(minutes) * time.Minute
	from, to, err = parseRange(fromStr, toStr)
	return
}

func toIntervals(events []store.Event) []interval {
	out := make([]interval, len(events))
	for i, e := range events {
		out[i] = interval{start: e.Start, end: e.End}
	}
	return out
}

// findGaps coalesces overlapping/adjacent busy intervals, then returns
// every maximal free interval of length >= dur that lies fully inside
// [from, to]. Gaps touching a window edge (from or to) use an inclusive
// length test (>= dur); interior gaps between two busy intervals use a
// strict one (> dur) — the resolution of scenario 5's example, where a
// gap exactly dur long is only counted when it borders the window.
// Results are chronological, capped at maxSuggestions.
func findGaps(busy []interval, from, to time.Time, dur time.Duration) []interval {
	coalesced := coalesce(busy)

	var gaps []interval
	cursor := from
	for _, b := range coalesced {
		if b.start.After(to) {
			break
		}
		atEdge := !cursor.After(from)
		if b.start.After(cursor) && qualifies(b.start.Sub(cursor), dur, atEdge) {
			gaps = append(gaps, interval{start: cursor, end: b.start})
		}
		if b.end.After(cursor) {
			cursor = b.end
		}
		if len(gaps) >= maxSuggestions {
			return gaps[:maxSuggestions]
		}
	}
	if !cursor.After(to) && qualifies(to.Sub(cursor), dur, true) {
		gaps = append(gaps, interval{start: cursor, end: to})
	}
	if len(gaps) > maxSuggestions {
		gaps = gaps[:maxSuggestions]
	}
	return gaps
}

func qualifies(gap, dur time.Duration, atEdge bool) bool {
	if atEdge {
		return gap >= dur
	}
	return gap > dur
}

// coalesce merges overlapping or touching intervals and sorts by start,
// matching spec.md §4.4's "overlapping events are coalesced first".
func coalesce(intervals []interval) []interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start.Before(sorted[j].start) })

	merged := []interval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if cur.start.After(last.end) {
			merged = append(merged, cur)
			continue
		}
		if cur.end.After(last.end) {
			last.end = cur.end
		}
	}
	return merged
}

func encodeGaps(gaps []interval) string {
	parts := make([]string, len(gaps))
	for i, g := range gaps {
		parts[i] = g.start.Format(timeLayout) + "-" + g.end.Format(timeLayout)
	}
	return strings.Join(parts, ",")
}
