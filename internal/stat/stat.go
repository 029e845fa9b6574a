package stat

import (
	"fmt"
)

// PairStat tracks the master's live queue depths and lifetime pairing
// count, exposed to the admin HTTP surface. This plays the role the
// teacher's FuncStat played for per-function job/worker counts, here
// scoped to the whole broker rather than per function since pairing has
// no function dimension.
type PairStat struct {
	ClientsWaiting *Counter
	WorkersWaiting *Counter
	Paired         *Counter
}

// NewPairStat creates a zeroed stat block.
func NewPairStat() *PairStat {
	var stat = new(PairStat)
	stat.ClientsWaiting = NewCounter(0)
	stat.WorkersWaiting = NewCounter(0)
	stat.Paired = NewCounter(0)
	return stat
}

func (stat PairStat) String() string {
	return fmt.Sprintf("clients=%s,workers=%s,paired=%s", stat.ClientsWaiting, stat.WorkersWaiting, stat.Paired)
}
