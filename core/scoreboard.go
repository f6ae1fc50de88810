package core

import (
	"errors"
	"math/bits"
	"sort"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

var (
	ErrTooFewAgents  = errors.New("monkey business needs at least two agents")
	ErrScoreOverflow = errors.New("monkey business overflows 64 bits")
)

// Standing is one agent's place on the scoreboard.
type Standing struct {
	Agent     model.AgentID
	Inspected uint64
}

// Standings sorts agents by inspection count, busiest first. Ties keep id
// order.
func Standings(counts []uint64) []Standing {
	out := make([]Standing, len(counts))
	for i, c := range counts {
		out[i] = Standing{Agent: i, Inspected: c}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Inspected > out[j].Inspected
	})
	return out
}

// MonkeyBusiness multiplies the two highest inspection counts.
func MonkeyBusiness(counts []uint64) (uint64, error) {
	if len(counts) < 2 {
		return 0, ErrTooFewAgents
	}
	top := Standings(counts)
	hi, lo := bits.Mul64(top[0].Inspected, top[1].Inspected)
	if hi != 0 {
		return 0, ErrScoreOverflow
	}
	return lo, nil
}
