package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/reportwise-ai/reportwise/config"
)

// LanePool owns all lanes, built 1:1 from the ordered credential
// configuration. Lanes live for the whole process; health changes at runtime
// but lanes are never destroyed.
type LanePool struct {
	logger *log.Logger
	lanes  []*Lane
}

// NewLanePool builds the pool from configuration.
func NewLanePool(cfgs []config.LaneConfig, logger *log.Logger) (*LanePool, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no lanes configured")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[LANES] ", log.LstdFlags)
	}
	p := &LanePool{logger: logger}
	for i, cfg := range cfgs {
		p.lanes = append(p.lanes, newLane(i, cfg))
	}
	return p, nil
}

// Lanes returns all lanes in configuration order.
func (p *LanePool) Lanes() []*Lane { return p.lanes }

// UsableCount returns the number of lanes that are not disabled.
func (p *LanePool) UsableCount() int {
	n := 0
	for _, l := range p.lanes {
		if l.Health() != LaneDisabled {
			n++
		}
	}
	return n
}

// Pick returns the eligible lane with the most available token budget.
// Eligibility is recomputed on every call because lane health changes during
// execution. When no lane is eligible right now, Pick returns the minimum
// wait until one becomes eligible. When every lane is disabled it returns
// ErrAllLanesExhausted.
func (p *LanePool) Pick(estTokens int) (*Lane, time.Duration, error) {
	var best *Lane
	bestHeadroom := -1
	minWait := time.Duration(-1)
	usable := 0

	for _, lane := range p.lanes {
		if lane.Health() == LaneDisabled {
			continue
		}
		usable++
		ok, wait := lane.Eligible(estTokens)
		if ok {
			if h := lane.Headroom(); h > bestHeadroom {
				best = lane
				bestHeadroom = h
			}
			continue
		}
		if minWait < 0 || wait < minWait {
			minWait = wait
		}
	}

	if usable == 0 {
		return nil, 0, ErrAllLanesExhausted
	}
	if best != nil {
		return best, 0, nil
	}
	if minWait < 0 {
		minWait = 0
	}
	return nil, minWait, nil
}
