// Package balancer implements the Load Balancer (component 6): the decision
// of how many regions an overloaded reporting server should shed, and which
// ones, invoked only when that server's heartbeat has nothing new to open.
package balancer

import (
	"math"

	"regionmaster/internal/regionmsg"
	"regionmaster/internal/regionstate"
	"regionmaster/internal/transition"
)

// DefaultSlop and DefaultMaxRegToClose match the source's
// hbase.regions.slop default and its unlimited close cap.
const (
	DefaultSlop          = 0.3
	DefaultMaxRegToClose = -1
)

// Balancer holds the two tuning parameters governing shed decisions.
type Balancer struct {
	slop          float64
	maxRegToClose int
}

// New constructs a Balancer. A non-positive slop is silently reset to 1 (100%
// tolerance) rather than rejected -- see the design notes' Open Question on
// this exact behavior, preserved from the source rather than "fixed," since
// nothing in the source treats it as an error.
func New(slop float64, maxRegToClose int) *Balancer {
	if slop <= 0 {
		slop = 1
	}
	return &Balancer{slop: slop, maxRegToClose: maxRegToClose}
}

// Fleet is a point-in-time view of every server's region count, supplied by
// the caller (the heartbeat handler) from whatever load-tracking state it
// keeps.
type Fleet map[string]int

func (f Fleet) average() float64 {
	if len(f) == 0 {
		return 0
	}
	var sum int
	for _, n := range f {
		sum += n
	}
	return float64(sum) / float64(len(f))
}

func (f Fleet) minMax() (min, max, nAtMin int) {
	first := true
	for _, n := range f {
		if first {
			min, max = n, n
			first = false
			continue
		}
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	for _, n := range f {
		if n == min {
			nAtMin++
		}
	}
	return min, max, nAtMin
}

// shedCount decides how many regions the reporting server (at load, among
// fleet) should shed. Returns 0 when no shedding is warranted.
func (b *Balancer) shedCount(load int, fleet Fleet) int {
	avg := fleet.average()
	if avg <= 2.0 {
		return 0
	}
	flAvg := math.Floor(avg)
	if float64(load) <= flAvg {
		return 0
	}

	overloadedThreshold := math.Ceil(avg * (1 + b.slop))
	if float64(load) > overloadedThreshold {
		shed := int(float64(load) - math.Ceil(avg))
		if shed < 0 {
			shed = 0
		}
		return shed
	}

	lightest, heaviest, nLight := fleet.minMax()
	if load != heaviest {
		return 0
	}
	avgMinusSlop := math.Floor(avg*(1-b.slop)) - 1
	if float64(lightest) >= avgMinusSlop {
		return 0
	}
	shedToLightly := math.Min(float64(load)-flAvg, (avgMinusSlop-float64(lightest))*float64(nLight))
	if shedToLightly < 0 {
		shedToLightly = 0
	}
	return int(shedToLightly)
}

// InTransitionFunc reports whether a region name currently has a Transition
// Table entry.
type InTransitionFunc func(name []byte) bool

// SelectToShed computes how many regions server (currently at load, within
// fleet) should shed and selects that many from mostLoaded -- the server's
// own most-loaded-regions report, consulted in the order the report lists
// them -- skipping root, meta, and any region already in transition. The
// result is capped by maxRegToClose (unlimited when negative).
func (b *Balancer) SelectToShed(server string, load int, fleet Fleet, mostLoaded []regionstate.Info, inTransition InTransitionFunc) []regionstate.Info {
	want := b.shedCount(load, fleet)
	if want <= 0 {
		return nil
	}
	if b.maxRegToClose >= 0 && want > b.maxRegToClose {
		want = b.maxRegToClose
	}
	if want <= 0 {
		return nil
	}

	chosen := make([]regionstate.Info, 0, want)
	for _, info := range mostLoaded {
		if len(chosen) >= want {
			break
		}
		if info.IsRoot() || info.IsMeta() {
			continue
		}
		if inTransition != nil && inTransition(info.Name()) {
			continue
		}
		chosen = append(chosen, info)
	}
	return chosen
}

// Apply marks each chosen region CLOSING then PENDING_CLOSE in table and
// returns the MSG_REGION_CLOSE(OVERLOADED) instructions for delivery in the
// reporting server's heartbeat response. A region with no Transition Table
// entry yet gets one created in CLOSING, mirroring unassignSomeRegions's
// setClosing, which creates the RegionState when absent rather than skipping
// the region.
func Apply(table *transition.Table, server string, chosen []regionstate.Info) []regionmsg.Message {
	out := make([]regionmsg.Message, 0, len(chosen))
	for _, info := range chosen {
		record, ok := table.Get(info.Name())
		if !ok {
			record = regionstate.NewRecord(info, regionstate.Unassigned)
		}
		record.SetClosing(server, false)
		_ = table.Put(record)
		record.SetPendingClose()
		_ = table.Put(record)
		out = append(out, regionmsg.Message{
			Type:   regionmsg.RegionClose,
			Server: server,
			Region: info,
			Reason: regionmsg.OverloadedReason,
		})
	}
	return out
}
