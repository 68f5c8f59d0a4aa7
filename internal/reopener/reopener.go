// Package reopener implements the Throttled Reopener Registry (component
// 9): a map from table name to a per-table reopen coordinator, used by the
// table-alteration workflow (add/remove/modify column family) to push a
// bounded number of region reopens in flight at a time rather than closing
// every region of a table at once.
package reopener

import (
	"sync"

	"regionmaster/internal/regionstate"
)

// DefaultParallelism bounds how many regions of one table may be mid-reopen
// simultaneously when a coordinator is created without an explicit override.
const DefaultParallelism = 5

// Reopener tracks one table's in-flight alteration: the full region set
// scheduled for reopen, the subset currently handed out (capped at
// parallelism), and the subset confirmed back. Supplemented from
// original_source's ThrottledRegionReopener companion class, whose role the
// distilled spec only gestures at via §4.7.
type Reopener struct {
	mu sync.Mutex

	table       string
	parallelism int

	scheduled  map[string]regionstate.Info
	inProgress map[string]regionstate.Info
	confirmed  map[string]bool

	done       chan struct{}
	doneClosed bool
}

func newReopener(table string, regions []regionstate.Info, parallelism int) *Reopener {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	scheduled := make(map[string]regionstate.Info, len(regions))
	for _, r := range regions {
		scheduled[string(r.Name())] = r
	}
	return &Reopener{
		table:       table,
		parallelism: parallelism,
		scheduled:   scheduled,
		inProgress:  make(map[string]regionstate.Info),
		confirmed:   make(map[string]bool, len(regions)),
		done:        make(chan struct{}),
	}
}

// Done returns a channel closed exactly once, when every scheduled region
// has been confirmed reopened. The table-alteration workflow that created
// this coordinator waits on it to know the alteration is complete.
func (r *Reopener) Done() <-chan struct{} {
	return r.done
}

// NextBatch returns up to the remaining parallelism budget worth of
// not-yet-dispatched regions, marking them in-progress. Called by the
// caller's own reopen-dispatch loop (outside this package's scope: nothing
// here issues MSG_REGION_CLOSE itself).
func (r *Reopener) NextBatch() []regionstate.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	budget := r.parallelism - len(r.inProgress)
	if budget <= 0 {
		return nil
	}
	var out []regionstate.Info
	for name, region := range r.scheduled {
		if len(out) >= budget {
			break
		}
		if _, inProgress := r.inProgress[name]; inProgress {
			continue
		}
		if r.confirmed[name] {
			continue
		}
		r.inProgress[name] = region
		out = append(out, region)
	}
	return out
}

// NotifyRegionReopened removes region from the in-progress set and records
// it as confirmed. If every scheduled region is now confirmed, Done is
// closed. Returns whether this call drained the coordinator. A region that
// was not scheduled on this coordinator is ignored.
func (r *Reopener) NotifyRegionReopened(region regionstate.Info) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := string(region.Name())
	if _, scheduled := r.scheduled[name]; !scheduled {
		return false
	}
	delete(r.inProgress, name)
	r.confirmed[name] = true
	if len(r.confirmed) < len(r.scheduled) {
		return false
	}
	if !r.doneClosed {
		close(r.done)
		r.doneClosed = true
	}
	return true
}

// Table returns the table name this coordinator was created for.
func (r *Reopener) Table() string { return r.table }

// Registry is the table-name -> Reopener map the manager consults when a
// region server reports a region reopened.
type Registry struct {
	mu                 sync.Mutex
	byTable            map[string]*Reopener
	defaultParallelism int
}

// New constructs an empty Registry. defaultParallelism is used by Create
// calls that don't specify their own (0 selects DefaultParallelism).
func New(defaultParallelism int) *Registry {
	return &Registry{
		byTable:            make(map[string]*Reopener),
		defaultParallelism: defaultParallelism,
	}
}

// Create returns the existing coordinator for table if one is already
// registered (idempotent), otherwise creates and registers one scheduled to
// reopen regions with the registry's default parallelism.
func (reg *Registry) Create(table string, regions []regionstate.Info) *Reopener {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if existing, ok := reg.byTable[table]; ok {
		return existing
	}
	r := newReopener(table, regions, reg.defaultParallelism)
	reg.byTable[table] = r
	return r
}

// Get returns the coordinator registered for table, if any.
func (reg *Registry) Get(table string) (*Reopener, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.byTable[table]
	return r, ok
}

// Delete drops the coordinator registered for table, if any.
func (reg *Registry) Delete(table string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.byTable, table)
}

// NotifyRegionReopened forwards to the coordinator registered for region's
// table, if one exists; a no-op otherwise (the region server may report a
// reopen after the alteration workflow already finished or was never
// throttled).
func (reg *Registry) NotifyRegionReopened(region regionstate.Info) {
	reg.mu.Lock()
	r, ok := reg.byTable[region.TableName]
	reg.mu.Unlock()
	if !ok {
		return
	}
	r.NotifyRegionReopened(region)
}
