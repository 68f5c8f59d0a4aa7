// Package actionqueue implements the Action Queues (component 8): the six
// pending-operation maps (split, compact, major-compact, flush, and the two
// column-family-scoped compact/major-compact maps) the manager drains one
// heartbeat at a time. Each queue is keyed by region name and backed by
// github.com/plar/go-adaptive-radix-tree.
package actionqueue

import (
	art "github.com/plar/go-adaptive-radix-tree"

	"regionmaster/internal/regionstate"
)

// Action is one pending operation: the region it targets and the server
// expected to perform it. A region may only have one pending action per
// queue at a time -- a second Put for the same region replaces the first.
type Action struct {
	Region          regionstate.Info
	PreferredServer string
}

// Kind names which of the four single-level queues an action belongs to.
type Kind int

const (
	Split Kind = iota
	Compact
	MajorCompact
	Flush
)

// Queue is a single-level ordered action map.
type Queue struct {
	kind Kind
	tree art.Tree
}

// NewQueue creates an empty queue of the given kind.
func NewQueue(kind Kind) *Queue {
	return &Queue{kind: kind, tree: art.New()}
}

// Put schedules (or replaces) the pending action for region.
func (q *Queue) Put(region regionstate.Info, preferredServer string) {
	q.tree.Insert(region.Name(), &Action{Region: region, PreferredServer: preferredServer})
}

// Remove drops any pending action for region.
func (q *Queue) Remove(region regionstate.Info) {
	q.tree.Delete(region.Name())
}

// Len reports how many regions have a pending action in this queue.
func (q *Queue) Len() int {
	return q.tree.Size()
}

// DrainForServer removes and returns every action whose preferred server
// equals server -- the per-heartbeat delivery pass. Delivery is at-most-once
// from the manager's perspective: a removed action is gone even if the
// reply never reaches the server, so the region server side must tolerate a
// duplicate or missed instruction.
func (q *Queue) DrainForServer(server string) []Action {
	var hit [][]byte
	var out []Action
	q.tree.ForEach(func(node art.Node) bool {
		if node.Kind() != art.Leaf {
			return true
		}
		action := node.Value().(*Action)
		if action.PreferredServer == server {
			hit = append(hit, append([]byte(nil), node.Key()...))
			out = append(out, *action)
		}
		return true
	})
	for _, k := range hit {
		q.tree.Delete(k)
	}
	return out
}

// CFAction is a pending action scoped to one column family of a region.
type CFAction struct {
	Region          regionstate.Info
	Family          string
	PreferredServer string
}

// CFQueue is a two-level ordered map: region name -> column family -> action.
// The outer level reuses the same radix tree as Queue; the inner level is a
// plain map since column-family fan-out per region is small.
type CFQueue struct {
	tree art.Tree
}

// NewCFQueue creates an empty column-family-scoped queue.
func NewCFQueue() *CFQueue {
	return &CFQueue{tree: art.New()}
}

// Put schedules (or replaces) the pending action for (region, family).
func (q *CFQueue) Put(region regionstate.Info, family, preferredServer string) {
	var byFamily map[string]*CFAction
	if v, ok := q.tree.Search(region.Name()); ok {
		byFamily = v.(map[string]*CFAction)
	} else {
		byFamily = make(map[string]*CFAction)
		q.tree.Insert(region.Name(), byFamily)
	}
	byFamily[family] = &CFAction{Region: region, Family: family, PreferredServer: preferredServer}
}

// Remove drops the pending action for (region, family), if any.
func (q *CFQueue) Remove(region regionstate.Info, family string) {
	v, ok := q.tree.Search(region.Name())
	if !ok {
		return
	}
	byFamily := v.(map[string]*CFAction)
	delete(byFamily, family)
	if len(byFamily) == 0 {
		q.tree.Delete(region.Name())
	}
}

// Len reports how many regions have at least one pending column-family
// action in this queue.
func (q *CFQueue) Len() int {
	return q.tree.Size()
}

// DrainForServer removes and returns every column-family action whose
// preferred server equals server.
func (q *CFQueue) DrainForServer(server string) []CFAction {
	var emptied [][]byte
	var out []CFAction
	q.tree.ForEach(func(node art.Node) bool {
		if node.Kind() != art.Leaf {
			return true
		}
		byFamily := node.Value().(map[string]*CFAction)
		for family, action := range byFamily {
			if action.PreferredServer == server {
				out = append(out, *action)
				delete(byFamily, family)
			}
		}
		if len(byFamily) == 0 {
			emptied = append(emptied, append([]byte(nil), node.Key()...))
		}
		return true
	})
	for _, k := range emptied {
		q.tree.Delete(k)
	}
	return out
}

// Queues bundles the six action maps the manager maintains, matching the
// source's regionsToSplit / regionsToCompact / regionsToMajorCompact /
// regionsToFlush / cfRegionsToCompact / cfRegionsToMajorCompact fields.
type Queues struct {
	Split          *Queue
	Compact        *Queue
	MajorCompact   *Queue
	Flush          *Queue
	CFCompact      *CFQueue
	CFMajorCompact *CFQueue
}

// New constructs an empty set of action queues.
func New() *Queues {
	return &Queues{
		Split:          NewQueue(Split),
		Compact:        NewQueue(Compact),
		MajorCompact:   NewQueue(MajorCompact),
		Flush:          NewQueue(Flush),
		CFCompact:      NewCFQueue(),
		CFMajorCompact: NewCFQueue(),
	}
}

// Empty reports whether every queue is empty -- consulted by the Assignment
// Engine before it decides to invoke the Load Balancer on an empty candidate
// set (§4.3 step 2).
func (q *Queues) Empty() bool {
	return q.Split.Len() == 0 && q.Compact.Len() == 0 && q.MajorCompact.Len() == 0 &&
		q.Flush.Len() == 0 && q.CFCompact.Len() == 0 && q.CFMajorCompact.Len() == 0
}
