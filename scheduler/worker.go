package scheduler

import "fmt"
import "sort"
import "sync/atomic"

// Work opaque invocable submitted to the scheduler, an invocation
// callback plus one argument word. Copy-trivial.
type Work struct {
	Fn  func(ctx *Context, arg interface{})
	Arg interface{}
}

// Context handed to a work item when it runs. Carries the scheduler
// and the identity of the executing worker, work items reach the
// scheduler only through here.
type Context struct {
	sched  *Scheduler
	worker int
	group  int
	handle *Taskhandle
}

// Scheduler that is executing this work item.
func (ctx *Context) Scheduler() *Scheduler {
	return ctx.sched
}

// Worker index executing this work item.
func (ctx *Context) Worker() int {
	return ctx.worker
}

// Group the work item was submitted against.
func (ctx *Context) Group() int {
	return ctx.group
}

// Canceled cooperative cancellation flag, set through the task
// handle. Running work is never interrupted, long work items poll.
func (ctx *Context) Canceled() bool {
	return ctx.handle != nil && ctx.handle.canceled.Load()
}

// Stopping whether the scheduler is shutting down.
func (ctx *Context) Stopping() bool {
	return ctx.sched.stop.Load()
}

// Workgroup ordered range of worker indices sharing a priority rank
// and one ring per member worker. Immutable after Begin.
type Workgroup struct {
	name     string
	start    int
	end      int
	priority int
	rings    []*ring
}

// Name of this workgroup.
func (g *Workgroup) Name() string {
	return g.name
}

// Range of worker indices [start, end) assigned to this workgroup.
func (g *Workgroup) Range() (start, end int) {
	return g.start, g.end
}

// Priority rank of this workgroup, 0 is highest.
func (g *Workgroup) Priority() int {
	return g.priority
}

// worker per-thread state. priorder lists the groups this worker
// belongs to, highest priority first. stealmask has a bit for every
// peer this worker may steal from, peers sharing at least one
// workgroup.
type worker struct {
	// 64-bit aligned tallies, updated atomically: busy-waiters
	// assist from foreign threads.
	nexecuted int64
	nstolen   int64
	nparked   int64

	id         int
	priorder   []int
	stealstart int
	stealend   int
	stealmask  uint64
	rot        uint32
	parked     atomic.Bool
	wake       *wakeevent
}

func (sched *Scheduler) buildworkers() {
	nworkers := 0
	for _, g := range sched.groups {
		if g.end > nworkers {
			nworkers = g.end
		}
	}
	if nworkers > Maxworkers {
		panicerr("%v workers exceed %v", nworkers, Maxworkers)
	}
	sched.workers = make([]*worker, nworkers)
	for id := 0; id < nworkers; id++ {
		w := &worker{
			id: id, stealstart: nworkers, stealend: 0,
			wake: newwakeevent(),
		}
		for gid, g := range sched.groups {
			if id < g.start || id >= g.end {
				continue
			}
			w.priorder = append(w.priorder, gid)
			if g.start < w.stealstart {
				w.stealstart = g.start
			}
			if g.end > w.stealend {
				w.stealend = g.end
			}
			for peer := g.start; peer < g.end; peer++ {
				if peer != id {
					w.stealmask |= uint64(1) << uint(peer)
				}
			}
		}
		// highest priority first, declaration order breaks ties.
		sort.SliceStable(w.priorder, func(i, j int) bool {
			gi, gj := sched.groups[w.priorder[i]], sched.groups[w.priorder[j]]
			return gi.priority < gj.priority
		})
		sched.workers[id] = w
	}
}

func (w *worker) String() string {
	fmsg := "worker{id:%v steal:[%v,%v) mask:%x}"
	return fmt.Sprintf(fmsg, w.id, w.stealstart, w.stealend, w.stealmask)
}
