package scheduler

import "fmt"
import "errors"
import "runtime"
import "sync"
import "sync/atomic"

import s "github.com/bnclabs/gosettings"
import "github.com/bnclabs/golog"
import humanize "github.com/dustin/go-humanize"

// ErrorSubmissionRejected returned when every ring in the target
// workgroup is saturated. The submission has no side effects.
var ErrorSubmissionRejected = errors.New("scheduler.submissionrejected")

// ErrorSchedulerStopped returned when submitting to a scheduler that
// is not running.
var ErrorSchedulerStopped = errors.New("scheduler.stopped")

// Scheduler fixed pool of worker threads partitioned into priority
// workgroups. Explicit object owned by the caller, there is no
// process-wide instance.
type Scheduler struct {
	// 64-bit aligned counters
	naccepted int64
	nexecuted int64

	name    string
	groups  []*Workgroup
	workers []*worker
	running bool
	stop    atomic.Bool
	wg      sync.WaitGroup

	// configuration
	ringcap   int64
	spincount int

	logprefix string
}

// NewScheduler create a scheduler. Workgroups are added with AddGroup
// before Begin.
func NewScheduler(name string, setts s.Settings) *Scheduler {
	sched := &Scheduler{
		name: name,
		// configuration
		ringcap:   setts.Int64("ring.capacity"),
		spincount: int(setts.Int64("spin.count")),
		logprefix: fmt.Sprintf("sched[%v]", name),
	}
	if sched.ringcap <= 1 || (sched.ringcap&(sched.ringcap-1)) != 0 {
		panicerr("ring.capacity %v is not a power of 2", sched.ringcap)
	}
	return sched
}

// AddGroup declare a workgroup of `count` workers at priority rank
// `priority`, 0 being highest. Groups take contiguous, non-overlapping
// worker ranges in declaration order. Returns the group id.
func (sched *Scheduler) AddGroup(name string, count, priority int) int {
	if sched.running {
		panicerr("%v AddGroup() after Begin()", sched.logprefix)
	} else if count <= 0 {
		panicerr("%v group %q thread count %v", sched.logprefix, name, count)
	} else if len(sched.groups) >= Maxgroups {
		panicerr("%v number of groups exceed %v", sched.logprefix, Maxgroups)
	}
	start := 0
	if n := len(sched.groups); n > 0 {
		start = sched.groups[n-1].end
	}
	g := &Workgroup{
		name: name, start: start, end: start + count, priority: priority,
		rings: make([]*ring, count),
	}
	for i := range g.rings {
		g.rings[i] = newring(sched.ringcap)
	}
	sched.groups = append(sched.groups, g)
	return len(sched.groups) - 1
}

// Begin launch the worker threads. Workgroup layout is immutable from
// here on.
func (sched *Scheduler) Begin() {
	if sched.running {
		panicerr("%v Begin() called twice", sched.logprefix)
	} else if len(sched.groups) == 0 {
		panicerr("%v Begin() without workgroups", sched.logprefix)
	}
	sched.buildworkers()
	sched.running = true
	sched.stop.Store(false)
	sched.wg.Add(len(sched.workers))
	for _, w := range sched.workers {
		go sched.runworker(w)
	}
	fmsg := "%v started %v workers in %v groups\n"
	log.Infof(fmsg, sched.logprefix, len(sched.workers), len(sched.groups))
}

// End stop the workers and wait for them to drain their own rings.
// Stealing stops immediately, quiescence holds afterwards: accepted
// submissions equal executions.
func (sched *Scheduler) End() {
	if sched.running == false {
		return
	}
	sched.stop.Store(true)
	for _, w := range sched.workers {
		w.wake.notify()
	}
	sched.wg.Wait()
	sched.running = false
	sched.logstats()
}

// Submit a work item against workgroup `group`. The hint picks the
// target worker's ring within the group, on a full ring submission
// rotates through the group's other rings once before giving up with
// ErrorSubmissionRejected.
func (sched *Scheduler) Submit(group, hint int, work Work) error {
	if work.Fn == nil {
		panicerr("%v Submit() nil work", sched.logprefix)
	} else if group < 0 || group >= len(sched.groups) {
		panicerr("%v unknown group %v", sched.logprefix, group)
	}
	if sched.stop.Load() {
		return ErrorSchedulerStopped
	}
	// submissions before Begin() are queued and picked up by the
	// workers once they start.
	g := sched.groups[group]
	n := len(g.rings)
	if hint < 0 {
		hint = 0
	}
	for i := 0; i < n; i++ {
		off := (hint + i) % n
		if g.rings[off].push(work) {
			atomic.AddInt64(&sched.naccepted, 1)
			// an idle consumer may have raced past this item on
			// its way to parking, always re-check for one.
			sched.notifygroup(g, off)
			return nil
		}
	}
	return ErrorSubmissionRejected
}

// SubmitSync submit a work item and return a handle carrying its
// completion event and cooperative cancellation flag.
func (sched *Scheduler) SubmitSync(group, hint int, work Work) (*Taskhandle, error) {
	handle := &Taskhandle{done: NewBlockingEvent(false), busy: NewBusyworkEvent(false)}
	wrapped := Work{Fn: func(ctx *Context, arg interface{}) {
		tctx := *ctx
		tctx.handle = handle
		work.Fn(&tctx, work.Arg)
		handle.done.Notify()
		handle.busy.Notify()
	}}
	if err := sched.Submit(group, hint, wrapped); err != nil {
		return nil, err
	}
	return handle, nil
}

// Taskhandle returned by SubmitSync.
type Taskhandle struct {
	done     *BlockingEvent
	busy     *BusyworkEvent
	canceled atomic.Bool
}

// Wait block the calling thread until the work item completes.
func (th *Taskhandle) Wait() {
	th.done.Wait()
}

// Busywait run other work through `ctx`'s worker until the work item
// completes.
func (th *Taskhandle) Busywait(ctx *Context) {
	th.busy.Wait(ctx)
}

// Cancel request cooperative cancellation. Running work is never
// interrupted, the work item polls Context.Canceled.
func (th *Taskhandle) Cancel() {
	th.canceled.Store(true)
}

// Stats accepted submissions and executed work items.
func (sched *Scheduler) Stats() (accepted, executed int64) {
	return atomic.LoadInt64(&sched.naccepted), atomic.LoadInt64(&sched.nexecuted)
}

// Pending work items accepted but not yet executed, summed over every
// ring. Exact when quiescent.
func (sched *Scheduler) Pending() int64 {
	pending := int64(0)
	for _, g := range sched.groups {
		for _, r := range g.rings {
			pending += r.size()
		}
	}
	return pending
}

//---- worker loop

func (sched *Scheduler) runworker(w *worker) {
	defer sched.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		if sched.stop.Load() {
			break
		}
		if sched.runown(w) {
			continue
		}
		if sched.stealone(w) {
			continue
		}
		// brief bounded spin before parking.
		idle := true
		for i := 0; i < sched.spincount && sched.stop.Load() == false; i++ {
			if sched.runown(w) || sched.stealone(w) {
				idle = false
				break
			}
			runtime.Gosched()
		}
		if idle == false {
			continue
		}
		// publish intent to park, then re-check: a producer that
		// enqueued before observing parked is now our duty to find.
		w.parked.Store(true)
		if sched.runown(w) || sched.stealone(w) {
			w.parked.Store(false)
			continue
		}
		if sched.stop.Load() {
			w.parked.Store(false)
			break
		}
		atomic.AddInt64(&w.nparked, 1)
		w.wake.wait()
		w.parked.Store(false)
	}

	// drain own rings, no further stealing.
	for sched.runown(w) {
	}
}

// runown pop one item from this worker's own rings, in workgroup
// priority order.
func (sched *Scheduler) runown(w *worker) bool {
	for _, gid := range w.priorder {
		g := sched.groups[gid]
		if item, ok := g.rings[w.id-g.start].pop(); ok {
			sched.execute(w, gid, item, false)
			return true
		}
	}
	return false
}

// stealone pop one item from an eligible peer's rings. Victims rotate
// so that no peer starves, and only rings of groups containing both
// workers are touched.
func (sched *Scheduler) stealone(w *worker) bool {
	span := w.stealend - w.stealstart
	if span <= 0 || w.stealmask == 0 {
		return false
	}
	rot := int(atomic.AddUint32(&w.rot, 1))
	for i := 0; i < span; i++ {
		victim := w.stealstart + (rot+i)%span
		if (w.stealmask>>uint(victim))&1 == 0 {
			continue
		}
		for _, gid := range w.priorder {
			g := sched.groups[gid]
			if victim < g.start || victim >= g.end {
				continue
			}
			if item, ok := g.rings[victim-g.start].pop(); ok {
				sched.execute(w, gid, item, true)
				return true
			}
		}
	}
	return false
}

// assist one drain/steal round on behalf of a busy-waiting work item
// running on worker `id`.
func (sched *Scheduler) assist(id int) bool {
	if id < 0 || id >= len(sched.workers) {
		return false
	}
	w := sched.workers[id]
	return sched.runown(w) || sched.stealone(w)
}

func (sched *Scheduler) execute(w *worker, gid int, item Work, stolen bool) {
	ctx := Context{sched: sched, worker: w.id, group: gid}
	item.Fn(&ctx, item.Arg)
	atomic.AddInt64(&w.nexecuted, 1)
	if stolen {
		atomic.AddInt64(&w.nstolen, 1)
	}
	atomic.AddInt64(&sched.nexecuted, 1)
}

// notifygroup wake every parked member of the group. Notifications
// coalesce per worker and a spuriously woken worker re-parks, so the
// cost is bounded by the group width.
func (sched *Scheduler) notifygroup(g *Workgroup, off int) {
	if len(sched.workers) == 0 {
		return
	}
	for id := g.start; id < g.end; id++ {
		if sched.workers[id].parked.Load() {
			sched.workers[id].wake.notify()
		}
	}
}

func (sched *Scheduler) logstats() {
	accepted, executed := sched.Stats()
	fmsg := "%v stopped, accepted:%v executed:%v\n"
	log.Infof(
		fmsg, sched.logprefix,
		humanize.Comma(accepted), humanize.Comma(executed),
	)
	for _, w := range sched.workers {
		fmsg := "%v worker%v executed:%v stolen:%v parked:%v\n"
		log.Verbosef(
			fmsg, sched.logprefix, w.id,
			atomic.LoadInt64(&w.nexecuted), atomic.LoadInt64(&w.nstolen),
			atomic.LoadInt64(&w.nparked),
		)
	}
}

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}
