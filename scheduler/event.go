package scheduler

import "runtime"

// wakeevent coalescing binary signal used to park and resume workers.
// Notifications collapse: at most one is pending, a second notify
// before the wait is a no-op. Single waiter, any thread may notify.
type wakeevent struct {
	ch chan struct{}
}

func newwakeevent() *wakeevent {
	return &wakeevent{ch: make(chan struct{}, 1)}
}

func (ev *wakeevent) notify() {
	select {
	case ev.ch <- struct{}{}:
	default:
	}
}

func (ev *wakeevent) wait() {
	<-ev.ch
}

// BlockingEvent binary semaphore completion event. Wait blocks the
// calling thread until some thread calls Notify.
type BlockingEvent struct {
	ch chan struct{}
}

// NewBlockingEvent create an unsignalled event, `set` starts it
// signalled.
func NewBlockingEvent(set bool) *BlockingEvent {
	ev := &BlockingEvent{ch: make(chan struct{}, 1)}
	if set {
		ev.ch <- struct{}{}
	}
	return ev
}

// Wait block until notified, consuming the notification.
func (ev *BlockingEvent) Wait() {
	<-ev.ch
}

// Notify signal the event, notifications coalesce.
func (ev *BlockingEvent) Notify() {
	select {
	case ev.ch <- struct{}{}:
	default:
	}
}

// BusyworkEvent completion event whose Wait keeps the calling worker
// productive, running other work until signalled.
type BusyworkEvent struct {
	ch chan struct{}
}

// NewBusyworkEvent create an unsignalled event, `set` starts it
// signalled.
func NewBusyworkEvent(set bool) *BusyworkEvent {
	ev := &BusyworkEvent{ch: make(chan struct{}, 1)}
	if set {
		ev.ch <- struct{}{}
	}
	return ev
}

// Wait until notified, draining and stealing work through `ctx`'s
// worker in the meantime. A nil ctx degrades to a blocking wait.
func (ev *BusyworkEvent) Wait(ctx *Context) {
	if ctx == nil {
		<-ev.ch
		return
	}
	for {
		select {
		case <-ev.ch:
			return
		default:
		}
		if ctx.sched.assist(ctx.worker) == false {
			runtime.Gosched()
		}
	}
}

// Notify signal the event, notifications coalesce.
func (ev *BusyworkEvent) Notify() {
	select {
	case ev.ch <- struct{}{}:
	default:
	}
}
