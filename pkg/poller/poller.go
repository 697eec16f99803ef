// Package poller implements the per-worker, single-threaded readiness
// event loop: a fixed-capacity fd table backed by epoll, plus a min-heap
// timer queue that is the loop's only cross-thread-safe piece of state.
package poller

import (
	"container/heap"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Event is the readiness/timer bitmask surfaced to callbacks.
type Event int

const (
	EventRead Event = 1 << iota
	EventWrite
	EventTimer
)

// Callback receives the fd (-1 for a timer fire), the fd's event mask (its
// registered interest with the fired readiness ORed in, or EventTimer for a
// timer fire), and the opaque arg registered alongside it.
type Callback func(fd int, events Event, arg any)

// eventItem mirrors the C original's EventItem: a fixed-capacity,
// fd-indexed slot holding per-fd interest and callbacks.
type eventItem struct {
	fd          int
	events      Event
	readCB      Callback
	writeCB     Callback
	readArg     any
	writeArg    any
	initialized bool
}

// MaxFD bounds the fd table exactly like the original's Poller::MAX_FD;
// accept paths reject fds beyond this so the table never needs to grow
// while the loop is running.
const MaxFD = 10240

// Poller is not safe for concurrent use except for AddTimer, which is the
// only operation documented safe from any goroutine.
type Poller struct {
	epollFD     int
	timeoutMS   int
	running     bool
	items       []eventItem
	epollEvents []unix.EpollEvent
	fireList    []*eventItem

	timerMu sync.Mutex
	timers  timerHeap
}

// New creates a Poller with a fd table sized for cap (defaults to MaxFD).
func New(capacity int) (*Poller, error) {
	if capacity <= 0 || capacity > MaxFD {
		capacity = MaxFD
	}
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Poller{
		epollFD:     fd,
		timeoutMS:   10,
		items:       make([]eventItem, capacity),
		epollEvents: make([]unix.EpollEvent, capacity),
	}, nil
}

func (p *Poller) Close() error {
	return unix.Close(p.epollFD)
}

func (p *Poller) SetTimeout(ms int) { p.timeoutMS = ms }

func (p *Poller) SetFDReadCallback(fd int, cb Callback, arg any) {
	p.items[fd].fd = fd
	p.items[fd].readCB = cb
	p.items[fd].readArg = arg
}

func (p *Poller) SetFDWriteCallback(fd int, cb Callback, arg any) {
	p.items[fd].fd = fd
	p.items[fd].writeCB = cb
	p.items[fd].writeArg = arg
}

func toEpollMask(ev Event) uint32 {
	var m uint32
	if ev&EventRead != 0 {
		m |= unix.EPOLLIN
	}
	if ev&EventWrite != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

// AddFD registers fd with the given interest mask.
func (p *Poller) AddFD(fd int, events Event) error {
	ee := unix.EpollEvent{Events: toEpollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_ADD, fd, &ee); err != nil {
		return err
	}
	p.items[fd].fd = fd
	p.items[fd].events |= events
	p.items[fd].initialized = true
	return nil
}

// DelFD removes fd from the poller.
func (p *Poller) DelFD(fd int) error {
	if err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return err
	}
	p.items[fd].events = 0
	p.items[fd].initialized = false
	return nil
}

// AlterEvent replaces fd's interest mask.
func (p *Poller) AlterEvent(fd int, events Event) error {
	ee := unix.EpollEvent{Events: toEpollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_MOD, fd, &ee); err != nil {
		return err
	}
	p.items[fd].events = events
	return nil
}

// AddEvent ORs additional interest into fd's mask.
func (p *Poller) AddEvent(fd int, events Event) error {
	return p.AlterEvent(fd, p.items[fd].events|events)
}

// DelEvent masks interest out of fd's mask.
func (p *Poller) DelEvent(fd int, events Event) error {
	return p.AlterEvent(fd, p.items[fd].events&^events)
}

// AddTimer schedules cb to fire after intervalMs, repeating if repeat is
// set. Safe to call from any goroutine.
func (p *Poller) AddTimer(intervalMs int, repeat bool, cb Callback, arg any) bool {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	heap.Push(&p.timers, &timerItem{
		expiration: nowMillis() + int64(intervalMs),
		interval:   intervalMs,
		repeat:     repeat,
		callback:   cb,
		arg:        arg,
	})
	return true
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Stop flips the running flag; observed at the top of the next loop
// iteration. Idempotent.
func (p *Poller) Stop() { p.running = false }

// RunLoop blocks until Stop is called. Intended to run on a goroutine
// locked to its OS thread (runtime.LockOSThread) so the epoll fd and its
// owning thread never migrate mid-wait.
func (p *Poller) RunLoop() {
	p.running = true
	for p.running {
		wait := p.timeoutMS
		p.timerMu.Lock()
		if len(p.timers) > 0 {
			now := nowMillis()
			earliest := p.timers[0].expiration
			if earliest > now {
				if d := int(earliest - now); wait < 0 || d < wait {
					wait = d
				}
			} else {
				wait = 0
			}
		}
		p.timerMu.Unlock()

		p.fireList = p.fireList[:0]
		p.poll(wait)
		p.handleFireEvents()
		p.checkTimers()
	}
}

func (p *Poller) poll(timeoutMS int) {
	n, err := unix.EpollWait(p.epollFD, p.epollEvents, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return
		}
		return
	}
	for i := 0; i < n; i++ {
		ee := p.epollEvents[i]
		item := &p.items[ee.Fd]
		if ee.Events&unix.EPOLLIN != 0 {
			item.events |= EventRead
		}
		if ee.Events&unix.EPOLLOUT != 0 {
			item.events |= EventWrite
		}
		if ee.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			item.events |= EventRead | EventWrite
		}
		p.fireList = append(p.fireList, item)
	}
}

func (p *Poller) handleFireEvents() {
	for _, item := range p.fireList {
		if item.events&EventRead != 0 && item.readCB != nil {
			item.readCB(item.fd, item.events, item.readArg)
		}
		if item.events&EventWrite != 0 && item.writeCB != nil {
			item.writeCB(item.fd, item.events, item.writeArg)
		}
	}
}

func (p *Poller) checkTimers() {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	now := nowMillis()
	for len(p.timers) > 0 && p.timers[0].expiration <= now {
		item := heap.Pop(&p.timers).(*timerItem)
		if item.callback != nil {
			item.callback(-1, EventTimer, item.arg)
		}
		if item.repeat {
			item.expiration = now + int64(item.interval)
			heap.Push(&p.timers, item)
		}
	}
}
