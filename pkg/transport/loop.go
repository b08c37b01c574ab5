package transport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// maxDatagram is the receive buffer size; larger than any SCP packet but
// small enough to allocate per socket.
const maxDatagram = 65536

// EventLoop is the production Loop implementation. Create one with NewLoop,
// run it with Run on a dedicated goroutine, and stop it with Stop once every
// connection using it has completed its teardown.
type EventLoop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	stopped bool

	start time.Time
}

// NewLoop returns a new, un-started event loop.
func NewLoop() *EventLoop {
	return &EventLoop{
		wake:  make(chan struct{}, 1),
		start: time.Now(),
	}
}

// Run executes posted work until Stop is called. It must be called exactly
// once, and all loop work runs on the calling goroutine.
func (l *EventLoop) Run() {
	for {
		l.mu.Lock()
		work := l.pending
		l.pending = nil
		stopped := l.stopped
		l.mu.Unlock()

		for _, fn := range work {
			fn()
		}
		if stopped {
			return
		}
		if len(work) == 0 {
			<-l.wake
		}
	}
}

// Stop makes Run return after the work already queued has been executed.
// Further Posts are dropped.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.signal()
}

// Post implements Loop.
func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	l.signal()
}

func (l *EventLoop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Now implements Loop.
func (l *EventLoop) Now() time.Duration {
	return time.Since(l.start)
}

// OpenUDP implements Loop.
func (l *EventLoop) OpenUDP(remote string) (Socket, error) {
	raddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", remote, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", remote, err)
	}
	return &loopSocket{loop: l, conn: conn}, nil
}

// NewTimer implements Loop.
func (l *EventLoop) NewTimer() Timer {
	return &loopTimer{loop: l}
}

// loopSocket adapts a connected *net.UDPConn to the Socket interface. A
// reader goroutine forwards datagrams onto the loop; each Send runs on its
// own goroutine and posts its completion back. The generation counter makes
// datagrams from a superseded StartRecv harmless.
//
// All methods must be called from the loop goroutine.
type loopSocket struct {
	loop    *EventLoop
	conn    *net.UDPConn
	recvGen int
	recvOn  bool
	closing bool
}

func (s *loopSocket) StartRecv(cb func(data []byte)) {
	s.recvGen++
	s.recvOn = true
	gen := s.recvGen

	go func() {
		buf := make([]byte, maxDatagram)
		for {
			n, err := s.conn.Read(buf)
			if err != nil {
				// The socket was closed (or is otherwise unusable); inbound
				// errors are not reported, matching the engine's policy of
				// ignoring undecipherable traffic.
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			s.loop.Post(func() {
				if s.closing || !s.recvOn || s.recvGen != gen {
					return
				}
				cb(data)
			})
		}
	}()
}

func (s *loopSocket) StopRecv() {
	s.recvOn = false
	s.recvGen++
}

func (s *loopSocket) Send(data []byte, done func(err error)) {
	go func() {
		_, err := s.conn.Write(data)
		s.loop.Post(func() { done(err) })
	}()
}

func (s *loopSocket) Close(closed func()) {
	if s.closing {
		return
	}
	s.closing = true
	s.conn.Close()
	s.loop.Post(closed)
}

func (s *loopSocket) IsClosing() bool {
	return s.closing
}

// loopTimer adapts time.AfterFunc to the Timer interface. The generation
// counter is bumped by Start, Stop and Close so that an expiry already in
// flight on the timer goroutine is discarded once it reaches the loop.
//
// All methods must be called from the loop goroutine.
type loopTimer struct {
	loop    *EventLoop
	timer   *time.Timer
	gen     int
	closing bool
}

func (t *loopTimer) Start(d time.Duration, expire func()) {
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() {
		t.loop.Post(func() {
			if t.closing || t.gen != gen {
				return
			}
			expire()
		})
	})
}

func (t *loopTimer) Stop() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *loopTimer) Close(closed func()) {
	if t.closing {
		return
	}
	t.Stop()
	t.closing = true
	t.loop.Post(closed)
}

func (t *loopTimer) IsClosing() bool {
	return t.closing
}
