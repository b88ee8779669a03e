package progress

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// manualClock fires tickers and timers only when Advance is called.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
	timers  []*manualTimer
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(0, 0)}
}

func (m *manualClock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{clock: m, period: d, next: m.now.Add(d), c: make(chan time.Time, 1)}
	m.tickers = append(m.tickers, t)
	return t
}

func (m *manualClock) NewTimer(d time.Duration) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{clock: m, deadline: m.now.Add(d), c: make(chan time.Time, 1)}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	for _, t := range m.timers {
		if t.stopped || t.fired || t.deadline.After(m.now) {
			continue
		}
		t.fired = true
		select {
		case t.c <- m.now:
		default:
		}
	}
	for _, t := range m.tickers {
		for !t.stopped && !t.next.After(m.now) {
			select {
			case t.c <- m.now:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
}

// PendingTimers counts timers that are neither stopped nor fired.
func (m *manualClock) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (m *manualClock) TimersCreated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *manualClock) ActiveTickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type manualTicker struct {
	clock   *manualClock
	period  time.Duration
	next    time.Time
	c       chan time.Time
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	t.stopped = true
	t.clock.mu.Unlock()
}

type manualTimer struct {
	clock    *manualClock
	deadline time.Time
	c        chan time.Time
	stopped  bool
	fired    bool
}

func (t *manualTimer) C() <-chan time.Time { return t.c }

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type pollReply struct {
	data []byte
	err  error
}

// fakeTransport hands out fakeStreams and answers polls from a channel the
// test feeds.
type fakeTransport struct {
	mu       sync.Mutex
	opens    int
	openErrs []error
	streams  []*fakeStream
	polls    int
	replies  chan pollReply
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{replies: make(chan pollReply)}
}

// failNextOpens queues errors returned by the next OpenStream calls.
func (f *fakeTransport) failNextOpens(errs ...error) {
	f.mu.Lock()
	f.openErrs = append(f.openErrs, errs...)
	f.mu.Unlock()
}

func (f *fakeTransport) OpenStream(ctx context.Context, taskID string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		return nil, err
	}
	s := newFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeTransport) Poll(ctx context.Context, taskID string) ([]byte, error) {
	f.mu.Lock()
	f.polls++
	f.mu.Unlock()
	select {
	case r := <-f.replies:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTransport) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeTransport) StreamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeTransport) Stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

type fakeStream struct {
	msgs      chan []byte
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		msgs:   make(chan []byte),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Recv() ([]byte, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case err := <-s.errs:
		return nil, err
	case <-s.closed:
		return nil, io.ErrClosedPipe
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Emit blocks until the client reads the message.
func (s *fakeStream) Emit(payload string) {
	s.msgs <- []byte(payload)
}

// TryEmit gives up after wait; it reports whether the client took the message.
func (s *fakeStream) TryEmit(payload string, wait time.Duration) bool {
	select {
	case s.msgs <- []byte(payload):
		return true
	case <-time.After(wait):
		return false
	}
}

func (s *fakeStream) Fail(err error) {
	s.errs <- err
}

var errNetwork = errors.New("connection reset by peer")
