// Package progress keeps the latest progress log of a harness task in sync.
//
// A Client prefers the backend's server-push stream. When the stream fails it
// closes it, polls once immediately, keeps polling at a fixed interval and
// schedules a single attempt to reopen the stream after a cooldown. A
// successful reopen ends polling. Values from either transport are applied in
// arrival order; the last one to arrive wins.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultRetryDelay   = 10 * time.Second
)

var (
	ErrEmptyTaskID = errors.New("progress: task id is required")
	ErrStopped     = errors.New("progress: client stopped")
)

// Stream is an open push channel. Recv blocks until the next message payload
// arrives; any error ends the stream. Close must unblock a pending Recv.
type Stream interface {
	Recv() ([]byte, error)
	Close() error
}

// Transport is what the client needs from the backend.
type Transport interface {
	OpenStream(ctx context.Context, taskID string) (Stream, error)
	Poll(ctx context.Context, taskID string) ([]byte, error)
}

type State int

const (
	Idle State = iota
	Streaming
	Polling
)

func (s State) String() string {
	switch s {
	case Streaming:
		return "streaming"
	case Polling:
		return "polling"
	default:
		return "idle"
	}
}

type Config struct {
	Transport    Transport
	Clock        Clock
	Logger       *logger.Logger
	PollInterval time.Duration
	RetryDelay   time.Duration
	// Initial seeds the visible progress before anything arrives.
	Initial string
	// OnUpdate runs on the client's event loop after every applied value.
	OnUpdate func(progress string)
}

type Client struct {
	transport    Transport
	clock        Clock
	log          *logger.Logger
	pollInterval time.Duration
	retryDelay   time.Duration
	onUpdate     func(string)

	mu       sync.RWMutex
	taskID   string
	progress string
	state    State
	running  bool
	stopped  bool
	cancel   context.CancelFunc

	events     chan event
	wg         sync.WaitGroup
	releaseErr error
}

func NewClient(cfg Config) *Client {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &Client{
		transport:    cfg.Transport,
		clock:        clock,
		log:          log,
		pollInterval: pollInterval,
		retryDelay:   retryDelay,
		onUpdate:     cfg.OnUpdate,
		progress:     cfg.Initial,
		events:       make(chan event),
	}
}

// Start opens the stream for taskID and begins tracking progress. Calling it
// again while the client runs is a no-op; once the parent context has ended
// the client can be started again.
func (c *Client) Start(ctx context.Context, taskID string) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.taskID = taskID
	c.running = true
	c.state = Streaming
	c.cancel = cancel
	c.mu.Unlock()

	c.log.Debugw("progress_client_start", "task_id", taskID)

	c.wg.Add(1)
	go c.run(runCtx, taskID)
	return nil
}

// Stop releases the stream, the poll ticker and the retry timer, and waits for
// every goroutine the client started. No value is applied after Stop returns.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.state = Idle
	cancel := c.cancel
	taskID := c.taskID
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.log.Debugw("progress_client_stopped", "task_id", taskID)
	return c.releaseErr
}

// Progress returns the most recent progress text.
func (c *Client) Progress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) TaskID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taskID
}

// finish marks the loop as gone so State reports Idle and a client whose
// parent context ended can be started again.
func (c *Client) finish() {
	c.mu.Lock()
	c.state = Idle
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if !c.stopped {
		c.state = s
	}
	c.mu.Unlock()
}

// apply updates progress from a raw payload. Only a string "progress" field
// counts; anything else leaves the value alone.
func (c *Client) apply(data []byte, source string) {
	if !gjson.ValidBytes(data) {
		c.log.Warnw("progress_payload_malformed", "task_id", c.TaskID(), "source", source, "bytes", len(data))
		return
	}
	field := gjson.GetBytes(data, "progress")
	if field.Type != gjson.String {
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.progress = field.Str
	onUpdate := c.onUpdate
	c.mu.Unlock()

	if onUpdate != nil {
		onUpdate(field.Str)
	}
}

type eventKind int

const (
	evStreamOpened eventKind = iota
	evStreamMessage
	evStreamError
	evPollResult
)

type event struct {
	kind   eventKind
	gen    uint64
	stream Stream
	data   []byte
	err    error
}

// send hands an event to the loop, or drops it once the client is shutting
// down. A stream nobody will own anymore is closed here.
func (c *Client) send(ctx context.Context, ev event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
		if ev.stream != nil {
			_ = ev.stream.Close()
		}
	}
}

// loop holds the handles owned by the event loop goroutine.
type loop struct {
	c      *Client
	ctx    context.Context
	taskID string

	gen     uint64
	opening bool
	stream  Stream
	ticker  Ticker
	retry   Timer
}

func (c *Client) run(ctx context.Context, taskID string) {
	defer c.wg.Done()

	l := &loop{c: c, ctx: ctx, taskID: taskID}
	defer func() {
		c.releaseErr = l.release()
		c.finish()
	}()

	l.openStream()

	for {
		var tickC, retryC <-chan time.Time
		if l.ticker != nil {
			tickC = l.ticker.C()
		}
		if l.retry != nil {
			retryC = l.retry.C()
		}

		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			l.handle(ev)
		case <-tickC:
			l.poll()
		case <-retryC:
			l.retry = nil
			c.log.Infow("progress_stream_retry", "task_id", taskID)
			l.openStream()
		}
	}
}

func (l *loop) handle(ev event) {
	switch ev.kind {
	case evStreamOpened:
		if ev.gen != l.gen {
			_ = ev.stream.Close()
			return
		}
		l.opening = false
		l.stream = ev.stream
		l.stopPolling()
		l.c.setState(Streaming)
		l.c.log.Infow("progress_stream_open", "task_id", l.taskID)
		l.c.wg.Add(1)
		go l.read(ev.stream, ev.gen)

	case evStreamMessage:
		if ev.gen != l.gen {
			return
		}
		l.c.apply(ev.data, "stream")

	case evStreamError:
		if ev.gen != l.gen {
			return
		}
		l.c.log.Warnw("progress_stream_error", "task_id", l.taskID, "error", ev.err)
		l.opening = false
		if l.stream != nil {
			if err := l.stream.Close(); err != nil {
				l.c.log.Debugw("progress_stream_close_failed", "task_id", l.taskID, "error", err)
			}
			l.stream = nil
		}
		l.startPolling()
		l.scheduleRetry()
		l.c.setState(Polling)

	case evPollResult:
		if ev.err != nil {
			l.c.log.Warnw("progress_poll_failed", "task_id", l.taskID, "error", ev.err)
			return
		}
		l.c.apply(ev.data, "poll")
	}
}

func (l *loop) openStream() {
	if l.stream != nil || l.opening {
		return
	}
	l.opening = true
	l.gen++
	gen := l.gen

	l.c.wg.Add(1)
	go func() {
		defer l.c.wg.Done()
		s, err := l.c.transport.OpenStream(l.ctx, l.taskID)
		if err != nil {
			l.c.send(l.ctx, event{kind: evStreamError, gen: gen, err: err})
			return
		}
		l.c.send(l.ctx, event{kind: evStreamOpened, gen: gen, stream: s})
	}()
}

func (l *loop) read(s Stream, gen uint64) {
	defer l.c.wg.Done()
	for {
		data, err := s.Recv()
		if err != nil {
			l.c.send(l.ctx, event{kind: evStreamError, gen: gen, err: err})
			return
		}
		select {
		case l.c.events <- event{kind: evStreamMessage, gen: gen, data: data}:
		case <-l.ctx.Done():
			return
		}
	}
}

func (l *loop) startPolling() {
	if l.ticker != nil {
		return
	}
	l.poll()
	l.ticker = l.c.clock.NewTicker(l.c.pollInterval)
}

func (l *loop) stopPolling() {
	if l.ticker == nil {
		return
	}
	l.ticker.Stop()
	l.ticker = nil
}

func (l *loop) scheduleRetry() {
	if l.retry != nil {
		return
	}
	l.retry = l.c.clock.NewTimer(l.c.retryDelay)
}

func (l *loop) poll() {
	l.c.wg.Add(1)
	go func() {
		defer l.c.wg.Done()
		data, err := l.c.transport.Poll(l.ctx, l.taskID)
		l.c.send(l.ctx, event{kind: evPollResult, data: data, err: err})
	}()
}

func (l *loop) release() error {
	var result *multierror.Error
	if l.stream != nil {
		if err := l.stream.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		l.stream = nil
	}
	l.stopPolling()
	if l.retry != nil {
		l.retry.Stop()
		l.retry = nil
	}
	return result.ErrorOrNil()
}
