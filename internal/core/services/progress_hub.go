package services

import (
	"context"
	"sync"
	"time"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/cklxx/NanoBee/internal/progress"
	"github.com/hashicorp/go-multierror"
)

type ProgressHubConfig struct {
	Transport    progress.Transport
	Clock        progress.Clock
	Logger       *logger.Logger
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// ProgressHub runs one progress client per watched task and fans its
// updates out to every subscriber. A client starts with the first
// subscriber and stops when the last one leaves.
type ProgressHub struct {
	cfg    ProgressHubConfig
	logger *logger.Logger

	mu      sync.Mutex
	watches map[string]*watch
	closed  bool
}

type watch struct {
	taskID string
	client *progress.Client
	subs   map[uint64]chan string
	nextID uint64
}

var _ ports.ProgressHub = (*ProgressHub)(nil)

func NewProgressHub(cfg ProgressHubConfig) *ProgressHub {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &ProgressHub{cfg: cfg, logger: log, watches: make(map[string]*watch)}
}

// Subscribe returns a channel carrying the task's progress text. The channel
// holds at most one value; a slow reader only sees the newest. It is closed
// by cancel, by ctx ending, or by Close.
func (h *ProgressHub) Subscribe(ctx context.Context, taskID string) (<-chan string, func(), error) {
	if taskID == "" {
		return nil, nil, progress.ErrEmptyTaskID
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrHubClosed
	}
	w, ok := h.watches[taskID]
	if !ok {
		w = &watch{taskID: taskID, subs: make(map[uint64]chan string)}
		w.client = progress.NewClient(progress.Config{
			Transport:    h.cfg.Transport,
			Clock:        h.cfg.Clock,
			Logger:       h.logger.With("task_id", taskID),
			PollInterval: h.cfg.PollInterval,
			RetryDelay:   h.cfg.RetryDelay,
			OnUpdate:     func(p string) { h.broadcast(w, p) },
		})
		// The client outlives the subscriber that happened to start it.
		if err := w.client.Start(context.Background(), taskID); err != nil {
			h.mu.Unlock()
			return nil, nil, err
		}
		h.watches[taskID] = w
		h.logger.Infow("progress_watch_started", "task_id", taskID)
	}

	id := w.nextID
	w.nextID++
	ch := make(chan string, 1)
	if current := w.client.Progress(); current != "" {
		ch <- current
	}
	w.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	unsub := func() { once.Do(func() { h.unsubscribe(w, id) }) }
	stop := context.AfterFunc(ctx, unsub)
	cancel := func() {
		stop()
		unsub()
	}
	return ch, cancel, nil
}

func (h *ProgressHub) unsubscribe(w *watch, id uint64) {
	h.mu.Lock()
	ch, ok := w.subs[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(w.subs, id)
	close(ch)

	last := len(w.subs) == 0 && h.watches[w.taskID] == w
	if last {
		delete(h.watches, w.taskID)
	}
	h.mu.Unlock()

	if last {
		if err := w.client.Stop(); err != nil {
			h.logger.Warnw("progress_watch_stop_failed", "task_id", w.taskID, "error", err)
		}
		h.logger.Infow("progress_watch_stopped", "task_id", w.taskID)
	}
}

func (h *ProgressHub) broadcast(w *watch, p string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watches[w.taskID] != w {
		return
	}
	for _, ch := range w.subs {
		select {
		case ch <- p:
		default:
			// Replace the unread value; broadcast is the only sender.
			select {
			case <-ch:
			default:
			}
			ch <- p
		}
	}
}

// Snapshot returns the current progress of a watched task.
func (h *ProgressHub) Snapshot(taskID string) (string, bool) {
	h.mu.Lock()
	w, ok := h.watches[taskID]
	h.mu.Unlock()
	if !ok {
		return "", false
	}
	return w.client.Progress(), true
}

// Watching is the number of tasks with a running client.
func (h *ProgressHub) Watching() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watches)
}

// Close stops every client and closes every subscriber channel.
func (h *ProgressHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	watches := h.watches
	h.watches = make(map[string]*watch)
	for _, w := range watches {
		for id, ch := range w.subs {
			close(ch)
			delete(w.subs, id)
		}
	}
	h.mu.Unlock()

	var result *multierror.Error
	for _, w := range watches {
		if err := w.client.Stop(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	h.logger.Infow("progress_hub_closed", "watches", len(watches))
	return result.ErrorOrNil()
}
