package services

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/cklxx/NanoBee/internal/infrastructure/harness"
)

var errUnreachable = errors.New("dial tcp: connection refused")

// fakeHarness serves tasks from memory. down makes every call fail like an
// unreachable backend.
type fakeHarness struct {
	mu       sync.Mutex
	tasks    map[string]*domain.Task
	order    []string
	down     bool
	progress map[string]string
	calls    map[string]int

	eventsErr error

	// PPT
	searchReq  domain.SearchRequest
	outlineReq domain.OutlineRequest
	slidesReq  domain.SlidesRequest
	imagesReq  domain.ImagesRequest
	frames     []domain.OutlineEvent
	streamErr  error
}

func newFakeHarness() *fakeHarness {
	return &fakeHarness{
		tasks:    make(map[string]*domain.Task),
		progress: make(map[string]string),
		calls:    make(map[string]int),
	}
}

func (f *fakeHarness) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if f.down {
		return errUnreachable
	}
	return nil
}

func (f *fakeHarness) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeHarness) SetDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func notFound(path string) error {
	return &harness.StatusError{Method: http.MethodGet, Path: path, StatusCode: http.StatusNotFound, Detail: "Task not found"}
}

func (f *fakeHarness) lookup(id string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, notFound("/api/tasks/" + id)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeHarness) setStatus(id string, status domain.TaskStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[id]; ok {
		t.Status = status
	}
}

func (f *fakeHarness) CreateTask(ctx context.Context, req domain.CreateTaskRequest) (*domain.CreateTaskResult, error) {
	if err := f.call("CreateTask"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := req.TaskID
	if id == "" {
		id = "task-" + string(rune('a'+len(f.order)))
	}
	f.tasks[id] = &domain.Task{ID: id, Goal: req.Goal, Status: domain.TaskStatusPending, WorkspaceID: id, CreatedAt: "2024-05-01T10:00:00"}
	f.order = append(f.order, id)
	return &domain.CreateTaskResult{ID: id, WorkspaceID: id}, nil
}

func (f *fakeHarness) ListTasks(ctx context.Context) ([]domain.Task, error) {
	if err := f.call("ListTasks"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Task, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.tasks[id])
	}
	return out, nil
}

func (f *fakeHarness) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if err := f.call("GetTask"); err != nil {
		return nil, err
	}
	return f.lookup(id)
}

func (f *fakeHarness) RunInit(ctx context.Context, id string) (*domain.InitResult, error) {
	if err := f.call("RunInit"); err != nil {
		return nil, err
	}
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}
	f.setStatus(id, domain.TaskStatusRunning)
	return &domain.InitResult{Status: "initialized", Files: []string{"a", "b", "c"}}, nil
}

func (f *fakeHarness) RunCodingAll(ctx context.Context, id string, maxSessions int) (*domain.CodingRunResult, error) {
	if err := f.call("RunCodingAll"); err != nil {
		return nil, err
	}
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}
	sessions := make([]domain.CodingSession, maxSessions)
	return &domain.CodingRunResult{Status: "running", Sessions: sessions, Remaining: []string{"F-2"}}, nil
}

func (f *fakeHarness) Evaluate(ctx context.Context, id string) (*domain.EvalResult, error) {
	if err := f.call("Evaluate"); err != nil {
		return nil, err
	}
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}
	f.setStatus(id, domain.TaskStatusCompleted)
	return &domain.EvalResult{Score: 0.92, Details: "ok"}, nil
}

func (f *fakeHarness) ListEvents(ctx context.Context, id string) ([]domain.TaskEvent, error) {
	if err := f.call("ListEvents"); err != nil {
		return nil, err
	}
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return []domain.TaskEvent{{ID: "e1", SessionType: domain.SessionTypeInitializer, EventType: domain.EventTypeStart}}, nil
}

func (f *fakeHarness) ListFeatures(ctx context.Context, id string) ([]domain.Feature, error) {
	if err := f.call("ListFeatures"); err != nil {
		return nil, err
	}
	return []domain.Feature{{ID: "F-1", Status: "passing"}}, nil
}

func (f *fakeHarness) GetProgress(ctx context.Context, id string) (string, error) {
	if err := f.call("GetProgress"); err != nil {
		return "", err
	}
	if _, err := f.lookup(id); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress[id], nil
}

// ==================== PPT ====================

func (f *fakeHarness) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	if err := f.call("Search"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.searchReq = req
	f.mu.Unlock()
	return &domain.SearchResponse{Topic: req.Topic, References: []domain.ReferenceArticle{
		{Title: "Ref 1", URL: "https://a", Summary: "s", Rank: 1},
		{Title: "Ref 2", URL: "https://b", Summary: "s", Rank: 2},
	}}, nil
}

func (f *fakeHarness) Outline(ctx context.Context, req domain.OutlineRequest) (*domain.OutlineResponse, error) {
	if err := f.call("Outline"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.outlineReq = req
	f.mu.Unlock()
	return &domain.OutlineResponse{Topic: req.Topic, Outline: []domain.OutlineSection{
		{Title: "Intro", Bullets: []string{"why"}},
		{Title: "Close", Bullets: []string{"next"}},
	}}, nil
}

func (f *fakeHarness) OutlineStream(ctx context.Context, req domain.OutlineRequest, fn func(domain.OutlineEvent) error) error {
	if err := f.call("OutlineStream"); err != nil {
		return err
	}
	f.mu.Lock()
	f.outlineReq = req
	frames := append([]domain.OutlineEvent(nil), f.frames...)
	streamErr := f.streamErr
	f.mu.Unlock()

	for _, ev := range frames {
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Final() {
			return nil
		}
	}
	if streamErr != nil {
		return streamErr
	}
	return harness.ErrStreamIncomplete
}

func (f *fakeHarness) Slides(ctx context.Context, req domain.SlidesRequest) (*domain.SlidesResponse, error) {
	if err := f.call("Slides"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.slidesReq = req
	f.mu.Unlock()
	slides := make([]domain.SlideContent, 0, len(req.Outline))
	for _, s := range req.Outline {
		slides = append(slides, domain.SlideContent{Title: s.Title, Bullets: s.Bullets, StylePrompt: req.StylePrompt})
	}
	return &domain.SlidesResponse{Slides: slides}, nil
}

func (f *fakeHarness) Images(ctx context.Context, req domain.ImagesRequest) (*domain.ImagesResponse, error) {
	if err := f.call("Images"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.imagesReq = req
	f.mu.Unlock()
	images := make([]domain.SlideImage, 0, len(req.Slides))
	for _, s := range req.Slides {
		images = append(images, domain.SlideImage{Title: s.Title, URL: "https://img/" + s.Title, Watermark: req.Watermark != nil && *req.Watermark})
	}
	return &domain.ImagesResponse{Images: images}, nil
}

func (f *fakeHarness) Prompts(ctx context.Context, topic, stage, sessionID string) (*domain.PromptNotebook, error) {
	if err := f.call("Prompts"); err != nil {
		return nil, err
	}
	return &domain.PromptNotebook{Topic: topic, Prompts: []domain.PromptRecord{{Stage: stage, Path: sessionID + ".md"}}}, nil
}
