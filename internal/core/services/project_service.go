package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/cklxx/NanoBee/pkg/utils/crypto"
	"github.com/cklxx/NanoBee/pkg/utils/keygen"
	"github.com/hashicorp/go-multierror"
)

const (
	sessionKey       = "nanobee_ppt_session"
	historyKey       = "nanobee_ppt_history"
	projectKeyPrefix = "nanobee_ppt_project:"

	apiKeyPurpose       = "model-api-key"
	backgroundSaveLimit = 10 * time.Second
)

func projectKey(id string) string {
	return projectKeyPrefix + id
}

type ProjectServiceConfig struct {
	Store         ports.KVStore
	Logger        *logger.Logger
	AutosaveDelay time.Duration
	HistoryLimit  int
	// SecretKey seals model API keys at rest. Without it API keys are
	// never persisted.
	SecretKey string
	Now       func() time.Time
}

// ProjectService persists PPT projects, the session id and the recent
// project list in a KVStore.
type ProjectService struct {
	store  ports.KVStore
	logger *logger.Logger
	delay  time.Duration
	limit  int
	sealer *crypto.Sealer
	now    func() time.Time

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]*pendingSave
	closed  bool
	timers  sync.WaitGroup
}

type pendingSave struct {
	project *domain.Project
	gen     uint64
	timer   *time.Timer
}

var _ ports.ProjectService = (*ProjectService)(nil)

func NewProjectService(cfg ProjectServiceConfig) (*ProjectService, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = 20
	}

	s := &ProjectService{
		store:   cfg.Store,
		logger:  log,
		delay:   cfg.AutosaveDelay,
		limit:   limit,
		now:     now,
		locks:   make(map[string]*sync.Mutex),
		pending: make(map[string]*pendingSave),
	}
	if cfg.SecretKey != "" {
		sealer, err := crypto.NewSealer(cfg.SecretKey, apiKeyPurpose)
		if err != nil {
			return nil, fmt.Errorf("project service: %w", err)
		}
		s.sealer = sealer
	} else {
		log.Warnw("project_service_no_secret_key", "effect", "model api keys are not persisted")
	}
	return s, nil
}

func (s *ProjectService) lockKeys(keys ...string) func() {
	if len(keys) == 0 {
		return func() {}
	}
	sort.Strings(keys)
	s.mu.Lock()
	acquired := make([]*sync.Mutex, 0, len(keys))
	for _, k := range keys {
		m := s.locks[k]
		if m == nil {
			m = &sync.Mutex{}
			s.locks[k] = m
		}
		acquired = append(acquired, m)
	}
	s.mu.Unlock()
	for _, m := range acquired {
		m.Lock()
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}

// ==================== Session ====================

// SessionID returns the stored session id, creating one on first use.
func (s *ProjectService) SessionID(ctx context.Context) (string, error) {
	unlock := s.lockKeys(sessionKey)
	defer unlock()

	id, found, err := s.store.Get(ctx, sessionKey)
	if err != nil {
		return "", err
	}
	if found && id != "" {
		return id, nil
	}
	return s.newSession(ctx)
}

// ResetSession replaces the session id. Prompt history on the backend is
// scoped by it, so a reset starts a clean notebook.
func (s *ProjectService) ResetSession(ctx context.Context) (string, error) {
	unlock := s.lockKeys(sessionKey)
	defer unlock()
	return s.newSession(ctx)
}

func (s *ProjectService) newSession(ctx context.Context) (string, error) {
	id := keygen.GenerateSessionID()
	if err := s.store.Set(ctx, sessionKey, id); err != nil {
		return "", err
	}
	s.logger.Infow("ppt_session_created", "session_id", id)
	return id, nil
}

// ==================== Projects ====================

func (s *ProjectService) Create(ctx context.Context, input ports.CreateProjectInput) (*domain.Project, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrProjectInvalidInput)
	}
	sessionID, err := s.SessionID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &domain.Project{
		ID:          keygen.GenerateProjectID(),
		Topic:       topic,
		Stage:       domain.StageNone,
		SessionID:   sessionID,
		StylePrompt: input.StylePrompt,
		Watermark:   input.Watermark,
		TextModel:   input.TextModel,
		ImageModel:  input.ImageModel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Save(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Infow("ppt_project_created", "id", p.ID, "topic", topic)
	return p, nil
}

// Load returns the project, preferring a snapshot still waiting for
// autosave over the stored copy.
func (s *ProjectService) Load(ctx context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	if ps, ok := s.pending[id]; ok {
		p := ps.project.Clone()
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	raw, found, err := s.store.Get(ctx, projectKey(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrProjectNotFound
	}

	var p domain.Project
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warnw("ppt_project_corrupt", "id", id, "error", err)
		return nil, fmt.Errorf("%w: project %s", ErrKVCorrupt, id)
	}
	s.openKeys(&p)
	return &p, nil
}

// Save writes the project now and drops any autosave pending for it.
func (s *ProjectService) Save(ctx context.Context, p *domain.Project) error {
	if p == nil || p.ID == "" {
		return ErrProjectInvalidInput
	}
	p.UpdatedAt = s.now()
	snapshot := p.Clone()

	unlock := s.lockKeys(projectKey(p.ID))
	defer unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrProjectStoreClosed
	}
	s.cancelPendingLocked(p.ID)
	s.mu.Unlock()

	return s.writeLocked(ctx, snapshot)
}

// ScheduleSave debounces writes per project: every call restarts the
// autosave delay and the latest snapshot is the one written.
func (s *ProjectService) ScheduleSave(p *domain.Project) {
	if p == nil || p.ID == "" {
		return
	}
	p.UpdatedAt = s.now()
	snapshot := p.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warnw("ppt_autosave_after_close", "id", p.ID)
		return
	}

	ps, ok := s.pending[p.ID]
	if !ok {
		ps = &pendingSave{}
		s.pending[p.ID] = ps
	} else if ps.timer.Stop() {
		s.timers.Done()
	}
	ps.project = snapshot
	ps.gen++
	gen := ps.gen
	id := p.ID

	s.timers.Add(1)
	ps.timer = time.AfterFunc(s.delay, func() {
		defer s.timers.Done()
		s.fire(id, gen)
	})
}

func (s *ProjectService) fire(id string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundSaveLimit)
	defer cancel()

	written, err := s.savePending(ctx, id, gen)
	if err != nil {
		s.logger.Errorw("ppt_autosave_failed", "id", id, "error", err)
		return
	}
	if written {
		s.logger.Debugw("ppt_autosave_ok", "id", id)
	}
}

// savePending writes the snapshot pending for id if its generation still
// matches; gen 0 matches any. The project key lock is taken before the pending
// entry is removed, so Save and Delete never see a half-finished autosave.
func (s *ProjectService) savePending(ctx context.Context, id string, gen uint64) (bool, error) {
	unlock := s.lockKeys(projectKey(id))
	defer unlock()

	s.mu.Lock()
	ps, ok := s.pending[id]
	if !ok || (gen != 0 && ps.gen != gen) {
		s.mu.Unlock()
		return false, nil
	}
	s.cancelPendingLocked(id)
	s.mu.Unlock()

	return true, s.writeLocked(ctx, ps.project)
}

// cancelPendingLocked drops the pending autosave for id. s.mu must be held.
func (s *ProjectService) cancelPendingLocked(id string) {
	ps, ok := s.pending[id]
	if !ok {
		return
	}
	if ps.timer.Stop() {
		s.timers.Done()
	}
	delete(s.pending, id)
}

// Flush writes every pending autosave immediately.
func (s *ProjectService) Flush(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var result *multierror.Error
	flushed := 0
	for _, id := range ids {
		written, err := s.savePending(ctx, id, 0)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("project %s: %w", id, err))
			continue
		}
		if written {
			flushed++
		}
	}
	if flushed > 0 {
		s.logger.Infow("ppt_autosave_flushed", "count", flushed)
	}
	return result.ErrorOrNil()
}

// Close flushes pending saves and waits for autosaves already running.
func (s *ProjectService) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Flush(ctx)
	s.timers.Wait()
	return err
}

func (s *ProjectService) Delete(ctx context.Context, id string) error {
	unlock := s.lockKeys(projectKey(id))
	defer unlock()

	s.mu.Lock()
	_, wasPending := s.pending[id]
	s.cancelPendingLocked(id)
	s.mu.Unlock()

	_, found, err := s.store.Get(ctx, projectKey(id))
	if err != nil {
		return err
	}
	if found {
		if err := s.store.Delete(ctx, projectKey(id)); err != nil {
			return err
		}
	}
	if !found && !wasPending {
		return ErrProjectNotFound
	}

	if err := s.updateHistory(ctx, func(list []domain.ProjectSummary) []domain.ProjectSummary {
		return removeSummary(list, id)
	}); err != nil {
		return err
	}
	s.logger.Infow("ppt_project_deleted", "id", id)
	return nil
}

// History lists recent projects, most recently saved first.
func (s *ProjectService) History(ctx context.Context) ([]domain.ProjectSummary, error) {
	return s.readHistory(ctx)
}

// writeLocked stores p and moves it to the front of the history. The caller
// holds the project key lock.
func (s *ProjectService) writeLocked(ctx context.Context, p *domain.Project) error {
	s.sealKeys(p)
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, projectKey(p.ID), string(payload)); err != nil {
		return err
	}

	summary := p.Summary()
	return s.updateHistory(ctx, func(list []domain.ProjectSummary) []domain.ProjectSummary {
		list = append([]domain.ProjectSummary{summary}, removeSummary(list, summary.ID)...)
		if len(list) > s.limit {
			list = list[:s.limit]
		}
		return list
	})
}

func (s *ProjectService) readHistory(ctx context.Context) ([]domain.ProjectSummary, error) {
	raw, found, err := s.store.Get(ctx, historyKey)
	if err != nil {
		return nil, err
	}
	if !found || raw == "" {
		return []domain.ProjectSummary{}, nil
	}
	var list []domain.ProjectSummary
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		// A corrupt list is replaced on the next save.
		s.logger.Warnw("ppt_history_corrupt", "error", err)
		return []domain.ProjectSummary{}, nil
	}
	return list, nil
}

func (s *ProjectService) updateHistory(ctx context.Context, fn func([]domain.ProjectSummary) []domain.ProjectSummary) error {
	unlock := s.lockKeys(historyKey)
	defer unlock()

	list, err := s.readHistory(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(fn(list))
	if err != nil {
		return err
	}
	return s.store.Set(ctx, historyKey, string(payload))
}

func removeSummary(list []domain.ProjectSummary, id string) []domain.ProjectSummary {
	out := list[:0:0]
	for _, item := range list {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// sealKeys encrypts model API keys in place, or strips them when no secret
// is configured.
func (s *ProjectService) sealKeys(p *domain.Project) {
	for _, m := range []*domain.ModelConfig{p.TextModel, p.ImageModel} {
		if m == nil || m.APIKey == "" || crypto.IsSealed(m.APIKey) {
			continue
		}
		if s.sealer == nil {
			m.APIKey = ""
			continue
		}
		sealed, err := s.sealer.Seal(m.APIKey)
		if err != nil {
			s.logger.Errorw("ppt_api_key_seal_failed", "project_id", p.ID, "error", err)
			m.APIKey = ""
			continue
		}
		m.APIKey = sealed
	}
}

func (s *ProjectService) openKeys(p *domain.Project) {
	for _, m := range []*domain.ModelConfig{p.TextModel, p.ImageModel} {
		if m == nil || !crypto.IsSealed(m.APIKey) {
			continue
		}
		if s.sealer == nil {
			m.APIKey = ""
			continue
		}
		plain, err := s.sealer.Open(m.APIKey)
		if err != nil {
			s.logger.Warnw("ppt_api_key_open_failed", "project_id", p.ID, "error", err)
			m.APIKey = ""
			continue
		}
		m.APIKey = plain
	}
}
