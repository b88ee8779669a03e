package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
)

type PPTServiceConfig struct {
	Harness  ports.PPTHarness
	Projects ports.ProjectService
	Logger   *logger.Logger
}

// PPTService runs the slide-deck stages against the harness and folds each
// stage's output into the project.
type PPTService struct {
	harness  ports.PPTHarness
	projects ports.ProjectService
	logger   *logger.Logger
}

var _ ports.PPTService = (*PPTService)(nil)

func NewPPTService(cfg PPTServiceConfig) *PPTService {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &PPTService{harness: cfg.Harness, projects: cfg.Projects, logger: log}
}

// RunStage loads the project, runs one stage and schedules an autosave of
// the result. The returned project is the updated copy.
func (s *PPTService) RunStage(ctx context.Context, projectID string, stage domain.PPTStage, opts ports.StageOptions) (*domain.Project, error) {
	p, err := s.projects.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sessionID, err := s.projects.SessionID(ctx)
	if err != nil {
		return nil, err
	}
	p.SessionID = sessionID
	if opts.StylePrompt != "" {
		p.StylePrompt = strings.TrimSpace(opts.StylePrompt)
	}

	s.logger.Infow("ppt_stage_start", "project_id", p.ID, "stage", stage, "session_id", sessionID)

	switch stage {
	case domain.StageSearch:
		err = s.search(ctx, p, opts)
	case domain.StageOutline:
		err = s.outline(ctx, p)
	case domain.StageOutlineStream:
		err = s.outlineStream(ctx, p, opts.OnEvent)
	case domain.StageSlides:
		err = s.slides(ctx, p)
	case domain.StageImages:
		err = s.images(ctx, p)
	default:
		return nil, fmt.Errorf("%w: unknown stage %q", ErrProjectInvalidInput, stage)
	}
	if err != nil {
		s.logger.Warnw("ppt_stage_failed", "project_id", p.ID, "stage", stage, "error", err)
		return nil, err
	}

	s.projects.ScheduleSave(p)
	s.logger.Infow("ppt_stage_done", "project_id", p.ID, "stage", p.Stage)
	return p, nil
}

func (s *PPTService) search(ctx context.Context, p *domain.Project, opts ports.StageOptions) error {
	resp, err := s.harness.Search(ctx, domain.SearchRequest{
		Topic:      p.Topic,
		Limit:      opts.Limit,
		SourceHint: strings.TrimSpace(opts.SourceHint),
		SessionID:  p.SessionID,
	})
	if err != nil {
		return fmt.Errorf("ppt search: %w", err)
	}
	p.References = resp.References
	p.Stage = domain.StageSearch
	return nil
}

func (s *PPTService) outlineRequest(p *domain.Project) (domain.OutlineRequest, error) {
	if len(p.References) == 0 {
		return domain.OutlineRequest{}, fmt.Errorf("%w: run search before outline", ErrStagePrerequisite)
	}
	return domain.OutlineRequest{
		Topic:      p.Topic,
		References: p.References,
		TextModel:  p.TextModel,
		SessionID:  p.SessionID,
	}, nil
}

func (s *PPTService) outline(ctx context.Context, p *domain.Project) error {
	req, err := s.outlineRequest(p)
	if err != nil {
		return err
	}
	resp, err := s.harness.Outline(ctx, req)
	if err != nil {
		return fmt.Errorf("ppt outline: %w", err)
	}
	p.Outline = resp.Outline
	p.Stage = domain.StageOutline
	return nil
}

// outlineStream builds the outline round by round. If the stream breaks
// after some rounds arrived, the partial outline is kept and scheduled for
// save before the error is returned.
func (s *PPTService) outlineStream(ctx context.Context, p *domain.Project, onEvent func(domain.OutlineEvent)) error {
	req, err := s.outlineRequest(p)
	if err != nil {
		return err
	}

	var (
		sections []domain.OutlineSection
		final    []domain.OutlineSection
		done     bool
		failure  string
	)
	err = s.harness.OutlineStream(ctx, req, func(ev domain.OutlineEvent) error {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case domain.OutlineEventPartial:
			sections = append(sections, ev.Sections...)
		case domain.OutlineEventPartialComplete, domain.OutlineEventComplete:
			final = ev.Outline
			if final == nil {
				final = sections
			}
			done = true
		case domain.OutlineEventError:
			failure = ev.Error
			if failure == "" {
				failure = ev.Message
			}
			done = true
		}
		return nil
	})

	switch {
	case failure != "":
		return fmt.Errorf("%w: %s", ErrOutlineFailed, failure)
	case done && err == nil:
		p.Outline = final
		p.Stage = domain.StageOutline
		return nil
	}

	if err == nil {
		err = errors.New("stream ended without a result")
	}
	if len(sections) > 0 {
		partial := p.Clone()
		partial.Outline = sections
		s.projects.ScheduleSave(partial)
		s.logger.Warnw("ppt_outline_partial_kept", "project_id", p.ID, "sections", len(sections))
	}
	return fmt.Errorf("ppt outline stream: %w", err)
}

func (s *PPTService) slides(ctx context.Context, p *domain.Project) error {
	if len(p.Outline) == 0 {
		return fmt.Errorf("%w: generate an outline before slides", ErrStagePrerequisite)
	}
	resp, err := s.harness.Slides(ctx, domain.SlidesRequest{
		Topic:       p.Topic,
		Outline:     p.Outline,
		StylePrompt: p.StylePrompt,
		References:  p.References,
		TextModel:   p.TextModel,
		SessionID:   p.SessionID,
	})
	if err != nil {
		return fmt.Errorf("ppt slides: %w", err)
	}
	p.Slides = resp.Slides
	p.Stage = domain.StageSlides
	return nil
}

func (s *PPTService) images(ctx context.Context, p *domain.Project) error {
	if len(p.Slides) == 0 {
		return fmt.Errorf("%w: generate slides before images", ErrStagePrerequisite)
	}
	watermark := p.Watermark
	resp, err := s.harness.Images(ctx, domain.ImagesRequest{
		Topic:      p.Topic,
		Slides:     p.Slides,
		ImageModel: p.ImageModel,
		Watermark:  &watermark,
		SessionID:  p.SessionID,
	})
	if err != nil {
		return fmt.Errorf("ppt images: %w", err)
	}
	p.Images = resp.Images
	p.Stage = domain.StageImages
	return nil
}

// Prompts returns the prompt notebook the harness recorded for the
// project's session.
func (s *PPTService) Prompts(ctx context.Context, projectID, stage string) (*domain.PromptNotebook, error) {
	p, err := s.projects.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sessionID := p.SessionID
	if sessionID == "" {
		if sessionID, err = s.projects.SessionID(ctx); err != nil {
			return nil, err
		}
	}
	nb, err := s.harness.Prompts(ctx, p.Topic, stage, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ppt prompts: %w", err)
	}
	return nb, nil
}
