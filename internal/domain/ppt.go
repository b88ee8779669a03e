package domain

import (
	"fmt"
	"time"
)

type PPTStage string

const (
	StageNone          PPTStage = ""
	StageSearch        PPTStage = "search"
	StageOutline       PPTStage = "outline"
	StageOutlineStream PPTStage = "outline-stream"
	StageSlides        PPTStage = "slides"
	StageImages        PPTStage = "images"
)

func ParseStage(s string) (PPTStage, error) {
	switch st := PPTStage(s); st {
	case StageSearch, StageOutline, StageOutlineStream, StageSlides, StageImages:
		return st, nil
	default:
		return StageNone, fmt.Errorf("unknown ppt stage %q", s)
	}
}

// ModelConfig selects a provider model. APIKey is sealed before a project is
// persisted.
type ModelConfig struct {
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
}

type ReferenceArticle struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
	Source  string `json:"source,omitempty"`
	Rank    int    `json:"rank,omitempty"`
}

type OutlineSection struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

type Palette struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
}

type SlideContent struct {
	Title       string   `json:"title"`
	Bullets     []string `json:"bullets"`
	Palette     Palette  `json:"palette"`
	Keywords    string   `json:"keywords"`
	StylePrompt string   `json:"style_prompt,omitempty"`
	Sources     []int    `json:"sources,omitempty"`
}

type SlideImage struct {
	Title     string `json:"title"`
	StyleSeed string `json:"style_seed"`
	Model     string `json:"model"`
	BaseURL   string `json:"base_url"`
	Watermark bool   `json:"watermark"`
	URL       string `json:"url,omitempty"`
	DataURL   string `json:"data_url,omitempty"`
}

// ==================== STAGE REQUESTS ====================

type SearchRequest struct {
	Topic      string `json:"topic"`
	Limit      int    `json:"limit,omitempty"`
	SourceHint string `json:"source_hint,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

type SearchResponse struct {
	Topic      string             `json:"topic"`
	References []ReferenceArticle `json:"references"`
}

type OutlineRequest struct {
	Topic      string             `json:"topic"`
	References []ReferenceArticle `json:"references"`
	TextModel  *ModelConfig       `json:"text_model,omitempty"`
	SessionID  string             `json:"session_id,omitempty"`
}

type OutlineResponse struct {
	Topic   string           `json:"topic"`
	Outline []OutlineSection `json:"outline"`
}

type SlidesRequest struct {
	Topic       string             `json:"topic"`
	Outline     []OutlineSection   `json:"outline"`
	StylePrompt string             `json:"style_prompt,omitempty"`
	References  []ReferenceArticle `json:"references,omitempty"`
	TextModel   *ModelConfig       `json:"text_model,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
}

type SlidesResponse struct {
	Slides []SlideContent `json:"slides"`
}

type ImagesRequest struct {
	Topic      string         `json:"topic,omitempty"`
	Slides     []SlideContent `json:"slides"`
	ImageModel *ModelConfig   `json:"image_model,omitempty"`
	Watermark  *bool          `json:"watermark,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
}

type ImagesResponse struct {
	Images []SlideImage `json:"images"`
}

type PromptRecord struct {
	Stage   string `json:"stage"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

type PromptNotebook struct {
	Topic   string         `json:"topic"`
	Prompts []PromptRecord `json:"prompts"`
}

// ==================== OUTLINE STREAM ====================

type OutlineEventType string

const (
	OutlineEventProgress        OutlineEventType = "progress"
	OutlineEventPartial         OutlineEventType = "partial"
	OutlineEventPartialComplete OutlineEventType = "partial_complete"
	OutlineEventComplete        OutlineEventType = "complete"
	OutlineEventError           OutlineEventType = "error"
)

// OutlineEvent is one frame of the progressive outline stream. Partial frames
// carry the sections of one round; the completing frames carry the full
// outline.
type OutlineEvent struct {
	Type        OutlineEventType `json:"type"`
	Round       int              `json:"round,omitempty"`
	TotalRounds int              `json:"total_rounds,omitempty"`
	Total       int              `json:"total,omitempty"`
	Message     string           `json:"message,omitempty"`
	Sections    []OutlineSection `json:"sections,omitempty"`
	Outline     []OutlineSection `json:"outline,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Final reports whether no more frames follow this one.
func (e OutlineEvent) Final() bool {
	switch e.Type {
	case OutlineEventPartialComplete, OutlineEventComplete, OutlineEventError:
		return true
	}
	return false
}

// ==================== PROJECTS ====================

// Project is a locally persisted PPT workflow: topic, model choices and the
// output of every stage run so far.
type Project struct {
	ID          string             `json:"id"`
	Topic       string             `json:"topic"`
	Stage       PPTStage           `json:"stage"`
	SessionID   string             `json:"session_id,omitempty"`
	StylePrompt string             `json:"style_prompt,omitempty"`
	Watermark   bool               `json:"watermark"`
	TextModel   *ModelConfig       `json:"text_model,omitempty"`
	ImageModel  *ModelConfig       `json:"image_model,omitempty"`
	References  []ReferenceArticle `json:"references,omitempty"`
	Outline     []OutlineSection   `json:"outline,omitempty"`
	Slides      []SlideContent     `json:"slides,omitempty"`
	Images      []SlideImage       `json:"images,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type ProjectSummary struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Stage     PPTStage  `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{ID: p.ID, Topic: p.Topic, Stage: p.Stage, UpdatedAt: p.UpdatedAt}
}

// Clone returns a deep copy so a snapshot can be handed to the autosaver
// while the caller keeps editing.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	if p.TextModel != nil {
		m := *p.TextModel
		cp.TextModel = &m
	}
	if p.ImageModel != nil {
		m := *p.ImageModel
		cp.ImageModel = &m
	}
	cp.References = append([]ReferenceArticle(nil), p.References...)
	cp.Outline = cloneSections(p.Outline)
	cp.Slides = make([]SlideContent, len(p.Slides))
	for i, s := range p.Slides {
		s.Bullets = append([]string(nil), s.Bullets...)
		s.Sources = append([]int(nil), s.Sources...)
		cp.Slides[i] = s
	}
	if p.Slides == nil {
		cp.Slides = nil
	}
	cp.Images = append([]SlideImage(nil), p.Images...)
	return &cp
}

func cloneSections(in []OutlineSection) []OutlineSection {
	if in == nil {
		return nil
	}
	out := make([]OutlineSection, len(in))
	for i, s := range in {
		out[i] = OutlineSection{Title: s.Title, Bullets: append([]string(nil), s.Bullets...)}
	}
	return out
}
