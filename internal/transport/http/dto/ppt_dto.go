package dto

import (
	"strings"
	"time"

	"github.com/cklxx/NanoBee/internal/domain"
)

type CreateProjectRequest struct {
	Topic       string              `json:"topic" validate:"required"`
	StylePrompt string              `json:"style_prompt,omitempty"`
	Watermark   *bool               `json:"watermark,omitempty"`
	TextModel   *domain.ModelConfig `json:"text_model,omitempty"`
	ImageModel  *domain.ModelConfig `json:"image_model,omitempty"`
}

func (r *CreateProjectRequest) Validate() []string {
	var errors []string
	if strings.TrimSpace(r.Topic) == "" {
		errors = append(errors, "topic is required")
	}
	if r.TextModel != nil && r.TextModel.Model == "" {
		errors = append(errors, "text_model.model is required when text_model is set")
	}
	if r.ImageModel != nil && r.ImageModel.Model == "" {
		errors = append(errors, "image_model.model is required when image_model is set")
	}
	return errors
}

// GetWatermark defaults to true, matching the harness image endpoint.
func (r *CreateProjectRequest) GetWatermark() bool {
	if r.Watermark == nil {
		return true
	}
	return *r.Watermark
}

type StageRequest struct {
	Limit       int    `json:"limit,omitempty"`
	SourceHint  string `json:"source_hint,omitempty"`
	StylePrompt string `json:"style_prompt,omitempty"`
}

func (r *StageRequest) Validate() []string {
	var errors []string
	if r.Limit < 0 || r.Limit > 50 {
		errors = append(errors, "limit must be between 0 and 50")
	}
	return errors
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// ModelResponse never carries the API key, only whether one is stored.
type ModelResponse struct {
	Model     string `json:"model"`
	BaseURL   string `json:"base_url"`
	HasAPIKey bool   `json:"has_api_key"`
}

type ProjectResponse struct {
	ID          string                    `json:"id"`
	Topic       string                    `json:"topic"`
	Stage       domain.PPTStage           `json:"stage"`
	SessionID   string                    `json:"session_id,omitempty"`
	StylePrompt string                    `json:"style_prompt,omitempty"`
	Watermark   bool                      `json:"watermark"`
	TextModel   *ModelResponse            `json:"text_model,omitempty"`
	ImageModel  *ModelResponse            `json:"image_model,omitempty"`
	References  []domain.ReferenceArticle `json:"references"`
	Outline     []domain.OutlineSection   `json:"outline"`
	Slides      []domain.SlideContent     `json:"slides"`
	Images      []domain.SlideImage       `json:"images"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

func modelToResponse(m *domain.ModelConfig) *ModelResponse {
	if m == nil {
		return nil
	}
	return &ModelResponse{Model: m.Model, BaseURL: m.BaseURL, HasAPIKey: m.APIKey != ""}
}

func ProjectToResponse(p *domain.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:          p.ID,
		Topic:       p.Topic,
		Stage:       p.Stage,
		SessionID:   p.SessionID,
		StylePrompt: p.StylePrompt,
		Watermark:   p.Watermark,
		TextModel:   modelToResponse(p.TextModel),
		ImageModel:  modelToResponse(p.ImageModel),
		References:  p.References,
		Outline:     p.Outline,
		Slides:      p.Slides,
		Images:      p.Images,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if resp.References == nil {
		resp.References = []domain.ReferenceArticle{}
	}
	if resp.Outline == nil {
		resp.Outline = []domain.OutlineSection{}
	}
	if resp.Slides == nil {
		resp.Slides = []domain.SlideContent{}
	}
	if resp.Images == nil {
		resp.Images = []domain.SlideImage{}
	}
	return resp
}
