package dto

import (
	"time"

	"github.com/noah-isme/gema-kg/internal/models"
)

// MaterialIngestRequest uploads course material as plain text.
type MaterialIngestRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Topic    string `json:"topic" validate:"omitempty,max=200"`
	Title    string `json:"title" validate:"required,max=200"`
	Text     string `json:"text" validate:"required"`
}

// SectionResponse serializes a section.
type SectionResponse struct {
	ID               string   `json:"id"`
	SourceMaterialID string   `json:"source_material_id"`
	CourseID         string   `json:"course_id"`
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	Order            int      `json:"order"`
	PageRankScore    *float64 `json:"pagerank_score"`
}

// MaterialResponse is returned after ingesting a source material.
type MaterialResponse struct {
	ID        string            `json:"id"`
	CourseID  string            `json:"course_id"`
	Topic     string            `json:"topic"`
	Title     string            `json:"title"`
	Sections  []SectionResponse `json:"sections"`
	CreatedAt time.Time         `json:"created_at"`
}

// TopicLinkResponse reports how many coversTopic edges were created.
type TopicLinkResponse struct {
	CourseID string `json:"course_id"`
	Linked   int    `json:"linked"`
}

// NewSectionResponse converts a Section model into a DTO.
func NewSectionResponse(model models.Section) SectionResponse {
	return SectionResponse{
		ID:               model.ID,
		SourceMaterialID: model.SourceMaterialID,
		CourseID:         model.CourseID,
		Title:            model.Title,
		Content:          model.Content,
		Order:            model.Order,
		PageRankScore:    model.PageRankScore,
	}
}

// NewMaterialResponse converts a material and its sections into a DTO.
func NewMaterialResponse(material models.SourceMaterial, sections []models.Section) MaterialResponse {
	items := make([]SectionResponse, 0, len(sections))
	for _, section := range sections {
		items = append(items, NewSectionResponse(section))
	}
	return MaterialResponse{
		ID:        material.ID,
		CourseID:  material.CourseID,
		Topic:     material.Topic,
		Title:     material.Title,
		Sections:  items,
		CreatedAt: material.CreatedAt,
	}
}
