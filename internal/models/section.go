package models

import "time"

// SourceMaterial is a course document kept in full alongside its sections.
type SourceMaterial struct {
	ID        string    `json:"_id,omitempty"`
	Key       string    `json:"_key,omitempty"`
	CourseID  string    `json:"courseId"`
	Topic     string    `json:"topic"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Section is a heading-delimited part of a source material.
type Section struct {
	ID               string   `json:"_id,omitempty"`
	Key              string   `json:"_key,omitempty"`
	SourceMaterialID string   `json:"sourceMaterialId"`
	CourseID         string   `json:"courseId"`
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	Order            int      `json:"order"`
	PageRankScore    *float64 `json:"pagerankScore,omitempty"`
}

// Importance returns the persisted PageRank score or zero.
func (s Section) Importance() float64 {
	if s.PageRankScore == nil {
		return 0
	}
	return *s.PageRankScore
}
