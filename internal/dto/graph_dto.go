package dto

import (
	"time"

	"github.com/noah-isme/gema-kg/internal/analytics"
)

// SimilarSubmission is a peer submission whose mistakes overlap with the target's.
type SimilarSubmission struct {
	SubmissionID string   `json:"submission_id"`
	StudentID    string   `json:"student_id"`
	Similarity   float64  `json:"similarity"`
	Grade        *float64 `json:"grade"`
}

// InconsistentGrade flags a similar submission graded far apart from the target.
type InconsistentGrade struct {
	SubmissionID string  `json:"submission_id"`
	Similarity   float64 `json:"similarity"`
	Grade        float64 `json:"grade"`
	GradeDiff    float64 `json:"grade_diff"`
}

// ConsistencyReport is the outcome of a grading consistency check.
type ConsistencyReport struct {
	SubmissionID       string              `json:"submission_id"`
	Grade              float64             `json:"grade"`
	Threshold          float64             `json:"threshold"`
	GradeDiffThreshold float64             `json:"grade_diff_threshold"`
	IsConsistent       bool                `json:"is_consistent"`
	Flagged            []InconsistentGrade `json:"flagged"`
}

// SectionScore is the persisted PageRank importance of a section.
type SectionScore struct {
	SectionID string  `json:"section_id"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
}

// AnalyticsReport bundles every analytics result for one scope.
type AnalyticsReport struct {
	Scope        string                    `json:"scope"`
	Detector     string                    `json:"detector"`
	MistakeCount int                       `json:"mistake_count"`
	EdgeCount    int                       `json:"edge_count"`
	Clusters     []analytics.ClusterStats  `json:"clusters"`
	Sections     []SectionScore            `json:"sections"`
	TopCriteria  []analytics.CriterionRank `json:"top_criteria"`
	GeneratedAt  time.Time                 `json:"generated_at"`
	CacheHit     bool                      `json:"cache_hit"`
}

// SectionRecommendation is a section a student should revisit.
type SectionRecommendation struct {
	SectionID   string  `json:"section_id"`
	CourseID    string  `json:"course_id"`
	Title       string  `json:"title"`
	Relevance   int     `json:"relevance"`
	AvgStrength float64 `json:"avg_strength"`
	PageRank    float64 `json:"pagerank"`
	Score       float64 `json:"score"`
}

// ProblemSection is a section many students of a course struggle with.
type ProblemSection struct {
	CourseID             string  `json:"course_id"`
	SectionID            string  `json:"section_id"`
	Title                string  `json:"title"`
	MistakeCount         int     `json:"mistake_count"`
	DistinctStudentCount int     `json:"distinct_student_count"`
	EnrolledStudents     int     `json:"enrolled_students"`
	Percentage           float64 `json:"percentage"`
}
