package repository

import (
	"context"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

// SubmissionRepository defines data operations for submissions and their feedback edges.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (models.Submission, error)
	Update(ctx context.Context, submission *models.Submission) error
	ListByCourse(ctx context.Context, courseID string) ([]models.Submission, error)
	MistakeIDs(ctx context.Context, submissionID string) ([]string, error)
	MistakeIDsBySubmission(ctx context.Context, submissionIDs []string) (map[string][]string, error)
	HasRecordedMistakes(ctx context.Context, submissionID string) (bool, error)
}

type submissionRepository struct {
	store graphstore.Store
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(store graphstore.Store) SubmissionRepository {
	return &submissionRepository{store: store}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	id, err := createEncoded(ctx, r.store, models.CollectionSubmissions, submission)
	if err != nil {
		return err
	}
	submission.ID = id
	return nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	return getDecoded[models.Submission](ctx, r.store, models.CollectionSubmissions, id)
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return updateEncoded(ctx, r.store, models.CollectionSubmissions, submission.ID, submission)
}

func (r *submissionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Submission, error) {
	docs, err := r.store.Find(ctx, models.CollectionSubmissions, graphstore.Document{"courseId": courseID})
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Submission](docs)
}

func (r *submissionRepository) MistakeIDs(ctx context.Context, submissionID string) ([]string, error) {
	edges, err := r.store.Edges(ctx, models.EdgeHasFeedbackOn, graphstore.EdgeFilter{From: []string{submissionID}})
	if err != nil {
		return nil, err
	}
	return edgeTargets(edges), nil
}

func (r *submissionRepository) MistakeIDsBySubmission(ctx context.Context, submissionIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(submissionIDs))
	if len(submissionIDs) == 0 {
		return result, nil
	}
	edges, err := r.store.Edges(ctx, models.EdgeHasFeedbackOn, graphstore.EdgeFilter{From: submissionIDs})
	if err != nil {
		return nil, err
	}
	for _, edge := range edges {
		result[edge.From] = append(result[edge.From], edge.To)
	}
	return result, nil
}

func (r *submissionRepository) HasRecordedMistakes(ctx context.Context, submissionID string) (bool, error) {
	ids, err := r.MistakeIDs(ctx, submissionID)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}
