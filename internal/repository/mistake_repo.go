package repository

import (
	"context"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

// MistakeRepository stores mistakes and the edges that connect them to the rest of the graph.
type MistakeRepository interface {
	Create(ctx context.Context, mistake *models.Mistake) error
	GetMany(ctx context.Context, ids []string) ([]models.Mistake, error)
	List(ctx context.Context, courseID string) ([]models.Mistake, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]models.Mistake, error)
	Delete(ctx context.Context, id string) error
	Annotate(ctx context.Context, id string, patch graphstore.Document) error
	LinkSubmission(ctx context.Context, submissionID, mistakeID string) error
	LinkStudent(ctx context.Context, studentID, mistakeID string) error
	LinkCriterion(ctx context.Context, mistakeID, criterionID string) error
	LinkSection(ctx context.Context, mistakeID, sectionID string, relevance float64) error
	StudentMistakeIDs(ctx context.Context, studentID string) ([]string, error)
	SectionEdges(ctx context.Context, mistakeIDs []string) ([]graphstore.Edge, error)
	CriterionEdges(ctx context.Context, criterionIDs []string) ([]graphstore.Edge, error)
}

type mistakeRepository struct {
	store graphstore.Store
}

// NewMistakeRepository instantiates the repository.
func NewMistakeRepository(store graphstore.Store) MistakeRepository {
	return &mistakeRepository{store: store}
}

func (r *mistakeRepository) Create(ctx context.Context, mistake *models.Mistake) error {
	if mistake.RubricCriteriaNames == nil {
		mistake.RubricCriteriaNames = []string{}
	}
	id, err := createEncoded(ctx, r.store, models.CollectionMistakes, mistake)
	if err != nil {
		return err
	}
	mistake.ID = id
	return nil
}

func (r *mistakeRepository) GetMany(ctx context.Context, ids []string) ([]models.Mistake, error) {
	return getMany[models.Mistake](ctx, r.store, models.CollectionMistakes, ids)
}

// List returns the mistakes of a course, or every mistake when courseID is empty.
func (r *mistakeRepository) List(ctx context.Context, courseID string) ([]models.Mistake, error) {
	filter := graphstore.Document{}
	if courseID != "" {
		filter["courseId"] = courseID
	}
	docs, err := r.store.Find(ctx, models.CollectionMistakes, filter)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Mistake](docs)
}

func (r *mistakeRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.Mistake, error) {
	docs, err := r.store.Find(ctx, models.CollectionMistakes, graphstore.Document{"submissionId": submissionID})
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Mistake](docs)
}

// Delete removes a mistake together with its incident edges.
func (r *mistakeRepository) Delete(ctx context.Context, id string) error {
	return r.store.DeleteVertex(ctx, models.CollectionMistakes, id)
}

func (r *mistakeRepository) Annotate(ctx context.Context, id string, patch graphstore.Document) error {
	_, err := r.store.UpdateVertex(ctx, models.CollectionMistakes, id, patch)
	return err
}

func (r *mistakeRepository) LinkSubmission(ctx context.Context, submissionID, mistakeID string) error {
	_, err := linkVertices(ctx, r.store, models.EdgeHasFeedbackOn, submissionID, mistakeID, nil)
	return err
}

func (r *mistakeRepository) LinkStudent(ctx context.Context, studentID, mistakeID string) error {
	_, err := linkVertices(ctx, r.store, models.EdgeMadeMistake, studentID, mistakeID, nil)
	return err
}

func (r *mistakeRepository) LinkCriterion(ctx context.Context, mistakeID, criterionID string) error {
	_, err := linkVertices(ctx, r.store, models.EdgeAffectsCriteria, mistakeID, criterionID, nil)
	return err
}

func (r *mistakeRepository) LinkSection(ctx context.Context, mistakeID, sectionID string, relevance float64) error {
	_, err := linkVertices(ctx, r.store, models.EdgeRelatedTo, mistakeID, sectionID, graphstore.Document{
		models.AttrRelevance: relevance,
		models.AttrStrength:  relevance,
	})
	return err
}

func (r *mistakeRepository) StudentMistakeIDs(ctx context.Context, studentID string) ([]string, error) {
	edges, err := r.store.Edges(ctx, models.EdgeMadeMistake, graphstore.EdgeFilter{From: []string{studentID}})
	if err != nil {
		return nil, err
	}
	return edgeTargets(edges), nil
}

// SectionEdges returns relatedTo edges leaving the given mistakes. An empty id list yields
// no edges rather than every edge in the store.
func (r *mistakeRepository) SectionEdges(ctx context.Context, mistakeIDs []string) ([]graphstore.Edge, error) {
	if len(mistakeIDs) == 0 {
		return []graphstore.Edge{}, nil
	}
	return r.store.Edges(ctx, models.EdgeRelatedTo, graphstore.EdgeFilter{From: mistakeIDs})
}

// CriterionEdges returns affectsCriteria edges pointing at the given criteria, or all of them
// when criterionIDs is empty.
func (r *mistakeRepository) CriterionEdges(ctx context.Context, criterionIDs []string) ([]graphstore.Edge, error) {
	return r.store.Edges(ctx, models.EdgeAffectsCriteria, graphstore.EdgeFilter{To: criterionIDs})
}
