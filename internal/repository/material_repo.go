package repository

import (
	"context"
	"sort"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

// MaterialRepository stores source materials and their sections.
type MaterialRepository interface {
	CreateMaterial(ctx context.Context, material *models.SourceMaterial) error
	GetMaterial(ctx context.Context, id string) (models.SourceMaterial, error)
	CreateSection(ctx context.Context, section *models.Section) error
	GetSections(ctx context.Context, ids []string) ([]models.Section, error)
	ListSections(ctx context.Context, courseID string) ([]models.Section, error)
	ListSectionsByMaterial(ctx context.Context, materialID string) ([]models.Section, error)
	SetPageRank(ctx context.Context, sectionID string, score float64) error
	LinkTopic(ctx context.Context, sectionID, criterionID string, weight float64) error
	TopicEdges(ctx context.Context, sectionIDs []string) ([]graphstore.Edge, error)
}

type materialRepository struct {
	store graphstore.Store
}

// NewMaterialRepository instantiates the repository.
func NewMaterialRepository(store graphstore.Store) MaterialRepository {
	return &materialRepository{store: store}
}

func (r *materialRepository) CreateMaterial(ctx context.Context, material *models.SourceMaterial) error {
	id, err := createEncoded(ctx, r.store, models.CollectionSourceMaterials, material)
	if err != nil {
		return err
	}
	material.ID = id
	return nil
}

func (r *materialRepository) GetMaterial(ctx context.Context, id string) (models.SourceMaterial, error) {
	return getDecoded[models.SourceMaterial](ctx, r.store, models.CollectionSourceMaterials, id)
}

func (r *materialRepository) CreateSection(ctx context.Context, section *models.Section) error {
	id, err := createEncoded(ctx, r.store, models.CollectionSections, section)
	if err != nil {
		return err
	}
	section.ID = id
	return nil
}

func (r *materialRepository) GetSections(ctx context.Context, ids []string) ([]models.Section, error) {
	return getMany[models.Section](ctx, r.store, models.CollectionSections, ids)
}

// ListSections returns the sections of a course, or every section when courseID is empty.
func (r *materialRepository) ListSections(ctx context.Context, courseID string) ([]models.Section, error) {
	filter := graphstore.Document{}
	if courseID != "" {
		filter["courseId"] = courseID
	}
	docs, err := r.store.Find(ctx, models.CollectionSections, filter)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Section](docs)
}

func (r *materialRepository) ListSectionsByMaterial(ctx context.Context, materialID string) ([]models.Section, error) {
	docs, err := r.store.Find(ctx, models.CollectionSections, graphstore.Document{"sourceMaterialId": materialID})
	if err != nil {
		return nil, err
	}
	sections, err := decodeAll[models.Section](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })
	return sections, nil
}

func (r *materialRepository) SetPageRank(ctx context.Context, sectionID string, score float64) error {
	_, err := r.store.UpdateVertex(ctx, models.CollectionSections, sectionID, graphstore.Document{"pagerankScore": score})
	return err
}

func (r *materialRepository) LinkTopic(ctx context.Context, sectionID, criterionID string, weight float64) error {
	_, err := linkVertices(ctx, r.store, models.EdgeCoversTopic, sectionID, criterionID, graphstore.Document{
		models.AttrWeight: weight,
	})
	return err
}

// TopicEdges returns coversTopic edges leaving the given sections.
func (r *materialRepository) TopicEdges(ctx context.Context, sectionIDs []string) ([]graphstore.Edge, error) {
	if len(sectionIDs) == 0 {
		return []graphstore.Edge{}, nil
	}
	return r.store.Edges(ctx, models.EdgeCoversTopic, graphstore.EdgeFilter{From: sectionIDs})
}
