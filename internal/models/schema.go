package models

import (
	"errors"
	"fmt"

	"github.com/noah-isme/gema-kg/internal/graphstore"
)

// Vertex collections.
const (
	CollectionStudents        = "students"
	CollectionInstructors     = "instructors"
	CollectionCourses         = "courses"
	CollectionSubmissions     = "submissions"
	CollectionMistakes        = "mistakes"
	CollectionRubricCriteria  = "rubricCriteria"
	CollectionSections        = "sections"
	CollectionSourceMaterials = "sourceMaterials"
)

// Edge collections.
const (
	EdgeMadeMistake     = "madeMistake"
	EdgeHasFeedbackOn   = "hasFeedbackOn"
	EdgeAffectsCriteria = "affectsCriteria"
	EdgeRelatedTo       = "relatedTo"
	EdgeCoversTopic     = "coversTopic"
	EdgeEnrolledIn      = "enrolledIn"
	EdgeTeaches         = "teaches"
)

// Edge attribute keys.
const (
	AttrStrength  = "strength"
	AttrRelevance = "relevance"
	AttrWeight    = "weight"
)

// DefaultEdgeStrength is assumed for relatedTo edges that carry no weight.
const DefaultEdgeStrength = 0.5

// ErrSchemaViolation is returned when an edge does not fit its collection definition.
var ErrSchemaViolation = errors.New("edge violates graph schema")

// EdgeDefinition lists the vertex collections an edge collection may connect.
type EdgeDefinition struct {
	Name string
	From []string
	To   []string
}

var edgeDefinitions = []EdgeDefinition{
	{Name: EdgeMadeMistake, From: []string{CollectionStudents}, To: []string{CollectionMistakes}},
	{Name: EdgeHasFeedbackOn, From: []string{CollectionSubmissions}, To: []string{CollectionMistakes}},
	{Name: EdgeAffectsCriteria, From: []string{CollectionMistakes}, To: []string{CollectionRubricCriteria}},
	{Name: EdgeRelatedTo, From: []string{CollectionMistakes, CollectionRubricCriteria}, To: []string{CollectionSections}},
	{Name: EdgeCoversTopic, From: []string{CollectionSections}, To: []string{CollectionRubricCriteria}},
	{Name: EdgeEnrolledIn, From: []string{CollectionStudents}, To: []string{CollectionCourses}},
	{Name: EdgeTeaches, From: []string{CollectionInstructors}, To: []string{CollectionCourses}},
}

// VertexCollections returns every vertex collection of the schema.
func VertexCollections() []string {
	return []string{
		CollectionStudents,
		CollectionInstructors,
		CollectionCourses,
		CollectionSubmissions,
		CollectionMistakes,
		CollectionRubricCriteria,
		CollectionSections,
		CollectionSourceMaterials,
	}
}

// EdgeDefinitions returns a copy of the edge collection definitions.
func EdgeDefinitions() []EdgeDefinition {
	out := make([]EdgeDefinition, len(edgeDefinitions))
	copy(out, edgeDefinitions)
	return out
}

// EdgeDefinitionFor looks up the definition of an edge collection.
func EdgeDefinitionFor(collection string) (EdgeDefinition, bool) {
	for _, def := range edgeDefinitions {
		if def.Name == collection {
			return def, true
		}
	}
	return EdgeDefinition{}, false
}

// ValidateEdge checks that fromID and toID belong to collections the edge collection allows.
func ValidateEdge(collection, fromID, toID string) error {
	def, ok := EdgeDefinitionFor(collection)
	if !ok {
		return fmt.Errorf("%w: unknown edge collection %q", ErrSchemaViolation, collection)
	}
	if from := graphstore.CollectionOf(fromID); !contains(def.From, from) {
		return fmt.Errorf("%w: %s cannot start at %q", ErrSchemaViolation, collection, fromID)
	}
	if to := graphstore.CollectionOf(toID); !contains(def.To, to) {
		return fmt.Errorf("%w: %s cannot end at %q", ErrSchemaViolation, collection, toID)
	}
	return nil
}

// EdgeStrength reads the strength of a relatedTo edge, falling back to its relevance and then
// to fallback.
func EdgeStrength(attrs graphstore.Document, fallback float64) float64 {
	if v, ok := attrs.Float(AttrStrength); ok {
		return clamp01(v)
	}
	if v, ok := attrs.Float(AttrRelevance); ok {
		return clamp01(v)
	}
	return fallback
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
