// Package graphstore defines the document+edge store contract the engine is written against.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates a referenced vertex or edge does not exist.
	ErrNotFound = errors.New("graph document not found")
	// ErrStoreUnavailable indicates the backing store could not be reached or failed to execute.
	ErrStoreUnavailable = errors.New("graph store unavailable")
	// ErrInvalidCollection indicates a collection name that is not a plain identifier.
	ErrInvalidCollection = errors.New("invalid collection name")
	// ErrInvalidQuery indicates a malformed ad-hoc query.
	ErrInvalidQuery = errors.New("invalid graph query")
)

// Reserved document keys maintained by the store.
const (
	FieldID   = "_id"
	FieldKey  = "_key"
	FieldFrom = "_from"
	FieldTo   = "_to"
)

// Direction selects which edges a traversal follows.
type Direction string

const (
	// Outbound follows edges from the start vertex.
	Outbound Direction = "out"
	// Inbound follows edges pointing to the start vertex.
	Inbound Direction = "in"
)

// Valid reports whether the direction is one of the supported values.
func (d Direction) Valid() bool {
	return d == Outbound || d == Inbound
}

// Edge is a directed, attributed relationship between two vertices.
type Edge struct {
	ID         string   `json:"_id"`
	Collection string   `json:"collection"`
	From       string   `json:"_from"`
	To         string   `json:"_to"`
	Attrs      Document `json:"attrs,omitempty"`
}

// EdgeFilter narrows edge lookups. Empty slices match everything.
type EdgeFilter struct {
	From []string
	To   []string
}

// Query is a parameterized ad-hoc query. Values must only travel through BindVars.
type Query struct {
	Statement string
	BindVars  map[string]any
}

// Store is the adapter over a document+edge graph database.
type Store interface {
	CreateVertex(ctx context.Context, collection string, doc Document) (string, error)
	// GetVertex returns nil without error when the vertex does not exist.
	GetVertex(ctx context.Context, collection, id string) (Document, error)
	UpdateVertex(ctx context.Context, collection, id string, patch Document) (Document, error)
	DeleteVertex(ctx context.Context, collection, id string) error
	CreateEdge(ctx context.Context, edgeCollection, fromID, toID string, attrs Document) (string, error)
	Find(ctx context.Context, collection string, filter Document) ([]Document, error)
	Edges(ctx context.Context, edgeCollection string, filter EdgeFilter) ([]Edge, error)
	Traverse(ctx context.Context, startID string, direction Direction, edgeCollection string, maxDepth int) ([]Document, error)
	RunQuery(ctx context.Context, query Query) ([]Document, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects collection names that cannot be safely used as table values,
// labels or relationship types.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}

// NewKey returns a fresh document key.
func NewKey() string {
	return uuid.NewString()
}

// MakeID joins a collection and key into a document handle.
func MakeID(collection, key string) string {
	return collection + "/" + key
}

// SplitID separates a document handle into collection and key.
func SplitID(id string) (collection, key string, ok bool) {
	idx := strings.IndexByte(id, '/')
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}
	return id[:idx], id[idx+1:], true
}

// CollectionOf returns the collection part of a document handle.
func CollectionOf(id string) string {
	collection, _, _ := SplitID(id)
	return collection
}

// ResolveID computes the handle a new document will receive, honouring a caller supplied _key.
func ResolveID(collection string, doc Document) (string, error) {
	if err := ValidateIdentifier(collection); err != nil {
		return "", err
	}
	key := doc.String(FieldKey)
	if key == "" {
		key = NewKey()
	}
	if strings.ContainsRune(key, '/') {
		return "", fmt.Errorf("%w: key %q contains '/'", ErrInvalidQuery, key)
	}
	return MakeID(collection, key), nil
}

// Unavailable wraps a backend failure so callers can detect it with errors.Is.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidCollection) || errors.Is(err, ErrInvalidQuery) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
