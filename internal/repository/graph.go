package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

// linkVertices validates an edge against the schema before writing it.
func linkVertices(ctx context.Context, store graphstore.Store, collection, fromID, toID string, attrs graphstore.Document) (string, error) {
	if err := models.ValidateEdge(collection, fromID, toID); err != nil {
		return "", err
	}
	if attrs == nil {
		attrs = graphstore.Document{}
	}
	return store.CreateEdge(ctx, collection, fromID, toID, attrs)
}

func getDecoded[T any](ctx context.Context, store graphstore.Store, collection, id string) (T, error) {
	var out T
	doc, err := store.GetVertex(ctx, collection, id)
	if err != nil {
		return out, err
	}
	if doc == nil {
		return out, fmt.Errorf("%w: %s", graphstore.ErrNotFound, id)
	}
	if err := graphstore.Decode(doc, &out); err != nil {
		return out, err
	}
	return out, nil
}

func decodeAll[T any](docs []graphstore.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := graphstore.Decode(doc, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func createEncoded(ctx context.Context, store graphstore.Store, collection string, v any) (string, error) {
	doc, err := graphstore.Encode(v)
	if err != nil {
		return "", err
	}
	delete(doc, graphstore.FieldID)
	return store.CreateVertex(ctx, collection, doc)
}

func updateEncoded(ctx context.Context, store graphstore.Store, collection, id string, v any) error {
	doc, err := graphstore.Encode(v)
	if err != nil {
		return err
	}
	_, err = store.UpdateVertex(ctx, collection, id, doc)
	return err
}

func edgeTargets(edges []graphstore.Edge) []string {
	out := make([]string, 0, len(edges))
	seen := make(map[string]struct{}, len(edges))
	for _, edge := range edges {
		if _, ok := seen[edge.To]; ok {
			continue
		}
		seen[edge.To] = struct{}{}
		out = append(out, edge.To)
	}
	return out
}

func getMany[T any](ctx context.Context, store graphstore.Store, collection string, ids []string) ([]T, error) {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		doc, err := store.GetVertex(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		var item T
		if err := graphstore.Decode(doc, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
