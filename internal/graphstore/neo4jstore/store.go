// Package neo4jstore implements graphstore.Store on a Neo4j database. Collections map to node
// labels and edge collections to relationship types.
package neo4jstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/graphstore"
)

// Store is a Neo4j backed graph store.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   zerolog.Logger

	mu      sync.Mutex
	lastSeq int64
}

var _ graphstore.Store = (*Store)(nil)

// New wraps an already connected driver.
func New(driver neo4j.DriverWithContext, database string, logger zerolog.Logger) (*Store, error) {
	if driver == nil {
		return nil, fmt.Errorf("neo4jstore: driver required")
	}
	return &Store{
		driver:   driver,
		database: database,
		logger:   logger.With().Str("component", "neo4j_graph_store").Logger(),
	}, nil
}

// EnsureIndexes creates the id uniqueness constraints for the given labels (best effort).
func (s *Store) EnsureIndexes(ctx context.Context, labels []string) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, label := range labels {
		l, err := quoteIdent(label)
		if err != nil {
			continue
		}
		statement := fmt.Sprintf("CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", strings.ToLower(label), l)
		res, err := session.Run(ctx, statement, nil)
		if err != nil {
			s.logger.Warn().Err(err).Str("label", label).Msg("neo4j schema init failed (continuing)")
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *Store) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.lastSeq {
		now = s.lastSeq + 1
	}
	s.lastSeq = now
	return now
}

func (s *Store) write(ctx context.Context, statement string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, statement, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

func (s *Store) read(ctx context.Context, statement string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, statement, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

func (s *Store) CreateVertex(ctx context.Context, collection string, doc graphstore.Document) (string, error) {
	id, err := graphstore.ResolveID(collection, doc)
	if err != nil {
		return "", err
	}
	statement, err := createVertexCypher(collection)
	if err != nil {
		return "", err
	}

	stored := doc.Clone()
	stored[graphstore.FieldID] = id
	_, key, _ := graphstore.SplitID(id)
	stored[graphstore.FieldKey] = key
	payload, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("neo4jstore: encode vertex: %w", err)
	}

	if _, err := s.write(ctx, statement, map[string]any{"props": nodeProps(stored, string(payload), s.nextSeq())}); err != nil {
		return "", graphstore.Unavailable("neo4jstore create vertex", err)
	}
	return id, nil
}

func (s *Store) GetVertex(ctx context.Context, collection, id string) (graphstore.Document, error) {
	statement, err := getVertexCypher(collection)
	if err != nil {
		return nil, err
	}
	records, err := s.read(ctx, statement, map[string]any{"id": id})
	if err != nil {
		return nil, graphstore.Unavailable("neo4jstore get vertex", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return decodeRecordDoc(records[0], "doc")
}

func (s *Store) UpdateVertex(ctx context.Context, collection, id string, patch graphstore.Document) (graphstore.Document, error) {
	current, err := s.GetVertex(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", graphstore.ErrNotFound, id)
	}
	statement, err := updateVertexCypher(collection)
	if err != nil {
		return nil, err
	}

	updated := current.Merge(patch)
	payload, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: encode vertex: %w", err)
	}
	if _, err := s.write(ctx, statement, map[string]any{"id": id, "props": nodeProps(updated, string(payload), 0)}); err != nil {
		return nil, graphstore.Unavailable("neo4jstore update vertex", err)
	}
	return updated, nil
}

func (s *Store) DeleteVertex(ctx context.Context, collection, id string) error {
	statement, err := deleteVertexCypher(collection)
	if err != nil {
		return err
	}
	records, err := s.write(ctx, statement, map[string]any{"id": id})
	if err != nil {
		return graphstore.Unavailable("neo4jstore delete vertex", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s", graphstore.ErrNotFound, id)
	}
	if deleted, ok := records[0].Get("deleted"); ok {
		if n, ok := deleted.(int64); ok && n == 0 {
			return fmt.Errorf("%w: %s", graphstore.ErrNotFound, id)
		}
	}
	return nil
}

func (s *Store) CreateEdge(ctx context.Context, edgeCollection, fromID, toID string, attrs graphstore.Document) (string, error) {
	id, err := graphstore.ResolveID(edgeCollection, attrs)
	if err != nil {
		return "", err
	}
	statement, err := createEdgeCypher(graphstore.CollectionOf(fromID), edgeCollection, graphstore.CollectionOf(toID))
	if err != nil {
		return "", err
	}

	stored := attrs.Clone()
	delete(stored, graphstore.FieldKey)
	payload, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("neo4jstore: encode edge: %w", err)
	}
	props := map[string]any{
		"id":         id,
		"attrs_json": string(payload),
		"seq":        s.nextSeq(),
	}
	for key, value := range stored {
		if graphstore.ValidateIdentifier(key) == nil && isScalar(value) {
			props[key] = value
		}
	}

	records, err := s.write(ctx, statement, map[string]any{"from": fromID, "to": toID, "props": props})
	if err != nil {
		return "", graphstore.Unavailable("neo4jstore create edge", err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("%w: edge endpoint %s -> %s", graphstore.ErrNotFound, fromID, toID)
	}
	return id, nil
}

func (s *Store) Find(ctx context.Context, collection string, filter graphstore.Document) ([]graphstore.Document, error) {
	statement, params, residual, err := findCypher(collection, filter)
	if err != nil {
		return nil, err
	}
	records, err := s.read(ctx, statement, params)
	if err != nil {
		return nil, graphstore.Unavailable("neo4jstore find", err)
	}
	docs := make([]graphstore.Document, 0, len(records))
	for _, record := range records {
		doc, err := decodeRecordDoc(record, "doc")
		if err != nil {
			return nil, err
		}
		if len(residual) > 0 && !doc.Matches(residual) {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) Edges(ctx context.Context, edgeCollection string, filter graphstore.EdgeFilter) ([]graphstore.Edge, error) {
	statement, params, err := edgesCypher(edgeCollection, filter)
	if err != nil {
		return nil, err
	}
	records, err := s.read(ctx, statement, params)
	if err != nil {
		return nil, graphstore.Unavailable("neo4jstore edges", err)
	}
	edges := make([]graphstore.Edge, 0, len(records))
	for _, record := range records {
		attrs, err := decodeRecordDoc(record, "attrs")
		if err != nil {
			return nil, err
		}
		edges = append(edges, graphstore.Edge{
			ID:         recordString(record, "id"),
			Collection: edgeCollection,
			From:       recordString(record, "from"),
			To:         recordString(record, "to"),
			Attrs:      attrs,
		})
	}
	return edges, nil
}

func (s *Store) Traverse(ctx context.Context, startID string, direction graphstore.Direction, edgeCollection string, maxDepth int) ([]graphstore.Document, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: direction %q", graphstore.ErrInvalidQuery, direction)
	}
	if maxDepth <= 0 {
		return []graphstore.Document{}, nil
	}
	statement, err := traverseCypher(graphstore.CollectionOf(startID), edgeCollection, direction, maxDepth)
	if err != nil {
		return nil, err
	}
	records, err := s.read(ctx, statement, map[string]any{"start": startID})
	if err != nil {
		return nil, graphstore.Unavailable("neo4jstore traverse", err)
	}
	docs := make([]graphstore.Document, 0, len(records))
	for _, record := range records {
		doc, err := decodeRecordDoc(record, "doc")
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// RunQuery executes a read-only Cypher statement. Values must be passed through BindVars
// ($name); statements containing quoted literals are rejected.
func (s *Store) RunQuery(ctx context.Context, query graphstore.Query) ([]graphstore.Document, error) {
	statement := strings.TrimSpace(query.Statement)
	if statement == "" {
		return nil, fmt.Errorf("%w: empty statement", graphstore.ErrInvalidQuery)
	}
	if strings.ContainsAny(statement, `'";`) {
		return nil, fmt.Errorf("%w: literals must be passed as bind variables", graphstore.ErrInvalidQuery)
	}
	records, err := s.read(ctx, statement, query.BindVars)
	if err != nil {
		return nil, graphstore.Unavailable("neo4jstore run query", err)
	}
	rows := make([]graphstore.Document, 0, len(records))
	for _, record := range records {
		rows = append(rows, graphstore.Document(record.AsMap()))
	}
	return rows, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return graphstore.Unavailable("neo4jstore ping", s.driver.VerifyConnectivity(ctx))
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok {
		return ""
	}
	str, _ := value.(string)
	return str
}

func decodeRecordDoc(record *neo4j.Record, key string) (graphstore.Document, error) {
	raw := recordString(record, key)
	doc := graphstore.Document{}
	if raw == "" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("neo4jstore: decode document: %w", err)
	}
	return doc, nil
}
