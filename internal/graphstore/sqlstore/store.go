// Package sqlstore implements graphstore.Store on top of a relational database through gorm.
// Vertices and edges live in two tables with their attributes kept as JSON.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-kg/internal/graphstore"
)

type vertexRecord struct {
	ID         string         `gorm:"primaryKey;size:191"`
	Collection string         `gorm:"size:64;not null;index"`
	Data       datatypes.JSON `gorm:"not null"`
	Seq        int64          `gorm:"not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (vertexRecord) TableName() string { return "graph_vertices" }

type edgeRecord struct {
	ID         string         `gorm:"primaryKey;size:191"`
	Collection string         `gorm:"size:64;not null;index:idx_graph_edges_from,priority:1;index:idx_graph_edges_to,priority:1"`
	FromID     string         `gorm:"size:191;not null;index:idx_graph_edges_from,priority:2"`
	ToID       string         `gorm:"size:191;not null;index:idx_graph_edges_to,priority:2"`
	Data       datatypes.JSON `gorm:"not null"`
	Seq        int64          `gorm:"not null;index"`
	CreatedAt  time.Time
}

func (edgeRecord) TableName() string { return "graph_edges" }

// Store is a gorm backed graph store.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger

	mu      sync.Mutex
	lastSeq int64
}

var _ graphstore.Store = (*Store)(nil)

// New migrates the graph tables and returns the store.
func New(db *gorm.DB, logger zerolog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: database handle required")
	}
	if err := db.AutoMigrate(&vertexRecord{}, &edgeRecord{}); err != nil {
		return nil, graphstore.Unavailable("sqlstore migrate", err)
	}
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "sql_graph_store").Logger(),
	}, nil
}

// nextSeq hands out strictly increasing insertion sequence numbers so that
// store order is stable even when rows share a timestamp.
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

func (s *Store) CreateVertex(ctx context.Context, collection string, doc graphstore.Document) (string, error) {
	id, err := graphstore.ResolveID(collection, doc)
	if err != nil {
		return "", err
	}
	stored := doc.Clone()
	stored[graphstore.FieldID] = id
	_, key, _ := graphstore.SplitID(id)
	stored[graphstore.FieldKey] = key

	payload, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("sqlstore: encode vertex: %w", err)
	}

	record := vertexRecord{ID: id, Collection: collection, Data: datatypes.JSON(payload), Seq: s.nextSeq()}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", graphstore.Unavailable("sqlstore create vertex", err)
	}
	return id, nil
}

func (s *Store) GetVertex(ctx context.Context, collection, id string) (graphstore.Document, error) {
	if err := graphstore.ValidateIdentifier(collection); err != nil {
		return nil, err
	}
	var record vertexRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND collection = ?", id, collection).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, graphstore.Unavailable("sqlstore get vertex", err)
	}
	return decodeData(record.Data)
}

func (s *Store) UpdateVertex(ctx context.Context, collection, id string, patch graphstore.Document) (graphstore.Document, error) {
	if err := graphstore.ValidateIdentifier(collection); err != nil {
		return nil, err
	}

	var updated graphstore.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record vertexRecord
		if err := tx.Where("id = ? AND collection = ?", id, collection).Take(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", graphstore.ErrNotFound, id)
			}
			return err
		}
		current, err := decodeData(record.Data)
		if err != nil {
			return err
		}
		updated = current.Merge(patch)
		payload, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		return tx.Model(&record).Updates(map[string]any{
			"data":       datatypes.JSON(payload),
			"updated_at": time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return nil, graphstore.Unavailable("sqlstore update vertex", err)
	}
	return updated, nil
}

func (s *Store) DeleteVertex(ctx context.Context, collection, id string) error {
	if err := graphstore.ValidateIdentifier(collection); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("from_id = ? OR to_id = ?", id, id).Delete(&edgeRecord{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND collection = ?", id, collection).Delete(&vertexRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", graphstore.ErrNotFound, id)
		}
		return nil
	})
	return graphstore.Unavailable("sqlstore delete vertex", err)
}

func (s *Store) CreateEdge(ctx context.Context, edgeCollection, fromID, toID string, attrs graphstore.Document) (string, error) {
	id, err := graphstore.ResolveID(edgeCollection, attrs)
	if err != nil {
		return "", err
	}

	endpoints := []string{fromID, toID}
	want := int64(2)
	if fromID == toID {
		endpoints = endpoints[:1]
		want = 1
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&vertexRecord{}).Where("id IN ?", endpoints).Count(&count).Error; err != nil {
		return "", graphstore.Unavailable("sqlstore create edge", err)
	}
	if count < want {
		return "", fmt.Errorf("%w: edge endpoint %s -> %s", graphstore.ErrNotFound, fromID, toID)
	}

	stored := attrs.Clone()
	delete(stored, graphstore.FieldKey)
	payload, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("sqlstore: encode edge: %w", err)
	}

	record := edgeRecord{
		ID:         id,
		Collection: edgeCollection,
		FromID:     fromID,
		ToID:       toID,
		Data:       datatypes.JSON(payload),
		Seq:        s.nextSeq(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", graphstore.Unavailable("sqlstore create edge", err)
	}
	return id, nil
}

func (s *Store) Find(ctx context.Context, collection string, filter graphstore.Document) ([]graphstore.Document, error) {
	if err := graphstore.ValidateIdentifier(collection); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&vertexRecord{}).Where("collection = ?", collection)
	residual := graphstore.Document{}
	for key, value := range filter {
		if str, ok := value.(string); ok && graphstore.ValidateIdentifier(key) == nil {
			query = query.Where(datatypes.JSONQuery("data").Equals(str, key))
			continue
		}
		residual[key] = value
	}

	var records []vertexRecord
	if err := query.Order("seq ASC").Find(&records).Error; err != nil {
		return nil, graphstore.Unavailable("sqlstore find", err)
	}

	docs := make([]graphstore.Document, 0, len(records))
	for _, record := range records {
		doc, err := decodeData(record.Data)
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
	if err := graphstore.ValidateIdentifier(edgeCollection); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&edgeRecord{}).Where("collection = ?", edgeCollection)
	if len(filter.From) > 0 {
		query = query.Where("from_id IN ?", filter.From)
	}
	if len(filter.To) > 0 {
		query = query.Where("to_id IN ?", filter.To)
	}

	var records []edgeRecord
	if err := query.Order("seq ASC").Find(&records).Error; err != nil {
		return nil, graphstore.Unavailable("sqlstore edges", err)
	}

	edges := make([]graphstore.Edge, 0, len(records))
	for _, record := range records {
		attrs, err := decodeData(record.Data)
		if err != nil {
			return nil, err
		}
		edges = append(edges, graphstore.Edge{
			ID:         record.ID,
			Collection: record.Collection,
			From:       record.FromID,
			To:         record.ToID,
			Attrs:      attrs,
		})
	}
	return edges, nil
}

func (s *Store) Traverse(ctx context.Context, startID string, direction graphstore.Direction, edgeCollection string, maxDepth int) ([]graphstore.Document, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: direction %q", graphstore.ErrInvalidQuery, direction)
	}
	if err := graphstore.ValidateIdentifier(edgeCollection); err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		return []graphstore.Document{}, nil
	}

	seen := map[string]struct{}{startID: {}}
	order := make([]string, 0)
	frontier := []string{startID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		filter := graphstore.EdgeFilter{From: frontier}
		if direction == graphstore.Inbound {
			filter = graphstore.EdgeFilter{To: frontier}
		}
		edges, err := s.Edges(ctx, edgeCollection, filter)
		if err != nil {
			return nil, err
		}
		next := make([]string, 0, len(edges))
		for _, edge := range edges {
			target := edge.To
			if direction == graphstore.Inbound {
				target = edge.From
			}
			if _, ok := seen[target]; ok {
				continue
			}
			seen[target] = struct{}{}
			order = append(order, target)
			next = append(next, target)
		}
		frontier = next
	}

	if len(order) == 0 {
		return []graphstore.Document{}, nil
	}

	var records []vertexRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", order).Find(&records).Error; err != nil {
		return nil, graphstore.Unavailable("sqlstore traverse", err)
	}
	byID := make(map[string]graphstore.Document, len(records))
	for _, record := range records {
		doc, err := decodeData(record.Data)
		if err != nil {
			return nil, err
		}
		byID[record.ID] = doc
	}

	docs := make([]graphstore.Document, 0, len(order))
	for _, id := range order {
		if doc, ok := byID[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// RunQuery executes a raw SQL statement. Values must be passed as named bind variables
// (@name); statements carrying string literals or multiple statements are rejected.
func (s *Store) RunQuery(ctx context.Context, query graphstore.Query) ([]graphstore.Document, error) {
	statement := strings.TrimSpace(query.Statement)
	if statement == "" {
		return nil, fmt.Errorf("%w: empty statement", graphstore.ErrInvalidQuery)
	}
	if strings.ContainsAny(statement, "';") || strings.Contains(statement, "--") {
		return nil, fmt.Errorf("%w: literals and statement separators must be passed as bind variables", graphstore.ErrInvalidQuery)
	}

	tx := s.db.WithContext(ctx)
	if len(query.BindVars) > 0 {
		tx = tx.Raw(statement, query.BindVars)
	} else {
		tx = tx.Raw(statement)
	}

	var rows []map[string]any
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, graphstore.Unavailable("sqlstore run query", err)
	}

	docs := make([]graphstore.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, graphstore.Document(row))
	}
	return docs, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return graphstore.Unavailable("sqlstore ping", err)
	}
	return graphstore.Unavailable("sqlstore ping", sqlDB.PingContext(ctx))
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decodeData(raw datatypes.JSON) (graphstore.Document, error) {
	doc := graphstore.Document{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("sqlstore: decode document: %w", err)
	}
	return doc, nil
}
