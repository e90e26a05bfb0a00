package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"knowshowgo/internal/embedding"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/types"
)

// activationRel is the edge relation used for persisted working-memory
// weights.
const activationRel = "activation"

// LocalStore implements MemoryStore over SQLite. Nodes and edges live in two
// tables with JSON columns for labels, props, and embeddings; the optional
// sqlite-vec extension accelerates embedding search with a vec0 index.
type LocalStore struct {
	db              *sql.DB
	mu              sync.RWMutex
	dbPath          string
	embeddingEngine embedding.Engine
	vectorExt       bool // sqlite-vec available
	vecDim          int  // vec_index dimension, 0 until the first embedding
	requireVec      bool // fail fast when the extension is missing
}

// Option configures a LocalStore.
type Option func(*LocalStore)

// WithEmbeddingEngine wires an engine for upsert-time embedding requests.
func WithEmbeddingEngine(engine embedding.Engine) Option {
	return func(s *LocalStore) { s.embeddingEngine = engine }
}

// WithRequireVec makes startup fail when sqlite-vec is unavailable.
func WithRequireVec() Option {
	return func(s *LocalStore) { s.requireVec = true }
}

// NewLocalStore initializes the SQLite database at the given path.
// Use ":memory:" for tests.
func NewLocalStore(path string, opts ...Option) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: linearizable single-key reads/writes without
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	store.detectVecExtension()
	if store.requireVec && !store.vectorExt {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension required but not available")
	}
	if store.vectorExt {
		logging.Store("sqlite-vec extension detected, vec index enabled")
		store.loadVecIndex()
	} else {
		logging.StoreDebug("sqlite-vec unavailable, using cosine scan")
	}

	return store, nil
}

// initialize creates the schema.
func (s *LocalStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			uuid TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			labels TEXT NOT NULL DEFAULT '[]',
			props TEXT NOT NULL DEFAULT '{}',
			embedding TEXT,
			status TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind)`,
		`CREATE TABLE IF NOT EXISTS edges (
			uuid TEXT PRIMARY KEY,
			from_node TEXT NOT NULL,
			to_node TEXT NOT NULL,
			rel TEXT NOT NULL,
			props TEXT NOT NULL DEFAULT '{}',
			weight REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_node, rel)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_node, rel)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// detectVecExtension attempts to create a vec0 virtual table to see if
// sqlite-vec is available.
func (s *LocalStore) detectVecExtension() {
	if s.db == nil {
		return
	}
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		return
	}
	s.vectorExt = false
}

// SetEmbeddingEngine configures the embedding engine after construction.
func (s *LocalStore) SetEmbeddingEngine(engine embedding.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddingEngine = engine
}

// =============================================================================
// NODE OPERATIONS
// =============================================================================

// UpsertNode writes a node by uuid, replacing props wholesale.
func (s *LocalStore) UpsertNode(ctx context.Context, node *types.Node, prov types.Provenance, embedText string) (string, error) {
	if node == nil {
		return "", fmt.Errorf("%w: nil node", types.ErrInvalidArgument)
	}
	if node.Kind == "" {
		return "", fmt.Errorf("%w: node kind required", types.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if node.UUID == "" {
		node.UUID = uuid.NewString()
	}

	if embedText != "" && node.Embedding == nil && s.embeddingEngine != nil {
		vec, err := s.embeddingEngine.Embed(ctx, embedText)
		if err != nil {
			// Embedding failures degrade to keyword retrieval; the write
			// itself still lands.
			logging.Get(logging.CategoryStore).Warn("embedding request failed for %s: %v", node.UUID, err)
		} else {
			node.Embedding = vec
		}
	}

	props := node.Props.Clone()
	if props == nil {
		props = types.Props{}
	}
	props["_provenance"] = map[string]interface{}{
		"source":     string(prov.Source),
		"ts":         prov.TS.Format(time.RFC3339),
		"confidence": prov.Confidence,
		"trace_id":   prov.TraceID,
	}

	labelsJSON, err := json.Marshal(node.Labels)
	if err != nil {
		return "", fmt.Errorf("failed to marshal labels: %w", err)
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to marshal props: %w", err)
	}

	var embeddingJSON interface{}
	if node.Embedding != nil {
		data, err := json.Marshal(node.Embedding)
		if err != nil {
			return "", fmt.Errorf("failed to marshal embedding: %w", err)
		}
		embeddingJSON = string(data)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (uuid, kind, labels, props, embedding, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			kind = excluded.kind,
			labels = excluded.labels,
			props = excluded.props,
			embedding = COALESCE(excluded.embedding, nodes.embedding),
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		node.UUID, node.Kind, string(labelsJSON), string(propsJSON), embeddingJSON, node.Status)
	if err != nil {
		return "", fmt.Errorf("failed to upsert node: %w", err)
	}
	if s.vectorExt && len(node.Embedding) > 0 {
		s.indexEmbedding(ctx, node.UUID, node.Embedding)
	}

	logging.StoreDebug("Upserted node %s kind=%s trace=%s", node.UUID, node.Kind, prov.TraceID)
	return node.UUID, nil
}

// GetNode loads a node by uuid.
func (s *LocalStore) GetNode(ctx context.Context, id string) (*types.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchNode(ctx, id)
}

// fetchNode reads a node without locking; callers hold s.mu.
func (s *LocalStore) fetchNode(ctx context.Context, id string) (*types.Node, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT uuid, kind, labels, props, embedding, status FROM nodes WHERE uuid = ?", id)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node %s: %w", id, types.ErrNotFound)
	}
	return node, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*types.Node, error) {
	var n types.Node
	var labelsJSON, propsJSON string
	var embeddingJSON sql.NullString
	if err := row.Scan(&n.UUID, &n.Kind, &labelsJSON, &propsJSON, &embeddingJSON, &n.Status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(labelsJSON), &n.Labels); err != nil {
		return nil, fmt.Errorf("corrupt labels for %s: %w", n.UUID, err)
	}
	if err := json.Unmarshal([]byte(propsJSON), &n.Props); err != nil {
		return nil, fmt.Errorf("corrupt props for %s: %w", n.UUID, err)
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &n.Embedding); err != nil {
			return nil, fmt.Errorf("corrupt embedding for %s: %w", n.UUID, err)
		}
	}
	return &n, nil
}

// =============================================================================
// EDGE OPERATIONS
// =============================================================================

// UpsertEdge writes an edge by uuid. Both endpoints must already exist.
func (s *LocalStore) UpsertEdge(ctx context.Context, edge *types.Edge, prov types.Provenance) (string, error) {
	if edge == nil || edge.FromNode == "" || edge.ToNode == "" || edge.Rel == "" {
		return "", fmt.Errorf("%w: edge requires from_node, to_node, rel", types.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, endpoint := range []string{edge.FromNode, edge.ToNode} {
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM nodes WHERE uuid = ?", endpoint).Scan(&exists)
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: edge endpoint %s does not exist", types.ErrInvalidArgument, endpoint)
		}
		if err != nil {
			return "", fmt.Errorf("failed to check endpoint: %w", err)
		}
	}

	if edge.UUID == "" {
		edge.UUID = uuid.NewString()
	}

	props := edge.Props.Clone()
	if props == nil {
		props = types.Props{}
	}
	props["_provenance"] = map[string]interface{}{
		"source":     string(prov.Source),
		"ts":         prov.TS.Format(time.RFC3339),
		"confidence": prov.Confidence,
		"trace_id":   prov.TraceID,
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to marshal edge props: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edges (uuid, from_node, to_node, rel, props, weight)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			from_node = excluded.from_node,
			to_node = excluded.to_node,
			rel = excluded.rel,
			props = excluded.props,
			weight = excluded.weight,
			updated_at = CURRENT_TIMESTAMP`,
		edge.UUID, edge.FromNode, edge.ToNode, edge.Rel, string(propsJSON), edge.Weight)
	if err != nil {
		return "", fmt.Errorf("failed to upsert edge: %w", err)
	}

	logging.StoreDebug("Upserted edge %s %s -[%s]-> %s", edge.UUID, edge.FromNode, edge.Rel, edge.ToNode)
	return edge.UUID, nil
}

// GetEdges filters by any combination of endpoints and relation.
func (s *LocalStore) GetEdges(ctx context.Context, fromNode, toNode, rel string) ([]*types.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT uuid, from_node, to_node, rel, props, weight FROM edges WHERE 1=1"
	var args []interface{}
	if fromNode != "" {
		query += " AND from_node = ?"
		args = append(args, fromNode)
	}
	if toNode != "" {
		query += " AND to_node = ?"
		args = append(args, toNode)
	}
	if rel != "" {
		query += " AND rel = ?"
		args = append(args, rel)
	}
	query += " ORDER BY created_at, uuid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []*types.Edge
	for rows.Next() {
		var e types.Edge
		var propsJSON string
		if err := rows.Scan(&e.UUID, &e.FromNode, &e.ToNode, &e.Rel, &propsJSON, &e.Weight); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(propsJSON), &e.Props); err != nil {
			return nil, fmt.Errorf("corrupt edge props for %s: %w", e.UUID, err)
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// IncrementEdgeWeight adds delta to the activation edge between the pair,
// clamped to max, creating the edge if absent.
func (s *LocalStore) IncrementEdgeWeight(ctx context.Context, source, target string, delta, max float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE edges SET weight = MIN(weight + ?, ?), updated_at = CURRENT_TIMESTAMP
		WHERE from_node = ? AND to_node = ? AND rel = ?`,
		delta, max, source, target, activationRel)
	if err != nil {
		return fmt.Errorf("failed to increment edge weight: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	weight := delta
	if weight > max {
		weight = max
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edges (uuid, from_node, to_node, rel, props, weight)
		VALUES (?, ?, ?, ?, '{}', ?)`,
		uuid.NewString(), source, target, activationRel, weight)
	if err != nil {
		return fmt.Errorf("failed to create activation edge: %w", err)
	}
	return nil
}

// =============================================================================
// STATS / LIFECYCLE
// =============================================================================

// GetStats returns database statistics for the CLI.
func (s *LocalStore) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)

	var nodes, edges, embedded int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&nodes); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&edges); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM nodes WHERE embedding IS NOT NULL").Scan(&embedded); err != nil {
		return nil, err
	}
	stats["nodes"] = nodes
	stats["edges"] = edges
	stats["nodes_with_embeddings"] = embedded

	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM nodes GROUP BY kind")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		stats["kind:"+kind] = count
	}
	return stats, rows.Err()
}

// Close closes the database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
