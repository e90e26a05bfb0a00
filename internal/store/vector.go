package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"knowshowgo/internal/logging"
)

// The vec_index vec0 virtual table mirrors every embedded node so queries
// with an embedding run as a KNN lookup instead of a full cosine scan. The
// index is created lazily from the first embedding seen; all maintenance
// failures degrade to the scan path with a warning.

// encodeEmbeddingBlob packs a vector as little-endian float32 bytes, the
// format sqlite-vec expects for vec0 columns.
func encodeEmbeddingBlob(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbeddingBlob is the inverse of encodeEmbeddingBlob.
func decodeEmbeddingBlob(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// loadVecIndex picks up an existing vec_index from a previous process. An
// empty index is dropped so the next embedding can fix the dimension.
func (s *LocalStore) loadVecIndex() {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'vec_index'").Scan(&name)
	if err != nil {
		return
	}
	var blobLen int
	if err := s.db.QueryRow("SELECT length(embedding) FROM vec_index LIMIT 1").Scan(&blobLen); err != nil {
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_index")
		return
	}
	s.vecDim = blobLen / 4
	logging.StoreDebug("vec_index loaded, dimension %d", s.vecDim)
}

// ensureVecIndex creates the vec0 table on first use and backfills already
// embedded nodes. The dimension is fixed by the first embedding seen; later
// vectors with other dimensions stay reachable through the cosine scan.
// Caller holds s.mu.
func (s *LocalStore) ensureVecIndex(ctx context.Context, dim int) bool {
	if !s.vectorExt || dim <= 0 {
		return false
	}
	if s.vecDim != 0 {
		return s.vecDim == dim
	}

	stmt := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS vec_index USING vec0(embedding float[%d], node_uuid TEXT)", dim)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		logging.Get(logging.CategoryStore).Warn("failed to create vec_index: %v", err)
		return false
	}
	s.vecDim = dim
	logging.Store("vec_index created, dimension %d", dim)
	s.backfillVecIndex(ctx)
	return true
}

// backfillVecIndex mirrors embeddings written before the index existed.
func (s *LocalStore) backfillVecIndex(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT uuid, kind, labels, props, embedding, status FROM nodes WHERE embedding IS NOT NULL")
	if err != nil {
		logging.StoreDebug("vec_index backfill query failed: %v", err)
		return
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil || len(node.Embedding) != s.vecDim {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO vec_index (embedding, node_uuid) VALUES (?, ?)",
			encodeEmbeddingBlob(node.Embedding), node.UUID); err != nil {
			logging.StoreDebug("vec_index backfill insert for %s failed: %v", node.UUID, err)
			continue
		}
		count++
	}
	if count > 0 {
		logging.Store("vec_index backfilled %d embedding(s)", count)
	}
}

// indexEmbedding mirrors one node's embedding into vec_index. Failures are
// non-fatal; the node stays reachable through the scan path. Caller holds
// s.mu.
func (s *LocalStore) indexEmbedding(ctx context.Context, nodeUUID string, vec []float32) {
	if !s.ensureVecIndex(ctx, len(vec)) {
		return
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM vec_index WHERE node_uuid = ?", nodeUUID); err != nil {
		logging.StoreDebug("vec_index delete for %s failed: %v", nodeUUID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO vec_index (embedding, node_uuid) VALUES (?, ?)",
		encodeEmbeddingBlob(vec), nodeUUID); err != nil {
		logging.Get(logging.CategoryStore).Warn("vec_index insert for %s failed: %v", nodeUUID, err)
	}
}

// vecHit is one KNN result, distance already converted to similarity.
type vecHit struct {
	uuid string
	sim  float64
}

// nearestEmbeddings runs the KNN query against vec_index. Cosine distance
// is converted to similarity (1 - distance) to match the scan path's
// scoring. Caller holds s.mu.
func (s *LocalStore) nearestEmbeddings(ctx context.Context, query []float32, limit int) ([]vecHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_uuid, vec_distance_cosine(embedding, ?) AS distance
		FROM vec_index
		ORDER BY distance ASC
		LIMIT ?`,
		encodeEmbeddingBlob(query), limit)
	if err != nil {
		return nil, fmt.Errorf("vec knn query failed: %w", err)
	}
	defer rows.Close()

	var hits []vecHit
	for rows.Next() {
		var h vecHit
		var distance float64
		if err := rows.Scan(&h.uuid, &distance); err != nil {
			return nil, err
		}
		h.sim = 1.0 - distance
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
