package customer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryVectorStore is an in-memory VectorStore for tests and single-node
// deployments.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	records []Record
}

var _ VectorStore = (*MemoryVectorStore)(nil)

// NewMemoryVectorStore creates an empty in-memory store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{}
}

// Add inserts a record.
func (s *MemoryVectorStore) Add(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Search returns the topK most similar records for a business.
func (s *MemoryVectorStore) Search(ctx context.Context, businessID string, query []float32, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, rec := range s.records {
		if rec.BusinessID != businessID {
			continue
		}
		matches = append(matches, Match{Record: rec, Score: CosineSimilarity(query, rec.Embedding)})
	}
	sortAndTrim(&matches, topK)
	return matches, nil
}

// SQLVectorStore is a Postgres-backed VectorStore. Embeddings are stored as
// JSON float arrays and scored in process, which is adequate at per-business
// CRM scale (hundreds to low thousands of rows).
type SQLVectorStore struct {
	db *sql.DB
}

var _ VectorStore = (*SQLVectorStore)(nil)

// NewSQLVectorStore wraps an existing database handle.
func NewSQLVectorStore(db *sql.DB) *SQLVectorStore {
	return &SQLVectorStore{db: db}
}

// Search loads the business's records and scores them against query.
func (s *SQLVectorStore) Search(ctx context.Context, businessID string, query []float32, topK int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, name, phone, content, embedding
		FROM customer_records
		WHERE business_id = $1`, businessID)
	if err != nil {
		return nil, fmt.Errorf("query customer records: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			rec     Record
			name    sql.NullString
			phone   sql.NullString
			content sql.NullString
			rawVec  []byte
		)
		if err := rows.Scan(&rec.ID, &rec.BusinessID, &name, &phone, &content, &rawVec); err != nil {
			return nil, fmt.Errorf("scan customer record: %w", err)
		}
		rec.Name = name.String
		rec.Phone = phone.String
		rec.Content = content.String
		if err := json.Unmarshal(rawVec, &rec.Embedding); err != nil {
			// Skip rows with corrupt embeddings rather than failing the call.
			continue
		}
		matches = append(matches, Match{Record: rec, Score: CosineSimilarity(query, rec.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer records: %w", err)
	}
	sortAndTrim(&matches, topK)
	return matches, nil
}

// CosineSimilarity returns the cosine similarity of two vectors, 0 when the
// dimensions differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortAndTrim(matches *[]Match, topK int) {
	sort.Slice(*matches, func(i, j int) bool {
		return (*matches)[i].Score > (*matches)[j].Score
	})
	if topK > 0 && len(*matches) > topK {
		*matches = (*matches)[:topK]
	}
}
