package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
)

var _ types.Index = (*PGVectorIndex)(nil)

type PGVectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// PGVectorIndex stores chunks in PostgreSQL and lets pgvector rank them by
// cosine distance.
type PGVectorIndex struct {
	config   PGVectorConfig
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
}

func NewPGVectorIndex(ctx context.Context, config PGVectorConfig, embedder embeddings.Embedder) (*PGVectorIndex, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, types.Unavailable("connect to database", err)
	}

	idx := &PGVectorIndex{
		config:   config,
		pool:     pool,
		embedder: embedder,
	}

	if err := idx.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return idx, nil
}

func (s *PGVectorIndex) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, s.config.TableName, s.config.VectorDim)

	if _, err = s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`,
		s.config.TableName, s.config.TableName)

	if _, err = s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (s *PGVectorIndex) AddDocumentChunks(ctx context.Context, documentID string, chunks []models.Chunk) (int, error) {
	indexed, err := embedChunks(ctx, s.embedder, documentID, chunks)
	if err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, types.Unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	// Replace, not merge: a shorter re-ingest must not leave stale ordinals behind.
	del := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.config.TableName)
	if _, err := tx.Exec(ctx, del, documentID); err != nil {
		return 0, types.Unavailable("delete document", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, filename, page_number, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.config.TableName)

	for _, ch := range indexed {
		_, err = tx.Exec(ctx, stmt,
			ch.ID(),
			ch.DocumentID,
			sanitizeUTF8(ch.Filename),
			ch.PageNumber,
			ch.ChunkIndex,
			sanitizeUTF8(ch.Text),
			pgvector.NewVector(ch.Embedding),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk %s: %w", ch.ID(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, types.Unavailable("commit", err)
	}

	return len(indexed), nil
}

func (s *PGVectorIndex) FindSimilarChunks(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		return models.RetrievalResult{}, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// Score is cosine similarity; pgvector's <=> is cosine distance.
	q := fmt.Sprintf(`
		SELECT document_id, filename, page_number, chunk_index, content,
			1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, document_id, chunk_index
		LIMIT $2`,
		s.config.TableName)

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, types.Unavailable("query chunks", err)
	}
	defer rows.Close()

	results := models.RetrievalResult{}
	for rows.Next() {
		var sc models.ScoredChunk
		err := rows.Scan(
			&sc.Chunk.DocumentID,
			&sc.Chunk.Filename,
			&sc.Chunk.PageNumber,
			&sc.Chunk.ChunkIndex,
			&sc.Chunk.Text,
			&sc.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("read chunks", err)
	}

	return rank(results, k), nil
}

func (s *PGVectorIndex) HasDocument(ctx context.Context, documentID string) (bool, error) {
	var exists bool
	q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE document_id = $1)`, s.config.TableName)
	if err := s.pool.QueryRow(ctx, q, documentID).Scan(&exists); err != nil {
		return false, types.Unavailable("lookup document", err)
	}
	return exists, nil
}

func (s *PGVectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.config.TableName)
	if _, err := s.pool.Exec(ctx, q, documentID); err != nil {
		return types.Unavailable("delete document", err)
	}
	return nil
}

func (s *PGVectorIndex) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes, which PostgreSQL rejects in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
