package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/tmc/langchaingo/embeddings"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
)

var _ types.Index = (*SQLiteIndex)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

// SQLiteIndex persists chunks in a single SQLite file and ranks them in
// process. It suits a desktop-sized corpus without a database server.
type SQLiteIndex struct {
	db       *sql.DB
	embedder embeddings.Embedder
}

// NewSQLiteIndex opens (or creates) the database at path.
func NewSQLiteIndex(path string, embedder embeddings.Embedder) (*SQLiteIndex, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, types.Unavailable("open sqlite", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, types.Unavailable("open sqlite", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteIndex{db: db, embedder: embedder}, nil
}

func (s *SQLiteIndex) AddDocumentChunks(ctx context.Context, documentID string, chunks []models.Chunk) (int, error) {
	indexed, err := embedChunks(ctx, s.embedder, documentID, chunks)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, types.Unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return 0, types.Unavailable("delete document", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, filename, page_number, chunk_index, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range indexed {
		_, err := stmt.ExecContext(ctx,
			ch.ID(),
			ch.DocumentID,
			sanitizeUTF8(ch.Filename),
			ch.PageNumber,
			ch.ChunkIndex,
			sanitizeUTF8(ch.Text),
			float32SliceToBytes(ch.Embedding),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk %s: %w", ch.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, types.Unavailable("commit", err)
	}
	return len(indexed), nil
}

func (s *SQLiteIndex) FindSimilarChunks(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		return models.RetrievalResult{}, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return nil, types.Unavailable("count chunks", err)
	}
	if count == 0 {
		return models.RetrievalResult{}, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, filename, page_number, chunk_index, content, embedding
		FROM chunks`)
	if err != nil {
		return nil, types.Unavailable("query chunks", err)
	}
	defer rows.Close()

	results := make(models.RetrievalResult, 0, count)
	for rows.Next() {
		var (
			ch   models.Chunk
			blob []byte
		)
		if err := rows.Scan(&ch.DocumentID, &ch.Filename, &ch.PageNumber, &ch.ChunkIndex, &ch.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, models.ScoredChunk{
			Chunk: ch,
			Score: cosine(vector, bytesToFloat32Slice(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("read chunks", err)
	}

	return rank(results, k), nil
}

func (s *SQLiteIndex) HasDocument(ctx context.Context, documentID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chunks WHERE document_id = ?)`, documentID).Scan(&exists)
	if err != nil {
		return false, types.Unavailable("lookup document", err)
	}
	return exists, nil
}

func (s *SQLiteIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return types.Unavailable("delete document", err)
	}
	return nil
}

func (s *SQLiteIndex) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// float32SliceToBytes encodes a vector as little-endian float32s.
func float32SliceToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
