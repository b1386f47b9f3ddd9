package store

import (
	"context"
	"errors"
	"fmt"

	"placement-ai/index"
	"placement-ai/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex is the durable index backend: chunks and vectors live in
// a pgvector table, so the index survives restarts without a rebuild.
// Write serialization and atomic visibility come from transactions; the
// ivfflat index keeps search fast while `seq` keeps ties deterministic.
type PostgresIndex struct {
	pool      *pgxpool.Pool
	dimension int
	signature string
}

func NewPostgresIndex(ctx context.Context, pool *pgxpool.Pool, dimension int, signature string) (*PostgresIndex, error) {
	p := &PostgresIndex{pool: pool, dimension: dimension, signature: signature}
	if err := p.createTables(ctx); err != nil {
		return nil, &types.IndexError{Op: "init", Err: err}
	}
	if err := p.checkSignature(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgresIndex) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS rag_chunks (
		id UUID PRIMARY KEY,
		seq BIGSERIAL,
		experience_id UUID NOT NULL,
		position INT NOT NULL,
		company TEXT NOT NULL,
		role TEXT NOT NULL,
		year INT NOT NULL,
		start_offset INT NOT NULL,
		end_offset INT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rag_chunks_embedding ON rag_chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_rag_chunks_experience_id ON rag_chunks(experience_id);
	CREATE INDEX IF NOT EXISTS idx_rag_chunks_company ON rag_chunks(company);
	CREATE INDEX IF NOT EXISTS idx_rag_chunks_year ON rag_chunks(year);

	CREATE TABLE IF NOT EXISTS rag_index_meta (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL
	);
	`, p.dimension)
	_, err := p.pool.Exec(ctx, query)
	return err
}

// checkSignature pins the embedder signature the table was filled with.
// A mismatch means the stored vectors come from a different model and
// the index must be rebuilt, not silently mixed.
func (p *PostgresIndex) checkSignature(ctx context.Context) error {
	var stored string
	err := p.pool.QueryRow(ctx, `SELECT v FROM rag_index_meta WHERE k = 'embedder_signature'`).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		_, err = p.pool.Exec(ctx, `INSERT INTO rag_index_meta (k, v) VALUES ('embedder_signature', $1)`, p.signature)
		if err != nil {
			return &types.IndexError{Op: "init", Err: err}
		}
		return nil
	}
	if err != nil {
		return &types.IndexError{Op: "init", Err: err}
	}
	if stored != p.signature {
		return &types.IndexError{Op: "init", Err: fmt.Errorf("index built with embedder %q, configured %q; reindex required", stored, p.signature)}
	}
	return nil
}

func (p *PostgresIndex) Signature() string { return p.signature }

func (p *PostgresIndex) Size(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM rag_chunks`).Scan(&n); err != nil {
		return 0, &types.IndexError{Op: "count", Err: err}
	}
	return n, nil
}

func (p *PostgresIndex) Insert(ctx context.Context, entries []index.Entry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &types.IndexError{Op: "insert", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := p.insertTx(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return &types.IndexError{Op: "insert", Err: err}
	}
	return nil
}

func (p *PostgresIndex) insertTx(ctx context.Context, tx pgx.Tx, entries []index.Entry) error {
	query := `
	INSERT INTO rag_chunks (id, experience_id, position, company, role, year, start_offset, end_offset, content, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		experience_id = EXCLUDED.experience_id,
		position = EXCLUDED.position,
		company = EXCLUDED.company,
		role = EXCLUDED.role,
		year = EXCLUDED.year,
		start_offset = EXCLUDED.start_offset,
		end_offset = EXCLUDED.end_offset,
		content = EXCLUDED.content,
		embedding = EXCLUDED.embedding
	`
	for _, e := range entries {
		if len(e.Vector) != p.dimension {
			return &types.IndexError{Op: "insert", Err: fmt.Errorf("vector dimension %d, index expects %d", len(e.Vector), p.dimension)}
		}
		c := e.Chunk
		_, err := tx.Exec(ctx, query,
			c.ID, c.ExperienceID, c.Index, c.Company, c.Role, c.Year,
			c.StartOffset, c.EndOffset, c.Text, pgvector.NewVector(e.Vector),
		)
		if err != nil {
			return &types.IndexError{Op: "insert", Err: err}
		}
	}
	return nil
}

func (p *PostgresIndex) ReplaceSource(ctx context.Context, experienceID uuid.UUID, entries []index.Entry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &types.IndexError{Op: "replace", Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM rag_chunks WHERE experience_id = $1`, experienceID); err != nil {
		return &types.IndexError{Op: "replace", Err: err}
	}
	if err := p.insertTx(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return &types.IndexError{Op: "replace", Err: err}
	}
	return nil
}

func (p *PostgresIndex) RemoveBySource(ctx context.Context, experienceID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM rag_chunks WHERE experience_id = $1`, experienceID)
	if err != nil {
		return &types.IndexError{Op: "remove", Err: err}
	}
	return nil
}

func (p *PostgresIndex) Search(ctx context.Context, vector []float32, k int, filter index.Filter) ([]index.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != p.dimension {
		return nil, &types.IndexError{Op: "search", Err: fmt.Errorf("query dimension %d, index expects %d", len(vector), p.dimension)}
	}

	query := `
	SELECT id, experience_id, position, company, role, year, start_offset, end_offset, content,
	       1 - (embedding <=> $1) AS score
	FROM rag_chunks
	WHERE ($2 = '' OR company ILIKE '%' || $2 || '%')
	  AND ($3 = 0 OR year = $3)
	ORDER BY embedding <=> $1, seq
	LIMIT $4
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), filter.Company, filter.Year, k)
	if err != nil {
		return nil, &types.IndexError{Op: "search", Err: err}
	}
	defer rows.Close()

	var results []index.Result
	for rows.Next() {
		var r index.Result
		if err := rows.Scan(
			&r.Chunk.ID,
			&r.Chunk.ExperienceID,
			&r.Chunk.Index,
			&r.Chunk.Company,
			&r.Chunk.Role,
			&r.Chunk.Year,
			&r.Chunk.StartOffset,
			&r.Chunk.EndOffset,
			&r.Chunk.Text,
			&r.Score,
		); err != nil {
			return nil, &types.IndexError{Op: "search", Err: err}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.IndexError{Op: "search", Err: err}
	}
	return results, nil
}

// Rebuild replaces the table contents in one transaction, so concurrent
// searches see either the full old set or the full new one.
func (p *PostgresIndex) Rebuild(ctx context.Context, entries []index.Entry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &types.IndexError{Op: "rebuild", Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM rag_chunks`); err != nil {
		return &types.IndexError{Op: "rebuild", Err: err}
	}
	if err := p.insertTx(ctx, tx, entries); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO rag_index_meta (k, v) VALUES ('embedder_signature', $1)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`, p.signature); err != nil {
		return &types.IndexError{Op: "rebuild", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &types.IndexError{Op: "rebuild", Err: err}
	}
	return nil
}
