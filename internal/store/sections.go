package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

func sectionMetaJSON(meta *SectionMeta) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

// InsertSectionEmbeddings inserts a batch of section embeddings in a single
// transaction.
func (s *Store) InsertSectionEmbeddings(ctx context.Context, batch []SectionEmbedding) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, emb := range batch {
		if err := insertSection(ctx, tx, emb); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}
	return nil
}

// InsertSectionEmbedding inserts a single section embedding. Used as the
// degraded one-at-a-time fallback when a batch insert fails.
func (s *Store) InsertSectionEmbedding(ctx context.Context, emb SectionEmbedding) error {
	return insertSection(ctx, s.pool, emb)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertSection(ctx context.Context, q execer, emb SectionEmbedding) error {
	metaJSON, err := sectionMetaJSON(emb.Meta)
	if err != nil {
		return fmt.Errorf("marshal section meta: %w", err)
	}
	if _, err := q.Exec(ctx,
		`INSERT INTO file_sections (file_id, project_id, content, meta, embedding, token_count)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		emb.FileID, emb.ProjectID, emb.Content, metaJSON, emb.Embedding, emb.TokenCount,
	); err != nil {
		return fmt.Errorf("insert section embedding: %w", err)
	}
	return nil
}

// MatchSections returns the sections most similar to the query embedding,
// ordered best match first. Similarity is cosine similarity; matches below
// threshold are excluded.
func (s *Store) MatchSections(ctx context.Context, projectID uuid.UUID, embedding pgvector.Vector, threshold float64, count int) ([]SectionMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.path, f.meta, fs.content, fs.meta, fs.token_count,
		        COALESCE(src.type, 'api-upload'), COALESCE(src.data, 'null'::jsonb),
		        1 - (fs.embedding <=> $1) AS similarity
		 FROM file_sections fs
		 JOIN files f ON f.id = fs.file_id
		 LEFT JOIN sources src ON src.id = f.source_id
		 WHERE fs.project_id = $2 AND 1 - (fs.embedding <=> $1) > $3
		 ORDER BY fs.embedding <=> $1
		 LIMIT $4`,
		embedding, projectID, threshold, count,
	)
	if err != nil {
		return nil, fmt.Errorf("match sections: %w", err)
	}
	defer rows.Close()

	var matches []SectionMatch
	for rows.Next() {
		var m SectionMatch
		var fileMetaJSON, sectionMetaJSON, sourceDataJSON []byte
		if err := rows.Scan(&m.Path, &fileMetaJSON, &m.Content, &sectionMetaJSON,
			&m.TokenCount, &m.SourceType, &sourceDataJSON, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan section match: %w", err)
		}
		if len(fileMetaJSON) > 0 {
			if err := json.Unmarshal(fileMetaJSON, &m.FileMeta); err != nil {
				s.logger.Warn("invalid file meta", "path", m.Path, "error", err)
			}
		}
		if len(sectionMetaJSON) > 0 {
			if err := json.Unmarshal(sectionMetaJSON, &m.Meta); err != nil {
				s.logger.Warn("invalid section meta", "path", m.Path, "error", err)
			}
		}
		if len(sourceDataJSON) > 0 {
			_ = json.Unmarshal(sourceDataJSON, &m.SourceData)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate section matches: %w", err)
	}
	return matches, nil
}
