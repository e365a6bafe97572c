package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FileAtPath looks up the file record for (sourceID, path). Returns nil when
// no record exists.
func (s *Store) FileAtPath(ctx context.Context, sourceID uuid.UUID, path string) (*FileRef, error) {
	var ref FileRef
	err := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(checksum, ''), COALESCE(token_count, 0)
		 FROM files WHERE source_id = $1 AND path = $2 LIMIT 1`,
		sourceID, path,
	).Scan(&ref.ID, &ref.Checksum, &ref.TokenCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup file %q: %w", path, err)
	}
	return &ref, nil
}

// CreateFile inserts a new file record and returns its id. The project id
// is stored denormalized so section queries can filter without a join.
func (s *Store) CreateFile(ctx context.Context, projectID, sourceID uuid.UUID, path string, meta map[string]any, checksum, rawContent string) (uuid.UUID, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal file meta: %w", err)
	}
	var id uuid.UUID
	err = s.pool.QueryRow(ctx,
		`INSERT INTO files (source_id, project_id, path, meta, checksum, raw_content)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sourceID, projectID, path, metaJSON, checksum, rawContent,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create file %q: %w", path, err)
	}
	return id, nil
}

// UpdateFile replaces a file record's metadata, checksum and raw content in
// place, preserving its identity.
func (s *Store) UpdateFile(ctx context.Context, id uuid.UUID, meta map[string]any, checksum, rawContent string) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal file meta: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE files SET meta = $2, checksum = $3, raw_content = $4 WHERE id = $1`,
		id, metaJSON, checksum, rawContent,
	); err != nil {
		return fmt.Errorf("update file %s: %w", id, err)
	}
	return nil
}

// UpdateFileTokenCount sets the total embedding token count of a file.
func (s *Store) UpdateFileTokenCount(ctx context.Context, id uuid.UUID, tokenCount int) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE files SET token_count = $2 WHERE id = $1`, id, tokenCount,
	); err != nil {
		return fmt.Errorf("update file token count %s: %w", id, err)
	}
	return nil
}

// DeleteFile removes a file record; its section embeddings are removed by
// the cascade. Used for rollback after a failed indexing pass.
func (s *Store) DeleteFile(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	return nil
}

// DeleteFileSections removes all section embeddings of a file ahead of a
// re-index pass.
func (s *Store) DeleteFileSections(ctx context.Context, fileID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM file_sections WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("delete sections of file %s: %w", fileID, err)
	}
	return nil
}

// SourceForProject returns the id of the project's source of the given
// type, creating it when absent. Used by the ingestion API, which addresses
// files by project rather than by source.
func (s *Store) SourceForProject(ctx context.Context, projectID uuid.UUID, sourceType string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM sources WHERE project_id = $1 AND type = $2 LIMIT 1`,
		projectID, sourceType,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("lookup source: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO sources (project_id, type) VALUES ($1, $2) RETURNING id`,
		projectID, sourceType,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create source: %w", err)
	}
	return id, nil
}
