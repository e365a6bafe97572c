package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// TokenAllowance returns the content token quota state of a project. Used
// tokens are the sum of the token counts of the project's indexed files.
// Projects without an allowance row get DefaultTokenAllowance.
func (s *Store) TokenAllowance(ctx context.Context, projectID uuid.UUID) (AllowanceInfo, error) {
	info := AllowanceInfo{TokenAllowance: DefaultTokenAllowance}

	var allowance int64
	err := s.pool.QueryRow(ctx,
		`SELECT token_allowance FROM project_allowances WHERE project_id = $1`,
		projectID,
	).Scan(&allowance)
	switch {
	case err == nil:
		info.TokenAllowance = allowance
	case errors.Is(err, pgx.ErrNoRows):
		// Keep the default.
	default:
		return AllowanceInfo{}, fmt.Errorf("lookup token allowance: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(token_count), 0) FROM files WHERE project_id = $1`,
		projectID,
	).Scan(&info.UsedTokens)
	if err != nil {
		return AllowanceInfo{}, fmt.Errorf("sum used tokens: %w", err)
	}

	info.NumRemainingTokensOnPlan = info.TokenAllowance - info.UsedTokens
	if info.NumRemainingTokensOnPlan < 0 {
		info.NumRemainingTokensOnPlan = 0
	}
	return info, nil
}

// SetTokenAllowance upserts a project's content token allowance.
func (s *Store) SetTokenAllowance(ctx context.Context, projectID uuid.UUID, allowance int64) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO project_allowances (project_id, token_allowance) VALUES ($1, $2)
		 ON CONFLICT (project_id) DO UPDATE SET token_allowance = EXCLUDED.token_allowance`,
		projectID, allowance,
	); err != nil {
		return fmt.Errorf("set token allowance: %w", err)
	}
	return nil
}

// RecordUsage appends a usage event to the project's ledger.
func (s *Store) RecordUsage(ctx context.Context, projectID uuid.UUID, model string, tokenCount int, operation string) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO usage_events (project_id, model, operation, token_count)
		 VALUES ($1, $2, $3, $4)`,
		projectID, model, operation, tokenCount,
	); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// InsertQuery stores a query record, possibly as a placeholder with an
// empty response ahead of streaming, and returns its id. references is
// marshaled as JSON; a nil embedding stores NULL.
func (s *Store) InsertQuery(ctx context.Context, projectID uuid.UUID, prompt, response string, embedding *pgvector.Vector, status QueryStatus, references any) (uuid.UUID, error) {
	refsJSON, err := json.Marshal(references)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal references: %w", err)
	}
	var statusVal *string
	if status != QueryStatusNone {
		v := string(status)
		statusVal = &v
	}
	var id uuid.UUID
	err = s.pool.QueryRow(ctx,
		`INSERT INTO queries (project_id, prompt, response, embedding, status, "references")
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		projectID, prompt, response, embedding, statusVal, refsJSON,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert query: %w", err)
	}
	return id, nil
}

// UpdateQuery sets the final response text and classification of a stored
// query record once the full response is known.
func (s *Store) UpdateQuery(ctx context.Context, id uuid.UUID, response string, status QueryStatus) error {
	var statusVal *string
	if status != QueryStatusNone {
		v := string(status)
		statusVal = &v
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE queries SET response = $2, status = $3 WHERE id = $1`,
		id, response, statusVal,
	); err != nil {
		return fmt.Errorf("update query %s: %w", id, err)
	}
	return nil
}
