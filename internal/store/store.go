// Package store persists files, section embeddings, and query records in
// PostgreSQL with pgvector.
//
// Store is the narrow repository surface consumed by the indexer and the
// completions orchestrator; both depend on interfaces they define themselves,
// so Store only needs to satisfy them structurally.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/docprompt/docprompt/internal/section"
)

// EmbeddingDimensions is the vector size of the embedding model
// (text-embedding-ada-002). The file_sections.embedding column must match.
const EmbeddingDimensions = 1536

// DefaultTokenAllowance is the content token allowance applied to projects
// without an explicit allowance row.
const DefaultTokenAllowance int64 = 30_000

// FileRef identifies an existing file record.
type FileRef struct {
	ID         uuid.UUID
	Checksum   string
	TokenCount int
}

// SectionMeta is the per-section metadata stored alongside an embedding.
type SectionMeta struct {
	LeadHeading *section.Heading `json:"leadHeading,omitempty"`
}

// SectionEmbedding is one embedded section of a file.
type SectionEmbedding struct {
	FileID     uuid.UUID
	ProjectID  uuid.UUID
	Content    string
	Meta       *SectionMeta
	Embedding  pgvector.Vector
	TokenCount int
}

// AllowanceInfo reports a project's content token quota. It is read-only
// here; usage is recorded separately through RecordUsage and the files'
// token counts.
type AllowanceInfo struct {
	TokenAllowance           int64
	UsedTokens               int64
	NumRemainingTokensOnPlan int64
}

// SectionMatch is a ranked candidate section returned by MatchSections.
type SectionMatch struct {
	Path       string
	FileMeta   map[string]any
	Content    string
	Meta       *SectionMeta
	TokenCount int
	SourceType string
	SourceData map[string]any
	Similarity float64
}

// QueryStatus classifies a stored query record.
type QueryStatus string

const (
	// QueryStatusNone marks an ordinary answered query.
	QueryStatusNone QueryStatus = ""
	// QueryStatusNoSections marks a query whose section retrieval failed.
	QueryStatusNoSections QueryStatus = "no_sections"
	// QueryStatusAPIError marks a query whose provider call failed.
	QueryStatusAPIError QueryStatus = "api_error"
	// QueryStatusIDK marks a query answered with the don't-know sentinel.
	QueryStatusIDK QueryStatus = "idk"
)

// Store provides repository operations over a pgx connection pool.
// It is safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Connect opens a pooled connection with pgvector types registered on every
// connection.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool, logger), nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
