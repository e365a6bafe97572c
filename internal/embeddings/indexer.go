// Package embeddings turns source files into embedded, searchable sections.
//
// The indexer parses each file into sections, splits them under the chunk
// limit, embeds every chunk through the provider, and persists the result.
// Files are reindexed atomically: an unchanged checksum short-circuits, and a
// file whose embedding fails is rolled back rather than left half indexed.
package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/docprompt/docprompt/internal/log"
	"github.com/docprompt/docprompt/internal/openai"
	"github.com/docprompt/docprompt/internal/section"
	"github.com/docprompt/docprompt/internal/store"
	"github.com/docprompt/docprompt/internal/tokenizer"
)

// MinContentLength is the minimum trimmed length of a chunk worth embedding.
// Shorter chunks are noise and are skipped.
const MinContentLength = 5

// SourceTypeAPIUpload is the source type recorded for files submitted through
// the training endpoint.
const SourceTypeAPIUpload = "api-upload"

// ErrorIDQuotaExceeded identifies the file error returned when indexing would
// exceed the project's content token allowance.
const ErrorIDQuotaExceeded = "content_quota_exceeded"

// Store is the persistence surface the indexer needs.
type Store interface {
	SourceForProject(ctx context.Context, projectID uuid.UUID, sourceType string) (uuid.UUID, error)
	FileAtPath(ctx context.Context, sourceID uuid.UUID, path string) (*store.FileRef, error)
	CreateFile(ctx context.Context, projectID, sourceID uuid.UUID, path string, meta map[string]any, checksum, rawContent string) (uuid.UUID, error)
	UpdateFile(ctx context.Context, id uuid.UUID, meta map[string]any, checksum, rawContent string) error
	UpdateFileTokenCount(ctx context.Context, id uuid.UUID, tokenCount int) error
	DeleteFile(ctx context.Context, id uuid.UUID) error
	DeleteFileSections(ctx context.Context, fileID uuid.UUID) error
	InsertSectionEmbeddings(ctx context.Context, batch []store.SectionEmbedding) error
	InsertSectionEmbedding(ctx context.Context, emb store.SectionEmbedding) error
	TokenAllowance(ctx context.Context, projectID uuid.UUID) (store.AllowanceInfo, error)
	RecordUsage(ctx context.Context, projectID uuid.UUID, model string, tokenCount int, operation string) error
}

// EmbeddingProvider creates embedding vectors for text inputs.
type EmbeddingProvider interface {
	CreateEmbedding(ctx context.Context, input, credential string) (*openai.EmbeddingResponse, error)
}

// FileData is one file submitted for indexing.
type FileData struct {
	Path    string
	Name    string
	Content string
}

// IndexOptions tune a single indexing run.
type IndexOptions struct {
	// Credential is a caller-supplied provider API key. When set, provider
	// usage is billed to the caller and not recorded against the project.
	Credential string
	// Force reindexes the file even when its checksum is unchanged.
	Force bool
	// SectionOptions configure how files are parsed into sections.
	SectionOptions section.Options
}

// FileError reports a non-fatal indexing failure for one file.
type FileError struct {
	ErrorID string `json:"id,omitempty"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Indexer embeds and persists file sections.
type Indexer struct {
	store      Store
	provider   EmbeddingProvider
	logger     log.Logger
	salesEmail string

	// Retry pacing, overridable in tests.
	retryInterval time.Duration
	maxRetries    uint64
}

// NewIndexer builds an Indexer. salesEmail is included in quota error
// messages so callers know who to contact for a larger allowance.
func NewIndexer(s Store, provider EmbeddingProvider, logger log.Logger, salesEmail string) *Indexer {
	return &Indexer{
		store:         s,
		provider:      provider,
		logger:        logger,
		salesEmail:    salesEmail,
		retryInterval: 10 * time.Second,
		maxRetries:    9,
	}
}

// IndexFiles indexes a batch of files, returning the per-file errors
// accumulated across the batch. One file failing does not stop the others.
func (ix *Indexer) IndexFiles(ctx context.Context, projectID uuid.UUID, files []FileData, opts IndexOptions) []FileError {
	var errs []FileError
	for _, file := range files {
		fileErrs, err := ix.IndexFile(ctx, projectID, file, opts)
		if err != nil {
			errs = append(errs, FileError{Path: file.Path, Message: err.Error()})
			continue
		}
		errs = append(errs, fileErrs...)
	}
	return errs
}

// IndexFile indexes a single file. The returned FileError slice holds
// content-level failures (parse errors, embedding failures, quota); the error
// return is reserved for infrastructure failures such as an unreachable
// database. When any section fails to embed, the whole file is rolled back so
// retrieval never sees a partially indexed file.
func (ix *Indexer) IndexFile(ctx context.Context, projectID uuid.UUID, file FileData, opts IndexOptions) ([]FileError, error) {
	parsed, err := section.Parse(file.Path, file.Content, opts.SectionOptions)
	if err != nil {
		return []FileError{{Path: file.Path, Message: fmt.Sprintf("parse: %v", err)}}, nil
	}
	chunks := section.SplitSections(parsed.Sections, tokenizer.MaxChunkLength)

	checksum := store.Checksum(file.Content)

	sourceID, err := ix.store.SourceForProject(ctx, projectID, SourceTypeAPIUpload)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}

	existing, err := ix.store.FileAtPath(ctx, sourceID, file.Path)
	if err != nil {
		return nil, fmt.Errorf("look up file: %w", err)
	}
	if existing != nil && !opts.Force && existing.Checksum == checksum && existing.TokenCount > 0 {
		ix.logger.Debug("file unchanged, skipping", "path", file.Path)
		return nil, nil
	}

	var fileID uuid.UUID
	if existing != nil {
		if err := ix.store.DeleteFileSections(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("delete stale sections: %w", err)
		}
		if err := ix.store.UpdateFile(ctx, existing.ID, parsed.Meta, checksum, file.Content); err != nil {
			return nil, fmt.Errorf("update file: %w", err)
		}
		fileID = existing.ID
	} else {
		fileID, err = ix.store.CreateFile(ctx, projectID, sourceID, file.Path, parsed.Meta, checksum, file.Content)
		if err != nil {
			return nil, fmt.Errorf("create file: %w", err)
		}
	}

	// Allowance snapshot. Usage recorded by concurrent runs after this point
	// is not observed, so the quota is advisory rather than strict.
	allowance, err := ix.store.TokenAllowance(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("read token allowance: %w", err)
	}

	var (
		batch      []store.SectionEmbedding
		tokenCount int
		fileErrs   []FileError
	)

	for _, chunk := range chunks {
		content := strings.TrimSpace(chunk.Content)
		if len(content) < MinContentLength {
			continue
		}

		resp, err := ix.embedWithRetry(ctx, content, opts.Credential)
		if err != nil {
			ix.logger.Error("embedding failed",
				"path", file.Path,
				"error", err,
			)
			fileErrs = append(fileErrs, FileError{
				Path:    file.Path,
				Message: fmt.Sprintf("embed section: %v", err),
			})
			continue
		}

		tokenCount += resp.Usage.TotalTokens

		if int64(tokenCount) > allowance.NumRemainingTokensOnPlan {
			if err := ix.store.DeleteFile(ctx, fileID); err != nil {
				return nil, fmt.Errorf("roll back over-quota file: %w", err)
			}
			return []FileError{{
				ErrorID: ErrorIDQuotaExceeded,
				Path:    file.Path,
				Message: fmt.Sprintf(
					"your plan allows indexing %d content tokens and %d are already used; contact %s to increase your quota",
					allowance.TokenAllowance, allowance.UsedTokens, ix.salesEmail,
				),
			}}, nil
		}

		batch = append(batch, store.SectionEmbedding{
			FileID:     fileID,
			ProjectID:  projectID,
			Content:    content,
			Meta:       sectionMeta(chunk),
			Embedding:  pgvector.NewVector(resp.Data[0].Embedding),
			TokenCount: resp.Usage.TotalTokens,
		})
	}

	if len(fileErrs) > 0 {
		// Tokens consumed by the embeddings that did succeed are still
		// billed, even though the file itself is rolled back.
		ix.recordUsage(ctx, projectID, tokenCount, opts.Credential)
		if err := ix.store.DeleteFile(ctx, fileID); err != nil {
			return nil, fmt.Errorf("roll back failed file: %w", err)
		}
		return fileErrs, nil
	}

	if err := ix.store.InsertSectionEmbeddings(ctx, batch); err != nil {
		// A failed batch degrades to per-section inserts so one bad row does
		// not lose the whole file.
		ix.logger.Warn("batch insert failed, inserting sections individually",
			"path", file.Path,
			"error", err,
		)
		for _, emb := range batch {
			if err := ix.store.InsertSectionEmbedding(ctx, emb); err != nil {
				ix.logger.Warn("section insert failed",
					"path", file.Path,
					"error", err,
				)
			}
		}
	}

	ix.recordUsage(ctx, projectID, tokenCount, opts.Credential)

	if err := ix.store.UpdateFileTokenCount(ctx, fileID, tokenCount); err != nil {
		return nil, fmt.Errorf("update file token count: %w", err)
	}

	ix.logger.Info("indexed file",
		"path", file.Path,
		"sections", len(batch),
		"tokens", tokenCount,
	)
	return nil, nil
}

// recordUsage attributes embedding tokens to the project. Callers indexing
// with their own provider key are billed by the provider directly.
func (ix *Indexer) recordUsage(ctx context.Context, projectID uuid.UUID, tokenCount int, credential string) {
	if credential != "" || tokenCount == 0 {
		return
	}
	if err := ix.store.RecordUsage(ctx, projectID, openai.EmbeddingModel, tokenCount, "train"); err != nil {
		ix.logger.Warn("record usage failed", "project", projectID, "error", err)
	}
}

func (ix *Indexer) embedWithRetry(ctx context.Context, content, credential string) (*openai.EmbeddingResponse, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = ix.retryInterval

	var resp *openai.EmbeddingResponse
	op := func() error {
		var err error
		resp, err = ix.provider.CreateEmbedding(ctx, content, credential)
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, ix.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func sectionMeta(chunk section.Section) *store.SectionMeta {
	if chunk.LeadHeading == nil {
		return nil
	}
	return &store.SectionMeta{LeadHeading: chunk.LeadHeading}
}
