package completions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/docprompt/docprompt/internal/openai"
	"github.com/docprompt/docprompt/internal/store"
)

// MatchStore performs the vector similarity search behind retrieval.
type MatchStore interface {
	MatchSections(ctx context.Context, projectID uuid.UUID, embedding pgvector.Vector, threshold float64, count int) ([]store.SectionMatch, error)
}

// EmbeddingProvider creates the query embedding.
type EmbeddingProvider interface {
	CreateEmbedding(ctx context.Context, input, credential string) (*openai.EmbeddingResponse, error)
}

// Retriever embeds a prompt and finds the indexed sections most similar to
// it.
type Retriever struct {
	store    MatchStore
	provider EmbeddingProvider
}

// NewRetriever builds a Retriever.
func NewRetriever(s MatchStore, provider EmbeddingProvider) *Retriever {
	return &Retriever{store: s, provider: provider}
}

// Retrieve embeds prompt and returns the ranked matches, the query embedding
// itself for later storage with the query record, and the provider token
// usage of the embedding call.
func (r *Retriever) Retrieve(ctx context.Context, projectID uuid.UUID, prompt, credential string, threshold float64, count int) ([]store.SectionMatch, pgvector.Vector, int, error) {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	if count <= 0 {
		count = DefaultMatchCount
	}

	resp, err := r.provider.CreateEmbedding(ctx, prompt, credential)
	if err != nil {
		return nil, pgvector.Vector{}, 0, fmt.Errorf("embed prompt: %w", err)
	}
	embedding := pgvector.NewVector(resp.Data[0].Embedding)

	matches, err := r.store.MatchSections(ctx, projectID, embedding, threshold, count)
	if err != nil {
		return nil, embedding, resp.Usage.TotalTokens, fmt.Errorf("match sections: %w", err)
	}
	return matches, embedding, resp.Usage.TotalTokens, nil
}
