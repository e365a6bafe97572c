package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docprompt/docprompt/internal/log"
	"github.com/docprompt/docprompt/internal/openai"
	"github.com/docprompt/docprompt/internal/store"
)

// mockStore implements Store in memory, recording calls for verification.
type mockStore struct {
	sourceID uuid.UUID
	existing *store.FileRef

	allowance          store.AllowanceInfo
	allowanceCallCount int

	createdFileID uuid.UUID
	updatedFiles  []uuid.UUID
	deletedFiles  []uuid.UUID

	batchErr      error
	batchInserted []store.SectionEmbedding
	singleErr     error
	singles       []store.SectionEmbedding

	usage           []int
	tokenCountCalls []int
}

func newMockStore() *mockStore {
	return &mockStore{
		sourceID:      uuid.New(),
		createdFileID: uuid.New(),
		allowance: store.AllowanceInfo{
			TokenAllowance:           store.DefaultTokenAllowance,
			UsedTokens:               0,
			NumRemainingTokensOnPlan: store.DefaultTokenAllowance,
		},
	}
}

func (m *mockStore) SourceForProject(_ context.Context, _ uuid.UUID, _ string) (uuid.UUID, error) {
	return m.sourceID, nil
}

func (m *mockStore) FileAtPath(_ context.Context, _ uuid.UUID, _ string) (*store.FileRef, error) {
	return m.existing, nil
}

func (m *mockStore) CreateFile(_ context.Context, _, _ uuid.UUID, _ string, _ map[string]any, _, _ string) (uuid.UUID, error) {
	return m.createdFileID, nil
}

func (m *mockStore) UpdateFile(_ context.Context, id uuid.UUID, _ map[string]any, _, _ string) error {
	m.updatedFiles = append(m.updatedFiles, id)
	return nil
}

func (m *mockStore) UpdateFileTokenCount(_ context.Context, _ uuid.UUID, tokenCount int) error {
	m.tokenCountCalls = append(m.tokenCountCalls, tokenCount)
	return nil
}

func (m *mockStore) DeleteFile(_ context.Context, id uuid.UUID) error {
	m.deletedFiles = append(m.deletedFiles, id)
	return nil
}

func (m *mockStore) DeleteFileSections(_ context.Context, _ uuid.UUID) error {
	return nil
}

func (m *mockStore) InsertSectionEmbeddings(_ context.Context, batch []store.SectionEmbedding) error {
	if m.batchErr != nil {
		return m.batchErr
	}
	m.batchInserted = append(m.batchInserted, batch...)
	return nil
}

func (m *mockStore) InsertSectionEmbedding(_ context.Context, emb store.SectionEmbedding) error {
	if m.singleErr != nil {
		return m.singleErr
	}
	m.singles = append(m.singles, emb)
	return nil
}

func (m *mockStore) TokenAllowance(_ context.Context, _ uuid.UUID) (store.AllowanceInfo, error) {
	m.allowanceCallCount++
	return m.allowance, nil
}

func (m *mockStore) RecordUsage(_ context.Context, _ uuid.UUID, _ string, tokenCount int, _ string) error {
	m.usage = append(m.usage, tokenCount)
	return nil
}

// mockProvider returns a fixed-size embedding and a configurable token count
// per call. failures sets how many leading calls fail.
type mockProvider struct {
	tokensPerCall int
	failures      int
	callCount     int
}

func (m *mockProvider) CreateEmbedding(_ context.Context, _, _ string) (*openai.EmbeddingResponse, error) {
	m.callCount++
	if m.callCount <= m.failures {
		return nil, errors.New("rate limited")
	}
	return &openai.EmbeddingResponse{
		Data:  []openai.EmbeddingData{{Embedding: make([]float32, store.EmbeddingDimensions)}},
		Usage: openai.Usage{TotalTokens: m.tokensPerCall},
	}, nil
}

func newTestIndexer(t *testing.T, st *mockStore, provider *mockProvider) *Indexer {
	t.Helper()
	ix := NewIndexer(st, provider, log.NewNop(), "sales@example.com")
	ix.retryInterval = time.Millisecond
	ix.maxRetries = 2
	return ix
}

const testContent = `# Getting Started

Install the package and run the setup command to get going.

## Usage

Run the binary with a configuration file to start the server.

## Deployment

Build the container image and push it to your registry of choice.
`

func TestIndexFile(t *testing.T) {
	projectID := uuid.New()
	file := FileData{Path: "docs/guide.md", Name: "guide.md", Content: testContent}

	t.Run("indexes all sections", func(t *testing.T) {
		st := newMockStore()
		provider := &mockProvider{tokensPerCall: 10}
		ix := newTestIndexer(t, st, provider)

		errs, err := ix.IndexFile(context.Background(), projectID, file, IndexOptions{})
		require.NoError(t, err)
		assert.Empty(t, errs)

		assert.Len(t, st.batchInserted, 3)
		assert.Equal(t, []int{30}, st.tokenCountCalls)
		assert.Equal(t, []int{30}, st.usage)
		for _, emb := range st.batchInserted {
			assert.Equal(t, st.createdFileID, emb.FileID)
			assert.Equal(t, projectID, emb.ProjectID)
			assert.Equal(t, 10, emb.TokenCount)
		}
	})

	t.Run("unchanged checksum short-circuits", func(t *testing.T) {
		st := newMockStore()
		st.existing = &store.FileRef{
			ID:         uuid.New(),
			Checksum:   store.Checksum(testContent),
			TokenCount: 30,
		}
		provider := &mockProvider{tokensPerCall: 10}
		ix := newTestIndexer(t, st, provider)

		errs, err := ix.IndexFile(context.Background(), projectID, file, IndexOptions{})
		require.NoError(t, err)
		assert.Empty(t, errs)

		assert.Zero(t, provider.callCount)
		assert.Empty(t, st.updatedFiles)
		assert.Empty(t, st.batchInserted)
	})

	t.Run("force reindexes unchanged file", func(t *testing.T) {
		st := newMockStore()
		existingID := uuid.New()
		st.existing = &store.FileRef{
			ID:         existingID,
			Checksum:   store.Checksum(testContent),
			TokenCount: 30,
		}
		provider := &mockProvider{tokensPerCall: 10}
		ix := newTestIndexer(t, st, provider)

		errs, err := ix.IndexFile(context.Background(), projectID, file, IndexOptions{Force: true})
		require.NoError(t, err)
		assert.Empty(t, errs)

		assert.Equal(t, []uuid.UUID{existingID}, st.updatedFiles)
		assert.Len(t, st.batchInserted, 3)
	})

	t.Run("file with zero token count is reindexed despite matching checksum", func(t *testing.T) {
		st := newMockStore()
		st.existing = &store.FileRef{
			ID:       uuid.New(),
			Checksum: store.Checksum(testContent),
		}
		provider := &mockProvider{tokensPerCall: 10}
		ix := newTestIndexer(t, st, provider)

		_, err := ix.IndexFile(context.Background(), projectID, file, IndexOptions{})
		require.NoError(t, err)
		assert.Len(t, st.batchInserted, 3)
	})

	t.Run("tiny sections are skipped", func(t *testing.T) {
		st := newMockStore()
		provider := &mockProvider{tokensPerCall: 10}
		ix := newTestIndexer(t, st, provider)

		tiny := FileData{Path: "tiny.md", Content: "# Hi\n\nok\n\n# Longer Heading Section\n\nThis one has enough content to embed.\n"}
		errs, err := ix.IndexFile(context.Background(), projectID, tiny, IndexOptions{})
		require.NoError(t, err)
		assert.Empty(t, errs)

		// "# Hi\n\nok" is long enough, but a bare "ok" section would not be;
		// every inserted section meets the minimum length.
		for _, emb := range st.batchInserted {
			assert.GreaterOrEqual(t, len(emb.Content), MinContentLength)
		}
	})

	t.Run("parse failure reports a file error", func(t *testing.T) {
		st := newMockStore()
		ix := newTestIndexer(t, st, &mockProvider{})

		errs, err := ix.IndexFile(context.Background(), projectID, FileData{Path: "empty.md", Content: "   "}, IndexOptions{})
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Message, "parse")
	})
}

func TestIndexFile_EmbeddingFailureRollsBack(t *testing.T) {
	projectID := uuid.New()
	st := newMockStore()
	// All attempts, including retries, fail.
	provider := &mockProvider{tokensPerCall: 10, failures: 1000}
	ix := newTestIndexer(t, st, provider)

	errs, err := ix.IndexFile(context.Background(), projectID, FileData{Path: "docs/guide.md", Content: testContent}, IndexOptions{})
	require.NoError(t, err)
	require.Len(t, errs, 3)

	// Each section was retried before giving up.
	assert.Equal(t, 9, provider.callCount)
	assert.Equal(t, []uuid.UUID{st.createdFileID}, st.deletedFiles)
	assert.Empty(t, st.batchInserted)
	assert.Empty(t, st.usage)
}

func TestIndexFile_RetryRecovers(t *testing.T) {
	projectID := uuid.New()
	st := newMockStore()
	// The first two calls fail; retries succeed within the three attempts
	// allowed per section.
	provider := &mockProvider{tokensPerCall: 10, failures: 2}
	ix := newTestIndexer(t, st, provider)

	errs, err := ix.IndexFile(context.Background(), projectID, FileData{Path: "docs/guide.md", Content: testContent}, IndexOptions{})
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Len(t, st.batchInserted, 3)
}

func TestIndexFile_QuotaExceededRollsBack(t *testing.T) {
	projectID := uuid.New()
	st := newMockStore()
	st.allowance = store.AllowanceInfo{
		TokenAllowance:           30,
		UsedTokens:               5,
		NumRemainingTokensOnPlan: 25,
	}
	// Three sections at 10 tokens each cross the remaining 25 on the third.
	provider := &mockProvider{tokensPerCall: 10}
	ix := newTestIndexer(t, st, provider)

	errs, err := ix.IndexFile(context.Background(), projectID, FileData{Path: "docs/guide.md", Content: testContent}, IndexOptions{})
	require.NoError(t, err)
	require.Len(t, errs, 1)

	assert.Equal(t, ErrorIDQuotaExceeded, errs[0].ErrorID)
	assert.Contains(t, errs[0].Message, "sales@example.com")
	assert.Equal(t, []uuid.UUID{st.createdFileID}, st.deletedFiles)
	assert.Empty(t, st.batchInserted)
	assert.Empty(t, st.usage)
}

func TestIndexFile_QuotaAppliesWithCredential(t *testing.T) {
	projectID := uuid.New()
	st := newMockStore()
	st.allowance = store.AllowanceInfo{TokenAllowance: 1, NumRemainingTokensOnPlan: 1}
	provider := &mockProvider{tokensPerCall: 10}
	ix := newTestIndexer(t, st, provider)

	// A caller-supplied key exempts usage billing, not the content quota.
	errs, err := ix.IndexFile(context.Background(), projectID,
		FileData{Path: "docs/guide.md", Content: testContent},
		IndexOptions{Credential: "sk-user-key"})
	require.NoError(t, err)
	require.NotEmpty(t, errs)

	assert.Equal(t, ErrorIDQuotaExceeded, errs[0].ErrorID)
	assert.Equal(t, []uuid.UUID{st.createdFileID}, st.deletedFiles)
	assert.Empty(t, st.batchInserted)
	assert.Empty(t, st.usage)
}

func TestIndexFile_CredentialSkipsUsageRecording(t *testing.T) {
	projectID := uuid.New()
	st := newMockStore()
	provider := &mockProvider{tokensPerCall: 10}
	ix := newTestIndexer(t, st, provider)

	errs, err := ix.IndexFile(context.Background(), projectID,
		FileData{Path: "docs/guide.md", Content: testContent},
		IndexOptions{Credential: "sk-user-key"})
	require.NoError(t, err)
	assert.Empty(t, errs)

	assert.Len(t, st.batchInserted, 3)
	assert.Empty(t, st.usage)
}

func TestIndexFile_PartialFailureBillsConsumedTokens(t *testing.T) {
	projectID := uuid.New()
	st := newMockStore()
	// The first section exhausts its three attempts; the other two succeed.
	provider := &mockProvider{tokensPerCall: 10, failures: 3}
	ix := newTestIndexer(t, st, provider)

	errs, err := ix.IndexFile(context.Background(), projectID, FileData{Path: "docs/guide.md", Content: testContent}, IndexOptions{})
	require.NoError(t, err)
	require.Len(t, errs, 1)

	// The file is rolled back, but the successful embedding calls consumed
	// tokens and are still billed.
	assert.Equal(t, []uuid.UUID{st.createdFileID}, st.deletedFiles)
	assert.Equal(t, []int{20}, st.usage)
}

func TestIndexFile_BatchInsertFallsBackToSingles(t *testing.T) {
	projectID := uuid.New()
	st := newMockStore()
	st.batchErr = errors.New("batch too large")
	provider := &mockProvider{tokensPerCall: 10}
	ix := newTestIndexer(t, st, provider)

	errs, err := ix.IndexFile(context.Background(), projectID, FileData{Path: "docs/guide.md", Content: testContent}, IndexOptions{})
	require.NoError(t, err)
	assert.Empty(t, errs)

	assert.Len(t, st.singles, 3)
	// The fallback is non-fatal: the file stays indexed and usage is billed.
	assert.Empty(t, st.deletedFiles)
	assert.Equal(t, []int{30}, st.tokenCountCalls)
}

func TestIndexFile_QuotaSnapshotIsAdvisory(t *testing.T) {
	projectID := uuid.New()
	st := newMockStore()
	provider := &mockProvider{tokensPerCall: 10}
	ix := newTestIndexer(t, st, provider)

	_, err := ix.IndexFile(context.Background(), projectID, FileData{Path: "docs/guide.md", Content: testContent}, IndexOptions{})
	require.NoError(t, err)

	// The allowance is read once before embedding; usage recorded by
	// concurrent runs after the snapshot is not observed.
	assert.Equal(t, 1, st.allowanceCallCount)
}

func TestIndexFiles(t *testing.T) {
	projectID := uuid.New()
	st := newMockStore()
	provider := &mockProvider{tokensPerCall: 10}
	ix := newTestIndexer(t, st, provider)

	files := []FileData{
		{Path: "a.md", Content: testContent},
		{Path: "bad.md", Content: "  "},
	}
	errs := ix.IndexFiles(context.Background(), projectID, files, IndexOptions{})

	require.Len(t, errs, 1)
	assert.Equal(t, "bad.md", errs[0].Path)
}
