package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docprompt/docprompt/internal/log"
	"github.com/docprompt/docprompt/internal/section"
	"github.com/docprompt/docprompt/internal/store"
	"github.com/docprompt/docprompt/internal/testutil"
)

// unitVector returns an embedding with a 1 at the given dimension.
func unitVector(dim int) pgvector.Vector {
	v := make([]float32, store.EmbeddingDimensions)
	v[dim] = 1
	return pgvector.NewVector(v)
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st, err := store.Connect(ctx, db.ConnStr, log.NewNop())
	require.NoError(t, err)
	defer st.Close()

	projectID := uuid.New()

	t.Run("source resolution is idempotent", func(t *testing.T) {
		first, err := st.SourceForProject(ctx, projectID, "api-upload")
		require.NoError(t, err)
		second, err := st.SourceForProject(ctx, projectID, "api-upload")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	sourceID, err := st.SourceForProject(ctx, projectID, "api-upload")
	require.NoError(t, err)

	t.Run("file lifecycle", func(t *testing.T) {
		ref, err := st.FileAtPath(ctx, sourceID, "docs/missing.md")
		require.NoError(t, err)
		assert.Nil(t, ref)

		checksum := store.Checksum("content v1")
		fileID, err := st.CreateFile(ctx, projectID, sourceID, "docs/guide.md",
			map[string]any{"title": "Guide"}, checksum, "content v1")
		require.NoError(t, err)

		ref, err = st.FileAtPath(ctx, sourceID, "docs/guide.md")
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, fileID, ref.ID)
		assert.Equal(t, checksum, ref.Checksum)
		assert.Zero(t, ref.TokenCount)

		require.NoError(t, st.UpdateFileTokenCount(ctx, fileID, 42))
		ref, err = st.FileAtPath(ctx, sourceID, "docs/guide.md")
		require.NoError(t, err)
		assert.Equal(t, 42, ref.TokenCount)

		newChecksum := store.Checksum("content v2")
		require.NoError(t, st.UpdateFile(ctx, fileID, map[string]any{"title": "Guide v2"}, newChecksum, "content v2"))
		ref, err = st.FileAtPath(ctx, sourceID, "docs/guide.md")
		require.NoError(t, err)
		assert.Equal(t, newChecksum, ref.Checksum)
	})

	t.Run("section matching", func(t *testing.T) {
		fileID, err := st.CreateFile(ctx, projectID, sourceID, "docs/match.md",
			map[string]any{"title": "Match"}, store.Checksum("match"), "match")
		require.NoError(t, err)

		embeddings := []store.SectionEmbedding{
			{
				FileID:    fileID,
				ProjectID: projectID,
				Content:   "Exact topic section.",
				Meta: &store.SectionMeta{
					LeadHeading: &section.Heading{Value: "Topic", Depth: 2, Slug: "topic"},
				},
				Embedding:  unitVector(0),
				TokenCount: 10,
			},
			{
				FileID:     fileID,
				ProjectID:  projectID,
				Content:    "Unrelated section.",
				Embedding:  unitVector(1),
				TokenCount: 10,
			},
		}
		require.NoError(t, st.InsertSectionEmbeddings(ctx, embeddings))

		matches, err := st.MatchSections(ctx, projectID, unitVector(0), 0.5, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)

		assert.Equal(t, "docs/match.md", matches[0].Path)
		assert.Equal(t, "Exact topic section.", matches[0].Content)
		assert.Equal(t, "api-upload", matches[0].SourceType)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
		require.NotNil(t, matches[0].Meta)
		assert.Equal(t, "topic", matches[0].Meta.LeadHeading.Slug)

		// Everything below the threshold stays out.
		matches, err = st.MatchSections(ctx, projectID, unitVector(2), 0.5, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("deleting a file removes its sections", func(t *testing.T) {
		fileID, err := st.CreateFile(ctx, projectID, sourceID, "docs/doomed.md",
			nil, store.Checksum("doomed"), "doomed")
		require.NoError(t, err)
		require.NoError(t, st.InsertSectionEmbedding(ctx, store.SectionEmbedding{
			FileID:     fileID,
			ProjectID:  projectID,
			Content:    "Doomed section.",
			Embedding:  unitVector(3),
			TokenCount: 5,
		}))

		require.NoError(t, st.DeleteFile(ctx, fileID))

		matches, err := st.MatchSections(ctx, projectID, unitVector(3), 0.5, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("token allowance", func(t *testing.T) {
		otherProject := uuid.New()

		info, err := st.TokenAllowance(ctx, otherProject)
		require.NoError(t, err)
		assert.Equal(t, store.DefaultTokenAllowance, info.TokenAllowance)
		assert.Equal(t, store.DefaultTokenAllowance, info.NumRemainingTokensOnPlan)

		require.NoError(t, st.SetTokenAllowance(ctx, otherProject, 100))
		otherSource, err := st.SourceForProject(ctx, otherProject, "api-upload")
		require.NoError(t, err)
		fileID, err := st.CreateFile(ctx, otherProject, otherSource, "a.md", nil, store.Checksum("a"), "a")
		require.NoError(t, err)
		require.NoError(t, st.UpdateFileTokenCount(ctx, fileID, 60))

		info, err = st.TokenAllowance(ctx, otherProject)
		require.NoError(t, err)
		assert.Equal(t, int64(100), info.TokenAllowance)
		assert.Equal(t, int64(60), info.UsedTokens)
		assert.Equal(t, int64(40), info.NumRemainingTokensOnPlan)

		require.NoError(t, st.UpdateFileTokenCount(ctx, fileID, 200))
		info, err = st.TokenAllowance(ctx, otherProject)
		require.NoError(t, err)
		assert.Equal(t, int64(0), info.NumRemainingTokensOnPlan)
	})

	t.Run("query records", func(t *testing.T) {
		embedding := unitVector(0)
		queryID, err := st.InsertQuery(ctx, projectID, "how do I install", "", &embedding,
			store.QueryStatusNone, nil)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, queryID)

		require.NoError(t, st.UpdateQuery(ctx, queryID, "Run the installer.", store.QueryStatusNone))
		require.NoError(t, st.RecordUsage(ctx, projectID, "text-embedding-ada-002", 25, "completions"))
	})
}
