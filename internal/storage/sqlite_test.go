package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/snipvault/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func mustCreate(t *testing.T, s *SQLiteStorage, title, content string) *types.Snippet {
	t.Helper()
	snippet := &types.Snippet{Title: title, Content: content, Language: "text"}
	require.NoError(t, s.CreateSnippet(context.Background(), snippet))
	return snippet
}

func vec(values ...float32) []float32 {
	return values
}

func TestNewSQLiteStorage_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	mustCreate(t, s, "persisted", "body")
	require.NoError(t, s.Close())

	// Reopening applies no migrations twice and keeps data
	s, err = NewSQLiteStorage(path)
	require.NoError(t, err)
	defer s.Close()

	snippets, err := s.ListSnippets(context.Background())
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "persisted", snippets[0].Title)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, ":memory:?"+foreignKeysParam, dsn(":memory:"))
	assert.Equal(t, "/tmp/vault.db?"+foreignKeysParam, dsn("/tmp/vault.db"))
	assert.Equal(t, "file:vault.db?cache=shared&"+foreignKeysParam, dsn("file:vault.db?cache=shared"))
}

func TestOpenDatabase_ForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	db, err := openDatabase(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	defer db.Close()

	// Hold two connections at once so the pool has to open a fresh one
	db.SetMaxOpenConns(2)
	first, err := db.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := db.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for _, conn := range []*sql.Conn{first, second} {
		var enabled int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
		assert.Equal(t, 1, enabled)
	}
}

func TestCreateAndGetSnippet(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	snippet := &types.Snippet{
		Title:       "Binary search",
		Content:     "func search(xs []int, x int) int",
		Language:    "go",
		Description: "classic halving search",
		Tags:        "algorithms,go",
	}
	require.NoError(t, s.CreateSnippet(ctx, snippet))
	assert.Greater(t, snippet.ID, int64(0))
	assert.False(t, snippet.CreatedAt.IsZero())

	got, err := s.GetSnippet(ctx, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, snippet.Title, got.Title)
	assert.Equal(t, snippet.Content, got.Content)
	assert.Equal(t, snippet.Language, got.Language)
	assert.Equal(t, snippet.Description, got.Description)
	assert.Equal(t, snippet.Tags, got.Tags)
}

func TestCreateSnippet_OptionalFieldsEmpty(t *testing.T) {
	s := setupTestDB(t)
	snippet := mustCreate(t, s, "no extras", "body")

	got, err := s.GetSnippet(context.Background(), snippet.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Description)
	assert.Empty(t, got.Tags)
}

func TestCreateSnippet_Invalid(t *testing.T) {
	s := setupTestDB(t)
	err := s.CreateSnippet(context.Background(), &types.Snippet{Title: "  ", Content: "x"})
	assert.ErrorIs(t, err, types.ErrEmptyTitle)
}

func TestGetSnippet_NotFound(t *testing.T) {
	s := setupTestDB(t)
	_, err := s.GetSnippet(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSnippet(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	snippet := mustCreate(t, s, "old", "old body")
	created := snippet.UpdatedAt

	time.Sleep(2 * time.Millisecond)
	snippet.Title = "new"
	snippet.Content = "new body"
	require.NoError(t, s.UpdateSnippet(ctx, snippet))
	assert.True(t, snippet.UpdatedAt.After(created))

	got, err := s.GetSnippet(ctx, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, "new body", got.Content)

	err = s.UpdateSnippet(ctx, &types.Snippet{ID: 999, Title: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSnippets_NewestFirst(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	first := mustCreate(t, s, "first", "a")
	second := mustCreate(t, s, "second", "b")
	third := mustCreate(t, s, "third", "c")

	time.Sleep(2 * time.Millisecond)
	first.Content = "touched"
	require.NoError(t, s.UpdateSnippet(ctx, first))

	snippets, err := s.ListSnippets(ctx)
	require.NoError(t, err)
	require.Len(t, snippets, 3)
	assert.Equal(t, first.ID, snippets[0].ID)
	assert.Equal(t, third.ID, snippets[1].ID)
	assert.Equal(t, second.ID, snippets[2].ID)
}

func TestSearchSnippets(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	mustCreate(t, s, "Binary Search", "halving")
	mustCreate(t, s, "Cake", "chocolate recipe")
	tagged := &types.Snippet{Title: "Quick sort", Content: "pivot", Tags: "algorithms"}
	require.NoError(t, s.CreateSnippet(ctx, tagged))
	described := &types.Snippet{Title: "Notes", Content: "misc", Description: "100% done_ish"}
	require.NoError(t, s.CreateSnippet(ctx, described))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"title case insensitive", "binary", []string{"Binary Search"}},
		{"content", "chocolate", []string{"Cake"}},
		{"tags", "algorithm", []string{"Quick sort"}},
		{"percent is literal", "100%", []string{"Notes"}},
		{"underscore is literal", "e_i", []string{"Notes"}},
		{"wildcard chars do not match everything", "%", []string{"Notes"}},
		{"no match", "zebra", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SearchSnippets(ctx, tt.query, 0)
			require.NoError(t, err)
			titles := make([]string, 0, len(got))
			for _, sn := range got {
				titles = append(titles, sn.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}

	limited, err := s.SearchSnippets(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	snippet := mustCreate(t, s, "t", "c")

	vector := make([]float32, 384)
	for i := range vector {
		vector[i] = float32(i)/384 - 0.5
	}
	require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{SnippetID: snippet.ID, Vector: vector, ModelVersion: "v1"}))

	got, err := s.GetEmbedding(ctx, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, vector, got.Vector)
	assert.Equal(t, "v1", got.ModelVersion)
}

func TestUpsertEmbedding_Overwrites(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	snippet := mustCreate(t, s, "t", "c")

	require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{SnippetID: snippet.ID, Vector: vec(1, 0), ModelVersion: "v1"}))
	require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{SnippetID: snippet.ID, Vector: vec(0, 1), ModelVersion: "v2"}))

	all, err := s.ListEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "at most one record per snippet")
	assert.Equal(t, vec(0, 1), all[0].Vector)
	assert.Equal(t, "v2", all[0].ModelVersion)
}

func TestUpsertEmbedding_UnknownSnippet(t *testing.T) {
	s := setupTestDB(t)
	err := s.UpsertEmbedding(context.Background(), &Embedding{SnippetID: 42, Vector: vec(1), ModelVersion: "v1"})
	assert.Error(t, err, "foreign key enforced")
}

func TestGetEmbedding_NotFound(t *testing.T) {
	s := setupTestDB(t)
	_, err := s.GetEmbedding(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSnippet_CascadesEmbedding(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	snippet := mustCreate(t, s, "t", "c")
	require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{SnippetID: snippet.ID, Vector: vec(1), ModelVersion: "v1"}))

	require.NoError(t, s.DeleteSnippet(ctx, snippet.ID))

	_, err := s.GetEmbedding(ctx, snippet.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSnippet(ctx, snippet.ID), ErrNotFound)
}

func TestDeleteEmbedding(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	snippet := mustCreate(t, s, "t", "c")
	require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{SnippetID: snippet.ID, Vector: vec(1), ModelVersion: "v1"}))

	require.NoError(t, s.DeleteEmbedding(ctx, snippet.ID))
	_, err := s.GetEmbedding(ctx, snippet.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Snippet itself survives
	_, err = s.GetSnippet(ctx, snippet.ID)
	assert.NoError(t, err)
}

func TestListSnippetsWithoutEmbedding(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	withCurrent := mustCreate(t, s, "current", "c")
	withStale := mustCreate(t, s, "stale", "c")
	without := mustCreate(t, s, "missing", "c")

	require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{SnippetID: withCurrent.ID, Vector: vec(1), ModelVersion: "v2"}))
	require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{SnippetID: withStale.ID, Vector: vec(1), ModelVersion: "v1"}))

	missing, err := s.ListSnippetsWithoutEmbedding(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, without.ID, missing[0].ID)
}

func TestGetStatus(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	a := mustCreate(t, s, "a", "c")
	b := mustCreate(t, s, "b", "c")
	mustCreate(t, s, "c", "c")

	require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{SnippetID: a.ID, Vector: vec(1), ModelVersion: "v2"}))
	require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{SnippetID: b.ID, Vector: vec(1), ModelVersion: "v1"}))

	status, err := s.GetStatus(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, 3, status.SnippetsCount)
	assert.Equal(t, 2, status.EmbeddingsCount)
	assert.Equal(t, 1, status.CurrentEmbeddings)
	assert.Equal(t, 1, status.StaleEmbeddings)
	assert.Equal(t, 1, status.MissingEmbeddings)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Greater(t, status.DatabaseSizeMB, 0.0)
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	snippet := &types.Snippet{Title: "in tx", Content: "body"}
	require.NoError(t, tx.CreateSnippet(ctx, snippet))
	require.NoError(t, tx.UpsertEmbedding(ctx, &Embedding{SnippetID: snippet.ID, Vector: vec(1, 2), ModelVersion: "v1"}))

	// Reads inside the transaction see its writes
	got, err := tx.GetEmbedding(ctx, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, vec(1, 2), got.Vector)
	require.NoError(t, tx.Commit())

	_, err = s.GetSnippet(ctx, snippet.ID)
	require.NoError(t, err)

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteSnippet(ctx, snippet.ID))
	require.NoError(t, tx.Rollback())

	_, err = s.GetSnippet(ctx, snippet.ID)
	assert.NoError(t, err, "rolled back delete leaves snippet")
}

func TestTransaction_Nested(t *testing.T) {
	s := setupTestDB(t)
	tx, err := s.BeginTx(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.BeginTx(context.Background())
	assert.ErrorIs(t, err, ErrNestedTx)
}
