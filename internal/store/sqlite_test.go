package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	var count int
	err = store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 2, "Expected documents and activity tables")
}

func TestSaveAndLoad(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	in := sample{Name: "harvey", Count: 3, Tags: []string{"a", "b"}}
	require.NoError(t, store.Save(ctx, KeyCases, in))

	var out sample
	ok := store.Load(ctx, KeyCases, &out)
	require.True(t, ok)
	assert.Equal(t, in, out)

	// Overwrite replaces the whole document
	require.NoError(t, store.Save(ctx, KeyCases, sample{Name: "other"}))
	var again sample
	require.True(t, store.Load(ctx, KeyCases, &again))
	assert.Equal(t, "other", again.Name)
	assert.Empty(t, again.Tags)
}

func TestLoadMissingKey(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	out := sample{Name: "default"}
	ok := store.Load(context.Background(), "does_not_exist", &out)
	assert.False(t, ok)
	assert.Equal(t, "default", out.Name)
}

func TestLoadMalformedLeavesDestinationUntouched(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	cases := map[string]string{
		"truncated":  `{"name": "x", "count": `,
		"wrong type": `{"name": "partially", "count": "three"}`,
		"not json":   `definitely not json`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.PutRaw(ctx, KeySharedData, raw))
			out := sample{Name: "default", Count: 7}
			ok := store.Load(ctx, KeySharedData, &out)
			assert.False(t, ok)
			assert.Equal(t, sample{Name: "default", Count: 7}, out)
		})
	}
}

func TestDeleteAndReset(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, KeyUserSession, map[string]string{"name": "ana"}))
	require.NoError(t, store.Save(ctx, KeyAIPrompt, "prompt"))

	require.NoError(t, store.Delete(ctx, KeyUserSession))
	var session map[string]string
	assert.False(t, store.Load(ctx, KeyUserSession, &session))

	// Deleting twice is fine
	require.NoError(t, store.Delete(ctx, KeyUserSession))

	require.NoError(t, store.RecordActivity(ctx, ActivityEntry{Action: "x", Actor: "Sistema"}))
	require.NoError(t, store.Reset(ctx))

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	entries, err := store.ListActivity(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "harvey.db")

	s1, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Save(context.Background(), KeyAIPrompt, "Você é Harvey"))
	require.NoError(t, s1.Close())

	s2, err := NewStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	var prompt string
	require.True(t, s2.Load(context.Background(), KeyAIPrompt, &prompt))
	assert.Equal(t, "Você é Harvey", prompt)
}

func TestListDocuments(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, KeyReportTemplates, map[string]string{}))
	require.NoError(t, store.Save(ctx, KeyAPIConfig, map[string]string{"model": "gpt-3.5-turbo"}))

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, KeyAPIConfig, docs[0].Key)
	assert.Equal(t, KeyReportTemplates, docs[1].Key)
	assert.False(t, docs[0].UpdatedAt.IsZero())
}
