package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKnowledge = `| title | keywords | answer |
|-------|----------|--------|
| Withdrawals | withdraw, payout, cash out | Withdrawals are processed within 2 business days. |
| Leverage limits | leverage, margin | Retail accounts are limited to 1:30 leverage. |
| Deposit fees | deposit, fee | We charge no deposit fees. |
| | orphan | Row without a title |
not a table row
| Broken row |
`

func TestParseKnowledgeTable(t *testing.T) {
	articles := ParseKnowledgeTable(sampleKnowledge)
	require.Len(t, articles, 3)
	assert.Equal(t, "Withdrawals", articles[0].Title)
	assert.Equal(t, []string{"withdraw", "payout", "cash out"}, articles[0].Keywords)
	assert.Equal(t, "Retail accounts are limited to 1:30 leverage.", articles[1].Answer)
}

func writeKnowledge(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleKnowledge), 0o644))
	return path
}

func TestIngestAndSearch(t *testing.T) {
	k := NewKnowledgeService(newTestStore(t))
	ctx := context.Background()

	n, err := k.IngestFile(ctx, writeKnowledge(t))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := k.Search(ctx, "How long does it take to cash out?", 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Withdrawals", results[0].Title)

	results, err = k.Search(ctx, "what are the LEVERAGE limits", 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Leverage limits", results[0].Title)
	assert.Equal(t, 4, results[0].Score)

	results, err = k.Search(ctx, "deposit withdraw", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = k.Search(ctx, "weather tomorrow", 0)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	results, err = k.Search(ctx, "  ?! ", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIngestMissingFile(t *testing.T) {
	k := NewKnowledgeService(newTestStore(t))
	_, err := k.IngestFile(context.Background(), filepath.Join(t.TempDir(), "absent.md"))
	assert.Error(t, err)
}
