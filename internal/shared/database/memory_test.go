package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayankbot01/localllm-gateway/internal/shared/models"
)

func newTestKey(t *testing.T, m *Memory) *models.APIKey {
	t.Helper()
	key, err := m.CreateKey(context.Background(), "hash-abc", "test", nil, 20, 1_000_000)
	require.NoError(t, err)
	return key
}

func TestFindKeyByHash(t *testing.T) {
	m := NewMemory()
	key := newTestKey(t, m)

	found, err := m.FindKeyByHash(context.Background(), "hash-abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, key.ID, found.ID)

	missing, err := m.FindKeyByHash(context.Background(), "hash-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindKeyByHash_InactiveNeverAuthenticates(t *testing.T) {
	m := NewMemory()
	key := newTestKey(t, m)

	revoked, err := m.DeactivateKey(context.Background(), key.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	found, err := m.FindKeyByHash(context.Background(), "hash-abc")
	require.NoError(t, err)
	assert.Nil(t, found)

	// Revocation is not repeatable and unknown ids report false.
	again, err := m.DeactivateKey(context.Background(), key.ID)
	require.NoError(t, err)
	assert.False(t, again)
	unknown, err := m.DeactivateKey(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, unknown)
}

func TestCreateKey_RejectsDuplicateHash(t *testing.T) {
	m := NewMemory()
	newTestKey(t, m)

	_, err := m.CreateKey(context.Background(), "hash-abc", "dupe", nil, 20, 1000)
	assert.Error(t, err)
}

func TestIncrementUsage_NoLostUpdates(t *testing.T) {
	m := NewMemory()
	key := newTestKey(t, m)

	const workers = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.IncrementUsage(context.Background(), key.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, ok := m.GetKey(key.ID)
	require.True(t, ok)
	assert.Equal(t, int64(workers), got.TokensUsedMonth)
}

func TestIncrementUsage_CycleRollover(t *testing.T) {
	m := NewMemory()
	key := newTestKey(t, m)

	require.NoError(t, m.IncrementUsage(context.Background(), key.ID, 500))

	// Move the clock past the reset anchor.
	resetAt := key.MonthResetAt
	m.Now = func() time.Time { return resetAt.Add(time.Hour) }

	require.NoError(t, m.IncrementUsage(context.Background(), key.ID, 42))

	got, ok := m.GetKey(key.ID)
	require.True(t, ok)
	assert.Equal(t, int64(42), got.TokensUsedMonth, "counter replaced, not added")
	assert.Equal(t, resetAt.AddDate(0, 1, 0), got.MonthResetAt, "anchor advances one month from its prior value")
}

func TestIncrementUsage_RolloverBoundaryIsInclusive(t *testing.T) {
	m := NewMemory()
	key := newTestKey(t, m)
	require.NoError(t, m.IncrementUsage(context.Background(), key.ID, 10))

	// now == reset anchor counts as a new cycle.
	resetAt := key.MonthResetAt
	m.Now = func() time.Time { return resetAt }

	require.NoError(t, m.IncrementUsage(context.Background(), key.ID, 7))

	got, _ := m.GetKey(key.ID)
	assert.Equal(t, int64(7), got.TokensUsedMonth)
}

func TestMarkLastUsed(t *testing.T) {
	m := NewMemory()
	key := newTestKey(t, m)

	require.Nil(t, key.LastUsedAt)
	require.NoError(t, m.MarkLastUsed(context.Background(), key.ID))

	got, _ := m.GetKey(key.ID)
	assert.NotNil(t, got.LastUsedAt)
}

func TestListKeys_NewestFirstWithoutHashes(t *testing.T) {
	m := NewMemory()
	m.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err := m.CreateKey(context.Background(), "hash-1", "older", nil, 20, 1000)
	require.NoError(t, err)
	m.Now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	_, err = m.CreateKey(context.Background(), "hash-2", "newer", nil, 20, 1000)
	require.NoError(t, err)

	summaries, err := m.ListKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "newer", summaries[0].Label)
	assert.Equal(t, "older", summaries[1].Label)
}

func TestKeyUsage_RecentRequests(t *testing.T) {
	m := NewMemory()
	key := newTestKey(t, m)

	for i := 0; i < 25; i++ {
		require.NoError(t, m.InsertUsageLog(context.Background(), &models.UsageLog{
			APIKeyID:    key.ID,
			Model:       "qwen2.5:7b",
			TotalTokens: 10,
			Endpoint:    "/v1/chat/completions",
		}))
	}
	require.NoError(t, m.IncrementUsage(context.Background(), key.ID, 250))

	stats, err := m.KeyUsage(context.Background(), key.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), stats.TokensUsedThisMonth)
	assert.Len(t, stats.RecentRequests, 20, "history is capped at 20 entries")
}
