package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func testHistory(t *testing.T) *History {
	t.Helper()
	h := NewHistory(testDB(t))
	h.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("MSK", 3*3600)) }
	return h
}

func TestHistory_AppendRecentRoundTrip(t *testing.T) {
	h := testHistory(t)
	ctx := context.Background()

	id, err := h.Append(ctx, 42, "Начало", strp("Начало"), strp("https://vk.com/video1"))
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := h.Recent(ctx, 42, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, int64(42), got[0].UserID)
	assert.Equal(t, "Начало", got[0].Query)
	require.NotNil(t, got[0].Title)
	assert.Equal(t, "Начало", *got[0].Title)
	require.NotNil(t, got[0].URL)
	assert.Equal(t, "https://vk.com/video1", *got[0].URL)
	assert.Equal(t, "2024-03-01T09:30:00.000000+00:00", got[0].Timestamp)
}

func TestHistory_AppendPreservesNulls(t *testing.T) {
	h := testHistory(t)
	ctx := context.Background()

	_, err := h.Append(ctx, 7, "unknown film", nil, nil)
	require.NoError(t, err)

	got, err := h.Recent(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Title)
	assert.Nil(t, got[0].URL)

	var title, url any
	require.NoError(t, h.DB.QueryRow(`SELECT title, url FROM history WHERE id = ?`, got[0].ID).Scan(&title, &url))
	assert.Nil(t, title)
	assert.Nil(t, url)
}

func TestHistory_RecentNewestFirstAndBounded(t *testing.T) {
	h := testHistory(t)
	ctx := context.Background()

	for _, q := range []string{"one", "two", "three", "four"} {
		_, err := h.Append(ctx, 1, q, nil, nil)
		require.NoError(t, err)
	}
	_, err := h.Append(ctx, 2, "other user", nil, nil)
	require.NoError(t, err)

	got, err := h.Recent(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "four", got[0].Query)
	assert.Equal(t, "three", got[1].Query)
	assert.Equal(t, "two", got[2].Query)
	assert.Greater(t, got[0].ID, got[1].ID)
	assert.Greater(t, got[1].ID, got[2].ID)
}

func TestHistory_RecentEmpty(t *testing.T) {
	h := testHistory(t)

	got, err := h.Recent(context.Background(), 999, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = h.Recent(context.Background(), 999, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistory_Frequency(t *testing.T) {
	h := testHistory(t)
	ctx := context.Background()

	// Inserted oldest first so the newest-first view is [a, b, a, c, a].
	for _, q := range []string{"a", "c", "a", "b", "a"} {
		_, err := h.Append(ctx, 5, q, nil, nil)
		require.NoError(t, err)
	}

	got, err := h.Frequency(ctx, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, []QueryCount{{"a", 3}, {"b", 1}, {"c", 1}}, got)

	got, err = h.Frequency(ctx, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, []QueryCount{{"a", 1}, {"b", 1}}, got)
}

func TestHistory_FrequencyEmpty(t *testing.T) {
	h := testHistory(t)

	got, err := h.Frequency(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistory_FailuresAreDistinguishable(t *testing.T) {
	h := testHistory(t)
	require.NoError(t, h.DB.Close())

	_, err := h.Append(context.Background(), 1, "q", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHistoryUnavailable))

	_, err = h.Recent(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrHistoryUnavailable)

	_, err = h.Frequency(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
}

func TestCountQueries_TiesKeepFirstSeenOrder(t *testing.T) {
	entries := []HistoryEntry{{Query: "x"}, {Query: "y"}, {Query: "z"}, {Query: "y"}}
	assert.Equal(t, []QueryCount{{"y", 2}, {"x", 1}, {"z", 1}}, countQueries(entries))
}
