package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocations_UsageThenRecency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	clock := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	require.NoError(t, s.UpsertLocation(ctx, "Gracie Barra"))
	require.NoError(t, s.UpsertLocation(ctx, "Alliance"))
	require.NoError(t, s.UpsertLocation(ctx, "Gracie Barra"))
	require.NoError(t, s.UpsertLocation(ctx, "Garage"))
	require.NoError(t, s.UpsertLocation(ctx, ""))

	all, err := s.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Gracie Barra", all[0].Name)
	assert.Equal(t, 2, all[0].UsageCount)
	// Equal usage: most recent first.
	assert.Equal(t, "Garage", all[1].Name)
	assert.Equal(t, "Alliance", all[2].Name)
	assert.True(t, all[1].LastUsed.After(all[2].LastUsed))

	found, err := s.SearchLocations(ctx, "ga", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Garage", found[0].Name)

	gr, err := s.SearchLocations(ctx, "g", 1)
	require.NoError(t, err)
	require.Len(t, gr, 1)
	assert.Equal(t, "Gracie Barra", gr[0].Name)
}
