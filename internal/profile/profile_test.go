package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/matlog/internal/kvstore"
)

func TestLoad_Default(t *testing.T) {
	p, err := Load(context.Background(), kvstore.NewMemory())
	require.NoError(t, err)
	assert.Equal(t, &Profile{Belt: White}, p)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()

	require.NoError(t, Save(ctx, kv, &Profile{Name: "  Alex ", Belt: "Purple", Stripes: 2}))

	p, err := Load(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, &Profile{Name: "Alex", Belt: Purple, Stripes: 2}, p)
}

func TestSave_Validation(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()

	assert.ErrorIs(t, Save(ctx, kv, nil), ErrInvalidProfile)
	assert.ErrorIs(t, Save(ctx, kv, &Profile{Belt: "green"}), ErrInvalidProfile)
	assert.ErrorIs(t, Save(ctx, kv, &Profile{Belt: Blue, Stripes: 5}), ErrInvalidProfile)
	assert.ErrorIs(t, Save(ctx, kv, &Profile{Belt: Blue, Stripes: -1}), ErrInvalidProfile)

	_, ok, err := kv.Get(ctx, Key)
	require.NoError(t, err)
	assert.False(t, ok, "rejected profiles are not written")
}

func TestLoad_NormalizesStoredData(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, Key, `{"name":"Sam","belt":"rainbow","stripes":9}`))

	p, err := Load(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, White, p.Belt)
	assert.Equal(t, MaxStripes, p.Stripes)
}

func TestLoad_CorruptBlob(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, Key, `{`))

	_, err := Load(ctx, kv)
	assert.Error(t, err)
}
