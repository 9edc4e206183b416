package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MATLOG_ENV", "production")
	t.Setenv("MATLOG_DB_PATH", "")
	t.Setenv("MATLOG_KV_PATH", "")
	t.Setenv("MATLOG_SEED_TAGS", "")
	t.Setenv("MATLOG_RELATED_LIMIT", "")
	t.Setenv("MATLOG_LOG_MODE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "matlog.db", cfg.DBPath)
	assert.Equal(t, "matlog-kv.db", cfg.KVPath)
	assert.Equal(t, "production", cfg.LogMode)
	assert.True(t, cfg.SeedTags)
	assert.Equal(t, 5, cfg.RelatedLimit)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MATLOG_ENV", "production")
	t.Setenv("MATLOG_DB_PATH", "/data/log.db")
	t.Setenv("MATLOG_SEED_TAGS", "false")
	t.Setenv("MATLOG_RELATED_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/log.db", cfg.DBPath)
	assert.False(t, cfg.SeedTags)
	assert.Equal(t, 5, cfg.RelatedLimit)
}
