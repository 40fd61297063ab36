package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1000, cfg.MaxChunkSize)
	assert.False(t, cfg.ChunkCompression)
}

func TestLoadConfigChunkCompression(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CHUNK_COMPRESSION", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.ChunkCompression)
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsOverlapLargerThanChunk(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MAX_CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "200")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSplitSeparatorsExpandsNewlines(t *testing.T) {
	seps := splitSeparators(`\n\n|\n| |`)
	assert.Equal(t, []string{"\n\n", "\n", " ", ""}, seps)
}
