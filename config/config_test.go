package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/carbocation/variation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, variation.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, 10<<20, cfg.PreReadMaxSize)
	assert.Equal(t, variation.CompressionZStandard, cfg.Compression)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, 10, cfg.MinNumGenotypes)
	assert.Equal(t, 0.95, cfg.MaxMAF)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestFromEnvironment(t *testing.T) {
	t.Setenv("VARIATION_CHUNK_SIZE", "50")
	t.Setenv("VARIATION_COMPRESSION", "lz4")
	t.Setenv("VARIATION_BACKEND", "bolt")
	t.Setenv("VARIATION_MAX_MAF", "0.8")
	t.Setenv("VARIATION_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.ChunkSize)
	assert.Equal(t, variation.CompressionLZ4, cfg.Compression)
	assert.Equal(t, BackendBolt, cfg.Backend)
	assert.Equal(t, 0.8, cfg.MaxMAF)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.Logger().Enabled(context.Background(), slog.LevelDebug))
}

func TestInvalidEnvironment(t *testing.T) {
	for key, value := range map[string]string{
		"VARIATION_BACKEND":     "postgres",
		"VARIATION_COMPRESSION": "brotli",
		"VARIATION_CHUNK_SIZE":  "0",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestOpenStore(t *testing.T) {
	for _, backend := range []string{"sqlite", "bolt"} {
		t.Run(backend, func(t *testing.T) {
			t.Setenv("VARIATION_BACKEND", backend)
			t.Setenv("VARIATION_COMPRESSION", "none")
			cfg, err := Load()
			require.NoError(t, err)

			s, err := cfg.OpenStore(filepath.Join(t.TempDir(), "store"), variation.ModeWrite)
			require.NoError(t, err)
			assert.Equal(t, variation.CompressionDisabled, s.Compression())
			assert.Equal(t, 0, s.NumVariations())
			require.NoError(t, s.Close())
		})
	}
}
