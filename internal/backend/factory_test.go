package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvitto/internal/config"
	"kvitto/internal/core"
	"kvitto/internal/source/kivra"
	"kvitto/internal/source/memory"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = FromAppConfig(&config.Config{SourceBackend: "postgres"})
	assert.ErrorIs(t, err, core.ErrConfig)

	cfg, err := FromAppConfig(&config.Config{
		SourceBackend: config.SourceKivra,
		BaseURL:       "https://example.test/graphql",
		APIToken:      "tok",
		ActorKey:      "actor",
	})
	require.NoError(t, err)
	assert.Equal(t, KivraBackend, cfg.Type)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, "actor", cfg.ActorKey)
}

func TestCreateSource(t *testing.T) {
	f := NewFactory(nil)

	_, err := f.CreateSource(context.Background(), Config{Type: KivraBackend})
	assert.ErrorIs(t, err, core.ErrConfig)

	res, err := f.CreateSource(context.Background(), Config{Type: KivraBackend, Token: "t", ActorKey: "a"})
	require.NoError(t, err)
	assert.IsType(t, &kivra.Client{}, res.Source)

	dir := t.TempDir()
	seed := `{"shop":[{"key":"k1","store":{"name":"ICA"},"purchaseDate":"2024-01-05T10:00:00Z","totalAmount":{"amount":12.5}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "receipts.json"), []byte(seed), 0o644))

	res, err = f.CreateSource(context.Background(), Config{Type: MemoryBackend, SeedDir: dir})
	require.NoError(t, err)
	require.IsType(t, &memory.Source{}, res.Source)
	page, err := res.Source.ListReceipts(context.Background(), "shop", 10, 0)
	require.NoError(t, err)
	assert.Len(t, page.Receipts, 1)
}

func TestBackendTypes(t *testing.T) {
	assert.Equal(t, []string{"kivra", "memory"}, GetBackendTypeStrings())
	assert.False(t, BackendType("sheets").IsValid())
}

func TestCreateSourceRejectsUnknownType(t *testing.T) {
	_, err := NewFactory(nil).CreateSource(context.Background(), Config{Type: "sheets"})
	require.ErrorIs(t, err, core.ErrConfig)
	assert.Contains(t, err.Error(), "want one of kivra, memory")
}
