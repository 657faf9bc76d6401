package storage

import (
	"collabhub_backend/internal/config"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderRoundTrip(t *testing.T) {
	p, err := New(&config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	url, err := PutBytes(ctx, p, "attempts/1/report.json", []byte(`{"score":80}`), "application/json")
	require.NoError(t, err)
	assert.Contains(t, url, "attempts")

	data, err := p.Get(ctx, "attempts/1/report.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":80}`, string(data))

	require.NoError(t, p.Delete(ctx, "attempts/1/report.json"))
}

func TestLocalProviderRejectsTraversal(t *testing.T) {
	p := &LocalProvider{Root: t.TempDir()}
	_, err := PutBytes(context.Background(), p, "../escape.json", []byte("x"), "application/json")
	assert.Error(t, err)
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(&config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}
