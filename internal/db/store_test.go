package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	store, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*SQLite)
	assert.True(t, ok)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpen_Unsupported(t *testing.T) {
	for _, url := range []string{"", "mysql://localhost/db", "sqlite://"} {
		store, err := Open(context.Background(), url)
		assert.Error(t, err, "url=%q", url)
		assert.Nil(t, store)
	}
}
