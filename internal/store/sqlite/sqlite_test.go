package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spigell/cv-screener/internal/store"
	"github.com/spigell/cv-screener/internal/store/storetest"
)

func openTemp(t *testing.T) store.Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, openTemp)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cv.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// reopening applies the schema idempotently
	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestApplicationRequiresExistingPair(t *testing.T) {
	s := openTemp(t)
	_, err := s.FindOrCreateApplication(context.Background(), 1, 1)
	require.Error(t, err, "foreign keys must reject unknown job and candidate")
}
