package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadsheet/internal/config"
	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

func sample(t *testing.T) *spreadsheet.Worksheet {
	t.Helper()
	ws := spreadsheet.NewWorksheet()
	for ref, raw := range map[string]string{
		"A1": "1",
		"A2": "2",
		"B1": "total",
		"B2": "=SUM(A1:A2)",
		"C5": "=B2*2",
	} {
		addr, err := spreadsheet.ParseAddress(ref)
		require.NoError(t, err)
		require.NoError(t, ws.Set(addr, raw))
	}
	return ws
}

func collect(ws *spreadsheet.Worksheet) map[string]string {
	cells := make(map[string]string)
	for addr, raw := range ws.Cells() {
		cells[addr.String()] = raw
	}
	return cells
}

func roundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	ws := sample(t)

	require.NoError(t, store.Save(ctx, ws))
	back, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, collect(ws), collect(back))

	v, err := spreadsheet.EvaluateFormula("C5", back)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	// a second save replaces rather than merges
	smaller := spreadsheet.NewWorksheet()
	require.NoError(t, smaller.Set(spreadsheet.Address{Column: 1, Row: 1}, "42"))
	require.NoError(t, store.Save(ctx, smaller))
	back, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A1": "42"}, collect(back))
}

func TestOpenPicksStoreByExtension(t *testing.T) {
	dir := t.TempDir()
	storage := &config.Storage{Path: "sheet.s2v", SQLite: &config.SQLite{}, Redis: &config.Redis{}}

	tests := []struct {
		path     string
		expected string
	}{
		{filepath.Join(dir, "a.s2v"), "*persist.FileStore"},
		{filepath.Join(dir, "a.txt"), "*persist.FileStore"},
		{filepath.Join(dir, "a.xlsx"), "*persist.FileStore"},
		{filepath.Join(dir, "a.db"), "*persist.SQLiteStore"},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			store, err := Open(context.Background(), storage, tt.path, nil)
			require.NoError(t, err)
			defer store.Close()
			assert.Equal(t, tt.expected, fmt.Sprintf("%T", store))
		})
	}
}

func TestOpenUnknownFormat(t *testing.T) {
	storage := &config.Storage{Format: "csv", SQLite: &config.SQLite{}, Redis: &config.Redis{}}
	_, err := Open(context.Background(), storage, "x", nil)
	assert.ErrorContains(t, err, `unknown storage format "csv"`)
}

func TestOpenDefaultsToConfiguredPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configured.s2v")
	storage := &config.Storage{Path: path, SQLite: &config.SQLite{}, Redis: &config.Redis{}}

	store, err := Open(context.Background(), storage, "", nil)
	require.NoError(t, err)
	assert.Equal(t, path, store.String())
}

func TestS2VStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.s2v")
	roundTrip(t, NewS2VStore(path, logrus.New()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(data))
}

func TestXLSXStore(t *testing.T) {
	roundTrip(t, NewXLSXStore(filepath.Join(t.TempDir(), "sheet.xlsx"), logrus.New()))
}

func TestFileStoreNotFound(t *testing.T) {
	dir := t.TempDir()
	for _, store := range []Store{
		NewS2VStore(filepath.Join(dir, "missing.s2v"), logrus.New()),
		NewXLSXStore(filepath.Join(dir, "missing.xlsx"), logrus.New()),
	} {
		t.Run(store.String(), func(t *testing.T) {
			_, err := store.Load(context.Background())
			assert.ErrorIs(t, err, ErrNotFound)

			ws, err := LoadOrEmpty(context.Background(), store)
			require.NoError(t, err)
			assert.Zero(t, ws.Count())
		})
	}
}

func TestFileStoreLogs(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := NewS2VStore(filepath.Join(t.TempDir(), "sheet.s2v"), logger)

	require.NoError(t, store.Save(context.Background(), sample(t)))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "sheet saved", entry.Message)
	assert.Equal(t, 5, entry.Data["cells"])
	assert.Equal(t, "s2v", entry.Data["format"])
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	store := NewS2VStore(filepath.Join(t.TempDir(), "sheet.s2v"), logrus.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Save(ctx, sample(t)), context.Canceled)
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.db")
	store, err := NewSQLiteStore(context.Background(), path, logrus.New())
	require.NoError(t, err)
	defer store.Close()

	ws, err := LoadOrEmpty(context.Background(), store)
	require.NoError(t, err)
	assert.Zero(t, ws.Count(), "a new database is an empty sheet")

	roundTrip(t, store)
	assert.Equal(t, "sqlite:"+path, store.String())
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.sqlite")
	ctx := context.Background()

	first, err := NewSQLiteStore(ctx, path, logrus.New())
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, sample(t)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(ctx, path, logrus.New())
	require.NoError(t, err)
	defer second.Close()
	back, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, collect(sample(t)), collect(back))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	key := "spreadsheet-test:" + t.Name()

	store, err := NewRedisStore(ctx, &config.Redis{Addr: addr, Key: key}, logrus.New())
	require.NoError(t, err)
	defer store.Close()
	t.Cleanup(func() {
		rc := redis.NewClient(&redis.Options{Addr: addr})
		defer rc.Close()
		rc.Del(context.Background(), key)
	})

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	roundTrip(t, store)
}

func TestRedisStoreRequiresAddress(t *testing.T) {
	_, err := NewRedisStore(context.Background(), &config.Redis{}, logrus.New())
	assert.Error(t, err)
	_, err = NewRedisStore(context.Background(), nil, logrus.New())
	assert.Error(t, err)
}
