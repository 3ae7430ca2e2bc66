// Package persist loads and saves whole worksheets: as s2v or xlsx files,
// in a SQLite table or in a Redis hash.
package persist

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/internal/config"
	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// ErrNotFound is returned by Load when nothing has been saved yet
var ErrNotFound = errors.New("persist: sheet not found")

// Store loads and saves snapshots of a worksheet
type Store interface {
	// Load returns the saved worksheet
	Load(ctx context.Context) (*spreadsheet.Worksheet, error)
	// Save replaces the saved worksheet with ws
	Save(ctx context.Context, ws *spreadsheet.Worksheet) error
	// Close releases connections and handles
	Close() error
	// String describes where the sheet is kept, for messages
	String() string
}

// LoadOrEmpty loads from s and returns an empty worksheet when nothing has
// been saved yet
func LoadOrEmpty(ctx context.Context, s Store) (*spreadsheet.Worksheet, error) {
	ws, err := s.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return spreadsheet.NewWorksheet(), nil
	}
	return ws, err
}

// Open creates the store for path according to c: its configured format,
// or one inferred from the extension of path. path is ignored by the redis
// store; for sqlite it is the database file unless a DSN is configured.
func Open(ctx context.Context, c *config.Storage, path string, logger logrus.FieldLogger) (Store, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if path == "" {
		path = c.Path
	}

	switch format := c.FormatFor(path); format {
	case config.FormatS2V:
		return NewS2VStore(path, logger), nil
	case config.FormatXLSX:
		return NewXLSXStore(path, logger), nil
	case config.FormatSQLite:
		dsn := c.SQLite.DSN
		if dsn == "" {
			dsn = path
		}
		return NewSQLiteStore(ctx, dsn, logger)
	case config.FormatRedis:
		return NewRedisStore(ctx, c.Redis, logger)
	default:
		return nil, fmt.Errorf("persist: unknown storage format %q", format)
	}
}
