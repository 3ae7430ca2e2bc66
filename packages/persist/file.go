package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/packages/s2v"
	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
	"github.com/vogtb/go-spreadsheet/packages/xlsx"
)

// FileStore keeps a worksheet in a single file
type FileStore struct {
	path   string
	format string
	load   func(path string) (*spreadsheet.Worksheet, error)
	save   func(path string, ws *spreadsheet.Worksheet) error
	logger logrus.FieldLogger
}

// NewS2VStore stores the worksheet as semicolon separated values
func NewS2VStore(path string, logger logrus.FieldLogger) *FileStore {
	return &FileStore{
		path:   path,
		format: "s2v",
		load:   s2v.ReadFile,
		save:   s2v.WriteFile,
		logger: logger,
	}
}

// NewXLSXStore stores the worksheet as the first sheet of an Excel
// workbook. formulas that cannot be converted on load keep their cached
// value and are logged.
func NewXLSXStore(path string, logger logrus.FieldLogger) *FileStore {
	return &FileStore{
		path:   path,
		format: "xlsx",
		load: func(path string) (*spreadsheet.Worksheet, error) {
			result, err := xlsx.ImportFile(path, xlsx.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			return result.Worksheet, nil
		},
		save: func(path string, ws *spreadsheet.Worksheet) error {
			return xlsx.ExportFile(path, ws)
		},
		logger: logger,
	}
}

// Load reads the file. a missing file is ErrNotFound.
func (s *FileStore) Load(ctx context.Context) (*spreadsheet.Worksheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ws, err := s.load(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	s.logger.WithFields(logrus.Fields{
		"path":   s.path,
		"format": s.format,
		"cells":  ws.Count(),
	}).Info("sheet loaded")
	return ws, nil
}

// Save writes the file
func (s *FileStore) Save(ctx context.Context, ws *spreadsheet.Worksheet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.save(s.path, ws); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	s.logger.WithFields(logrus.Fields{
		"path":   s.path,
		"format": s.format,
		"cells":  ws.Count(),
	}).Info("sheet saved")
	return nil
}

// Path returns the file path
func (s *FileStore) Path() string {
	return s.path
}

// Close is a no-op; files are opened per call
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) String() string {
	return s.path
}
