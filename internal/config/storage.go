package config

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// storage formats
const (
	FormatS2V    = "s2v"
	FormatXLSX   = "xlsx"
	FormatSQLite = "sqlite"
	FormatRedis  = "redis"
)

var storageFormats = []string{FormatS2V, FormatXLSX, FormatSQLite, FormatRedis}

// IsStorageFormat reports whether name is a supported storage format
func IsStorageFormat(name string) bool {
	return slices.Contains(storageFormats, name)
}

// Storage storage config struct
type Storage struct {
	Format string
	Path   string
	SQLite *SQLite
	Redis  *Redis
}

// SQLite sqlite config struct
type SQLite struct {
	DSN string
}

// Redis redis config struct
type Redis struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

func getStorageConfig(v *viper.Viper) *Storage {
	return &Storage{
		Format: v.GetString("storage.format"),
		Path:   v.GetString("storage.path"),
		SQLite: &SQLite{
			DSN: v.GetString("storage.sqlite.dsn"),
		},
		Redis: &Redis{
			Addr:     v.GetString("storage.redis.addr"),
			Password: v.GetString("storage.redis.password"),
			DB:       v.GetInt("storage.redis.db"),
			Key:      v.GetString("storage.redis.key"),
		},
	}
}

// FormatFor returns the storage format for path: the configured format if
// one is set, otherwise one inferred from the file extension (s2v when the
// extension is not recognised)
func (s *Storage) FormatFor(path string) string {
	if s.Format != "" {
		return s.Format
	}
	return FormatFromPath(path)
}

// FormatFromPath infers a storage format from a file extension
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	default:
		return FormatS2V
	}
}
