package persist

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// SQLiteStore keeps a worksheet in the cells table of a SQLite database,
// one row per non-empty cell
type SQLiteStore struct {
	db     *sql.DB
	dsn    string
	logger logrus.FieldLogger
}

// NewSQLiteStore opens dsn and creates the cells table when missing
func NewSQLiteStore(ctx context.Context, dsn string, logger logrus.FieldLogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", dsn, err)
	}
	store := &SQLiteStore{db: db, dsn: dsn, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cells (
			col INTEGER NOT NULL,
			row INTEGER NOT NULL,
			raw TEXT NOT NULL,
			PRIMARY KEY (row, col)
		);
	`)
	if err != nil {
		return fmt.Errorf("sqlite schema: %w", err)
	}
	return nil
}

// Load reads every stored cell. an empty table is an empty worksheet.
func (s *SQLiteStore) Load(ctx context.Context) (*spreadsheet.Worksheet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT col, row, raw FROM cells ORDER BY row, col`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load: %w", err)
	}
	defer rows.Close()

	ws := spreadsheet.NewWorksheet()
	for rows.Next() {
		var addr spreadsheet.Address
		var raw string
		if err := rows.Scan(&addr.Column, &addr.Row, &raw); err != nil {
			return nil, fmt.Errorf("sqlite load: %w", err)
		}
		if err := ws.Set(addr, raw); err != nil {
			return nil, fmt.Errorf("sqlite load %s: %w", addr, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite load: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"dsn": s.dsn, "cells": ws.Count()}).Info("sheet loaded")
	return ws, nil
}

// Save replaces the table contents with ws in one transaction
func (s *SQLiteStore) Save(ctx context.Context, ws *spreadsheet.Worksheet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cells`); err != nil {
		return fmt.Errorf("sqlite save: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cells (col, row, raw) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite save: %w", err)
	}
	defer stmt.Close()

	for addr, raw := range ws.Cells() {
		if _, err := stmt.ExecContext(ctx, addr.Column, addr.Row, raw); err != nil {
			return fmt.Errorf("sqlite save %s: %w", addr, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite save: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"dsn": s.dsn, "cells": ws.Count()}).Info("sheet saved")
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) String() string {
	return "sqlite:" + s.dsn
}
