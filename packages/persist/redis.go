package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/internal/config"
	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

const redisDialTimeout = 5 * time.Second

// RedisStore keeps a worksheet in one Redis hash: field is the cell
// address ("B7"), value the raw text
type RedisStore struct {
	rc     *redis.Client
	key    string
	logger logrus.FieldLogger
}

// NewRedisStore connects to the server in conf and checks it responds
func NewRedisStore(ctx context.Context, conf *config.Redis, logger logrus.FieldLogger) (*RedisStore, error) {
	if conf == nil || conf.Addr == "" {
		return nil, errors.New("redis configuration is nil or empty")
	}
	rc := redis.NewClient(&redis.Options{
		Addr:        conf.Addr,
		Password:    conf.Password,
		DB:          conf.DB,
		DialTimeout: redisDialTimeout,
	})

	timeout, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := rc.Ping(timeout).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("redis connect error: %w", err)
	}
	return NewRedisStoreFromClient(rc, conf.Key, logger), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(rc *redis.Client, key string, logger logrus.FieldLogger) *RedisStore {
	return &RedisStore{rc: rc, key: key, logger: logger}
}

// Load reads the hash. a missing key is ErrNotFound.
func (s *RedisStore) Load(ctx context.Context) (*spreadsheet.Worksheet, error) {
	fields, err := s.rc.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", s.key, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: redis key %s", ErrNotFound, s.key)
	}

	ws := spreadsheet.NewWorksheet()
	for ref, raw := range fields {
		addr, err := spreadsheet.ParseAddress(ref)
		if err != nil {
			return nil, fmt.Errorf("redis load %s: field %q: %w", s.key, ref, err)
		}
		if err := ws.Set(addr, raw); err != nil {
			return nil, fmt.Errorf("redis load %s: %w", s.key, err)
		}
	}

	s.logger.WithFields(logrus.Fields{"key": s.key, "cells": ws.Count()}).Info("sheet loaded")
	return ws, nil
}

// Save replaces the hash with the cells of ws atomically
func (s *RedisStore) Save(ctx context.Context, ws *spreadsheet.Worksheet) error {
	values := make(map[string]any, ws.Count())
	for addr, raw := range ws.Cells() {
		values[addr.String()] = raw
	}

	_, err := s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", s.key, err)
	}

	s.logger.WithFields(logrus.Fields{"key": s.key, "cells": len(values)}).Info("sheet saved")
	return nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.rc.Close()
}

func (s *RedisStore) String() string {
	return "redis:" + s.key
}
