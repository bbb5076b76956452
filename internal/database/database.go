package database

import (
	"context"
	"entryready/config"
	logg "entryready/internal/logger"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type CacheClient valkey.Client

type Cache struct {
	Requirements CacheClient
	Events       CacheClient
}

type DB struct {
	SQL   *gorm.DB
	Cache Cache
	log   logg.Logger
}

func New(config config.Config) (DB, error) {
	log := logg.New("database").Function("New")

	log.Info("Initializing database")
	db := &DB{log: log}

	err := db.initializeDB(config)
	if err != nil {
		return DB{}, log.Err("failed to initialize database", err)
	}

	err = db.initializeCacheDB(config)
	if err != nil {
		return DB{}, log.Err("failed to initialize cache database", err)
	}

	return *db, nil
}

func (s *DB) initializeDB(config config.Config) error {
	gormConfig := &gorm.Config{
		Logger:                                   logg.NewGormLogger(logg.GormLevel(config.LogLevel), time.Second),
		PrepareStmt:                              false,
		DisableForeignKeyConstraintWhenMigrating: false,
		CreateBatchSize:                          100,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	return s.initializeSQLiteDB(gormConfig, config)
}

func (s *DB) initializeSQLiteDB(gormConfig *gorm.Config, config config.Config) error {
	log := s.log.Function("initializeSQLiteDB")

	dbPath := config.DatabaseDbPath
	if dbPath == "" {
		return log.Error("database path is empty", "dbPath", dbPath)
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		log.Info("Creating database directory", "dir", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return log.Err("failed to create database directory", err, "dir", dir)
		}
	}

	log.Info("Connecting with GORM", "dbPath", dbPath)
	db, err := gorm.Open(sqlite.Open(dsn(dbPath)), gormConfig)
	if err != nil {
		return log.Err("failed to open database with GORM", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return log.Err("failed to get database from GORM", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return log.Err("failed to ping database through GORM", err)
	}

	log.Info("Successfully connected with GORM")
	// One connection serializes writers; the invariant transactions rely on it.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s.SQL = db

	return nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}

func (s *DB) initializeCacheDB(config config.Config) error {
	log := s.log.Function("initializeCacheDB")

	if config.DatabaseCacheAddress == "" {
		log.Info("No cache address configured, shared cache disabled")
		return nil
	}

	address := fmt.Sprintf("%s:%d", config.DatabaseCacheAddress, config.DatabaseCachePort)
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{address},
		SelectDB:    0,
	})
	if err != nil {
		return log.Err("failed to create requirements cache client", err, "address", address)
	}
	s.Cache.Requirements = client

	events, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{address},
		SelectDB:    0,
	})
	if err != nil {
		client.Close()
		s.Cache.Requirements = nil
		return log.Err("failed to create events cache client", err, "address", address)
	}
	s.Cache.Events = events

	log.Info("Connected to cache", "address", address)

	return nil
}

func (s *DB) Close() (err error) {
	if s.SQL != nil {
		sqlDB, err := s.SQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				_ = s.log.Err("failed to close database", err)
			}
		}
	}

	if s.Cache.Requirements != nil {
		s.Cache.Requirements.Close()
	}

	if s.Cache.Events != nil {
		s.Cache.Events.Close()
	}

	return
}

func (s *DB) SQLWithContext(ctx context.Context) *gorm.DB {
	return s.SQL.WithContext(ctx)
}

func (s *DB) FlushAllCaches() error {
	log := s.log.Function("FlushAllCaches")

	if s.Cache.Requirements == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := s.Cache.Requirements
	if err := client.Do(ctx, client.B().Flushdb().Build()).Error(); err != nil {
		return log.Err("failed to flush cache database", err, "cache", "Requirements")
	}

	log.Info("Flushed cache database", "cache", "Requirements")
	return nil
}
