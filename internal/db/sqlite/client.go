package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/iamwavecut/strikeguard/resources"
)

const purgeEvery = 512

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
	now   func() time.Time

	dedupWrites atomic.Uint64
}

func NewSQLiteClient(ctx context.Context, dir string, dbFile string) (*sqliteClient, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", filepath.Join(dir, dbFile))
	dbx, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	dbx.SetMaxOpenConns(1)
	if err := dbx.PingContext(ctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	if _, _, err := migrate.PlanMigration(dbx.DB, "sqlite3", migrationsSource, migrate.Up, 0); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("plan migrations: %w", err)
	}
	n, err := migrate.Exec(dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if n > 0 {
		log.WithField("object", "SQLiteClient").Infof("applied %d migrations!", n)
	}

	return &sqliteClient{
		db:  dbx,
		now: time.Now,
	}, nil
}

func (c *sqliteClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}

func (c *sqliteClient) nowMillis() int64 {
	return c.now().UnixMilli()
}
