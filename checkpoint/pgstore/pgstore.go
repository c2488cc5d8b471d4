// Package pgstore is a checkpoint.Backend on a PostgreSQL table accessed through bun.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dcshock/runpipe/checkpoint"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// CheckpointRow is one stored checkpoint.
type CheckpointRow struct {
	bun.BaseModel `bun:"table:pipeline_checkpoints,alias:pc"`

	Key       string    `bun:"key,pk"`
	Data      []byte    `bun:"data,type:bytea,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Backend stores checkpoints in the pipeline_checkpoints table.
type Backend struct {
	db    *bun.DB
	owned bool
}

// Open connects to dsn and creates the table if needed.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	db := bun.NewDB(sqldb, pgdialect.New())
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	b := &Backend{db: db, owned: true}
	if err := b.InitializeDatabase(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: initialize database: %w", err)
	}
	return b, nil
}

// NewWithDB wraps an existing bun.DB. Call InitializeDatabase before use if the
// table may not exist. Close does not close db.
func NewWithDB(db *bun.DB) *Backend {
	return &Backend{db: db}
}

// DB returns the underlying bun.DB so other tables can share the pool.
func (b *Backend) DB() *bun.DB { return b.db }

// InitializeDatabase creates the checkpoint table.
func (b *Backend) InitializeDatabase(ctx context.Context) error {
	_, err := b.db.NewCreateTable().
		Model((*CheckpointRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create pipeline_checkpoints table: %w", err)
	}
	return nil
}

// Store returns a root checkpoint.Store over this backend.
func (b *Backend) Store(opts ...checkpoint.Option) *checkpoint.KV {
	return checkpoint.New(b, opts...)
}

// Write implements checkpoint.Backend as an upsert.
func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	row := &CheckpointRow{Key: key, Data: data, UpdatedAt: time.Now().UTC()}
	_, err := b.db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Read implements checkpoint.Backend.
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	row := new(CheckpointRow)
	err := b.db.NewSelect().
		Model(row).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select checkpoint: %w", err)
	}
	return row.Data, nil
}

// Remove implements checkpoint.Backend.
func (b *Backend) Remove(ctx context.Context, key string) error {
	_, err := b.db.NewDelete().
		Model((*CheckpointRow)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the connection pool if Open created it.
func (b *Backend) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

var _ checkpoint.Backend = (*Backend)(nil)
