package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dcshock/runpipe/checkpoint"
	"github.com/dcshock/runpipe/checkpoint/badgerstore"
	"github.com/dcshock/runpipe/checkpoint/gcsstore"
	"github.com/dcshock/runpipe/checkpoint/pgstore"
	"github.com/dcshock/runpipe/observer"
)

const (
	storeMemory   = "memory"
	storeBadger   = "badger"
	storePostgres = "postgres"
	storeGCS      = "gcs"
)

// storeSettings selects and configures the checkpoint backend.
type storeSettings struct {
	Kind           string
	BadgerPath     string
	PGDSN          string
	GCSBucket      string
	GCSPrefix      string
	GCSCredentials string
}

func currentStoreSettings() storeSettings {
	return storeSettings{
		Kind:           storeKind,
		BadgerPath:     badgerPath,
		PGDSN:          pgDSN,
		GCSBucket:      gcsBucket,
		GCSPrefix:      gcsPrefix,
		GCSCredentials: gcsCredentials,
	}
}

// backends holds the opened checkpoint store and, for postgres, the run
// history table on the same connection.
type backends struct {
	Store   checkpoint.Store
	History observer.RunStore
	closers []func() error
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func openBackends(ctx context.Context, s storeSettings) (*backends, error) {
	b := &backends{}
	switch s.Kind {
	case storeMemory, "":
		b.Store = checkpoint.NewMemory()
	case storeBadger:
		cfg := badgerstore.DefaultConfig(s.BadgerPath)
		cfg.Logger = logger.With("component", "badger")
		db, err := badgerstore.Open(cfg)
		if err != nil {
			return nil, err
		}
		b.Store = db.Store()
		b.closers = append(b.closers, db.Close)
	case storePostgres:
		if s.PGDSN == "" {
			return nil, errors.New("--pg-dsn is required for the postgres store")
		}
		db, err := pgstore.Open(ctx, s.PGDSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		if err := db.InitializeDatabase(ctx); err != nil {
			b.Close()
			return nil, err
		}
		history := observer.NewBunRunStore(db.DB())
		if err := history.InitializeDatabase(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Store = db.Store()
		b.History = history
	case storeGCS:
		if s.GCSBucket == "" {
			return nil, errors.New("--gcs-bucket is required for the gcs store")
		}
		gcs, err := gcsstore.NewClient(ctx, s.GCSBucket, s.GCSPrefix, s.GCSCredentials)
		if err != nil {
			return nil, err
		}
		b.Store = gcs.Store()
		b.closers = append(b.closers, gcs.Close)
	default:
		return nil, fmt.Errorf("unknown store %q (want memory, badger, postgres or gcs)", s.Kind)
	}
	return b, nil
}
