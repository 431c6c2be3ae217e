package config

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/pkg/coordinator"
	"github.com/marmos91/lockfs/pkg/dispatch"
	"github.com/marmos91/lockfs/pkg/server"
	"github.com/marmos91/lockfs/pkg/storage"
	"github.com/marmos91/lockfs/pkg/storage/badger"
	"github.com/marmos91/lockfs/pkg/storage/fs"
	"github.com/marmos91/lockfs/pkg/storage/memory"
	"github.com/marmos91/lockfs/pkg/storage/s3"
)

// CreateStore opens the storage backend selected by cfg.
func CreateStore(ctx context.Context, cfg StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case StorageFilesystem:
		return createFSStore(cfg.Filesystem)
	case StorageMemory:
		return memory.New(), nil
	case StorageBadger:
		return createBadgerStore(cfg.Badger)
	case StorageS3:
		return createS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}

func createFSStore(cfg FilesystemStorageConfig) (storage.Store, error) {
	store, err := fs.NewWithPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem store: %w", err)
	}
	logger.Info("Filesystem storage ready", logger.KeyPath, cfg.Path)
	return store, nil
}

func createBadgerStore(cfg BadgerStorageConfig) (storage.Store, error) {
	store, err := badger.New(badger.Config{
		Path:             cfg.Path,
		InMemory:         cfg.InMemory,
		ValueLogFileSize: cfg.ValueLogFileSize.Int64(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}
	logger.Info("Badger storage ready", logger.KeyPath, cfg.Path, "in_memory", cfg.InMemory)
	return store, nil
}

func createS3Store(ctx context.Context, cfg S3StorageConfig) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store, err := s3.NewFromConfig(ctx, s3.Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		KeyPrefix:       cfg.Prefix,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		ForcePathStyle:  cfg.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 store: %w", err)
	}
	logger.Info("S3 storage ready", logger.KeyBucket, cfg.Bucket, "endpoint", cfg.Endpoint)
	return store, nil
}

// FaultPolicy builds the coordinator policy for cfg. A zero seed draws one
// from the clock.
func (f FaultConfig) FaultPolicy() coordinator.Policy {
	if !f.Enabled() {
		return coordinator.AlwaysReply{}
	}
	seed := f.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return coordinator.NewRandomPolicy(f.DropRequest, f.DropReply, seed)
}

// EngineOptions converts the server section into engine options.
func (c ServerConfig) EngineOptions() ([]server.Option, error) {
	seek, err := dispatch.ParseSeekPolicy(c.SeekPolicy)
	if err != nil {
		return nil, err
	}
	return []server.Option{
		server.WithSeekPolicy(seek),
		server.WithFaultPolicy(c.Fault.FaultPolicy()),
	}, nil
}
