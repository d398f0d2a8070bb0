package stores

import (
	"context"
	"fmt"
	"notes-collab/config"
	"notes-collab/core"
	"notes-collab/stores/aws"
	"notes-collab/stores/filesystem"
	"notes-collab/stores/memory"
	"notes-collab/stores/redis"
	"notes-collab/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// Store is the union of what every bundled backend provides.
type Store interface {
	core.DocumentStore
	core.DocumentProvisioner
}

func GetStore(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var store Store

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		s, err := filesystem.NewDocumentStore(cfg.LocalStoragePath)
		if err != nil {
			return nil, err
		}
		store = s
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		s, err := sqlite.NewDocumentStore(cfg.DataSourceName)
		if err != nil {
			return nil, err
		}
		store = s
	case "redis":
		s, err := redis.NewDocumentStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store = s
	case "s3":
		if cfg.S3BucketName == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage type")
		}
		storageField["bucketName"] = cfg.S3BucketName
		s, err := aws.NewStore(ctx, cfg.S3BucketName)
		if err != nil {
			return nil, err
		}
		store = s
	case "", "memory":
		store = memory.NewDocumentStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
