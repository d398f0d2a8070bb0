package redis

import (
	"context"
	"errors"
	"fmt"
	"notes-collab/core"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "notes:doc:"

type redisStore struct {
	rdb *redis.Client
}

// NewDocumentStore connects to the redis server at url (redis://host:port/db).
// A bare host:port is accepted as well.
func NewDocumentStore(ctx context.Context, url string) (*redisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		logrus.WithError(err).Warn("Failed to parse Redis URL, using it as address")
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &redisStore{rdb: rdb}, nil
}

func documentKey(documentID string) string {
	return keyPrefix + documentID
}

func collaboratorsKey(documentID string) string {
	return keyPrefix + documentID + ":collaborators"
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}

func (s *redisStore) GetAccess(ctx context.Context, documentID, userID string) (core.Access, error) {
	var owner *redis.StringCmd
	var permission *redis.StringCmd
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		owner = pipe.HGet(ctx, documentKey(documentID), "owner")
		permission = pipe.HGet(ctx, collaboratorsKey(documentID), userID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return core.Access{}, err
	}

	ownerID, err := owner.Result()
	if errors.Is(err, redis.Nil) {
		return core.Access{}, nil
	}
	if err != nil {
		return core.Access{}, err
	}

	perm, err := permission.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return core.Access{}, err
	}

	return core.Access{
		IsOwner:    ownerID == userID,
		Permission: core.Permission(perm),
	}, nil
}

func (s *redisStore) Read(ctx context.Context, documentID string) (*core.Document, error) {
	fields, err := s.rdb.HGetAll(ctx, documentKey(documentID)).Result()
	if err != nil {
		logrus.WithField("document_id", documentID).WithError(err).Error("Failed to retrieve document")
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
	}
	return &core.Document{
		ID:      documentID,
		OwnerID: fields["owner"],
		Content: fields["content"],
		Version: core.Version(fields["version"]),
	}, nil
}

// CompareAndWrite uses WATCH/MULTI: the transaction aborts if any other
// client touches the document key between the version read and EXEC.
func (s *redisStore) CompareAndWrite(ctx context.Context, documentID string, expected core.Version, content string) (core.Version, error) {
	key := documentKey(documentID)
	next := core.Version(ulid.Make().String())

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if core.Version(current) != expected {
			return core.ErrVersionMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "content", content, "version", string(next))
			return nil
		})
		return err
	}

	err := s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return "", core.ErrVersionMismatch
	}
	if err != nil {
		return "", err
	}
	return next, nil
}

func (s *redisStore) Create(ctx context.Context, ownerID, content string) (*core.Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	doc := core.Document{
		ID:      ulid.Make().String(),
		OwnerID: ownerID,
		Content: content,
		Version: core.Version(ulid.Make().String()),
	}

	err := s.rdb.HSet(ctx, documentKey(doc.ID),
		"owner", doc.OwnerID,
		"content", doc.Content,
		"version", string(doc.Version),
	).Err()
	if err != nil {
		logrus.WithField("document_id", doc.ID).WithError(err).Error("Failed to create document")
		return nil, err
	}

	logrus.WithField("document_id", doc.ID).Info("Document created successfully")
	return &doc, nil
}

func (s *redisStore) SetCollaborator(ctx context.Context, documentID, userID string, permission core.Permission) error {
	if !permission.Valid() {
		return s.rdb.HDel(ctx, collaboratorsKey(documentID), userID).Err()
	}

	exists, err := s.rdb.Exists(ctx, documentKey(documentID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
	}
	return s.rdb.HSet(ctx, collaboratorsKey(documentID), userID, string(permission)).Err()
}
