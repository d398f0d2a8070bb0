package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"notes-collab/core"
	"notes-collab/keylock"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type record struct {
	ID            string                     `json:"id"`
	OwnerID       string                     `json:"ownerId"`
	Content       string                     `json:"content"`
	Version       core.Version               `json:"version"`
	Collaborators map[string]core.Permission `json:"collaborators,omitempty"`
}

// s3Store keeps one JSON object per document. Compare-and-write is
// serialized per document inside this process, so a bucket must be served
// by a single instance.
type s3Store struct {
	client ObjectAPI
	bucket string
	locks  keylock.Map
}

// NewStore creates a new S3-based store using the default AWS config chain.
func NewStore(ctx context.Context, bucketName string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewStoreWithClient(s3.NewFromConfig(cfg), bucketName), nil
}

func NewStoreWithClient(client ObjectAPI, bucketName string) *s3Store {
	return &s3Store{
		client: client,
		bucket: bucketName,
	}
}

func objectKey(documentID string) (string, error) {
	if documentID == "" || path.Base(documentID) != documentID || documentID == "." || documentID == ".." {
		return "", fmt.Errorf("invalid document id %q", documentID)
	}
	return path.Join("documents", documentID+".json"), nil
}

func (s *s3Store) load(ctx context.Context, documentID string) (*record, error) {
	key, err := objectKey(documentID)
	if err != nil {
		return nil, fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document with id %s: %w", documentID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document data: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", documentID, err)
	}
	return &rec, nil
}

func (s *s3Store) save(ctx context.Context, rec *record) error {
	key, err := objectKey(rec.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload document %s: %w", rec.ID, err)
	}
	return nil
}

func (s *s3Store) GetAccess(ctx context.Context, documentID, userID string) (core.Access, error) {
	rec, err := s.load(ctx, documentID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Access{}, nil
	}
	if err != nil {
		return core.Access{}, err
	}
	return core.Access{
		IsOwner:    rec.OwnerID == userID,
		Permission: rec.Collaborators[userID],
	}, nil
}

func (s *s3Store) Read(ctx context.Context, documentID string) (*core.Document, error) {
	rec, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &core.Document{ID: rec.ID, OwnerID: rec.OwnerID, Content: rec.Content, Version: rec.Version}, nil
}

func (s *s3Store) CompareAndWrite(ctx context.Context, documentID string, expected core.Version, content string) (core.Version, error) {
	unlock := s.locks.Lock(documentID)
	defer unlock()

	rec, err := s.load(ctx, documentID)
	if err != nil {
		return "", err
	}
	if rec.Version != expected {
		return "", core.ErrVersionMismatch
	}

	rec.Content = content
	rec.Version = core.Version(ulid.Make().String())
	if err := s.save(ctx, rec); err != nil {
		logrus.WithField("document_id", documentID).WithError(err).Error("Failed to write document")
		return "", err
	}
	return rec.Version, nil
}

func (s *s3Store) Create(ctx context.Context, ownerID, content string) (*core.Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	rec := &record{
		ID:      ulid.Make().String(),
		OwnerID: ownerID,
		Content: content,
		Version: core.Version(ulid.Make().String()),
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	logrus.WithField("document_id", rec.ID).Info("Document created successfully")
	return &core.Document{ID: rec.ID, OwnerID: rec.OwnerID, Content: rec.Content, Version: rec.Version}, nil
}

func (s *s3Store) SetCollaborator(ctx context.Context, documentID, userID string, permission core.Permission) error {
	unlock := s.locks.Lock(documentID)
	defer unlock()

	rec, err := s.load(ctx, documentID)
	if err != nil {
		return err
	}
	if !permission.Valid() {
		delete(rec.Collaborators, userID)
	} else {
		if rec.Collaborators == nil {
			rec.Collaborators = make(map[string]core.Permission)
		}
		rec.Collaborators[userID] = permission
	}
	return s.save(ctx, rec)
}
