package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"notes-collab/core"
	"notes-collab/keylock"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// record is the on-disk layout of one document.
type record struct {
	ID            string                     `json:"id"`
	OwnerID       string                     `json:"ownerId"`
	Content       string                     `json:"content"`
	Version       core.Version               `json:"version"`
	Collaborators map[string]core.Permission `json:"collaborators,omitempty"`
}

type fsStore struct {
	basePath string

	// locks serializes read-modify-write cycles on one document file.
	locks keylock.Map
}

// NewDocumentStore creates a filesystem store rooted at basePath. Each
// document is one JSON file; writes go through a temp file and rename.
func NewDocumentStore(basePath string) (*fsStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &fsStore{basePath: basePath}, nil
}

func (s *fsStore) path(documentID string) (string, error) {
	if documentID == "" || filepath.Base(documentID) != documentID || documentID == "." || documentID == ".." {
		return "", fmt.Errorf("invalid document id %q", documentID)
	}
	return filepath.Join(s.basePath, documentID+".json"), nil
}

func (s *fsStore) load(documentID string) (*record, error) {
	filePath, err := s.path(documentID)
	if err != nil {
		return nil, fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
		}
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", documentID, err)
	}
	return &rec, nil
}

func (s *fsStore) save(rec *record) error {
	filePath, err := s.path(rec.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, rec.ID+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}

func (s *fsStore) GetAccess(ctx context.Context, documentID, userID string) (core.Access, error) {
	rec, err := s.load(documentID)
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

func (s *fsStore) Read(ctx context.Context, documentID string) (*core.Document, error) {
	log := logrus.WithField("document_id", documentID)

	rec, err := s.load(documentID)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			log.WithError(err).Error("Failed to retrieve document")
		}
		return nil, err
	}
	return &core.Document{ID: rec.ID, OwnerID: rec.OwnerID, Content: rec.Content, Version: rec.Version}, nil
}

func (s *fsStore) CompareAndWrite(ctx context.Context, documentID string, expected core.Version, content string) (core.Version, error) {
	unlock := s.locks.Lock(documentID)
	defer unlock()

	rec, err := s.load(documentID)
	if err != nil {
		return "", err
	}
	if rec.Version != expected {
		return "", core.ErrVersionMismatch
	}

	rec.Content = content
	rec.Version = core.Version(ulid.Make().String())
	if err := s.save(rec); err != nil {
		logrus.WithField("document_id", documentID).WithError(err).Error("Failed to write document")
		return "", err
	}
	return rec.Version, nil
}

func (s *fsStore) Create(ctx context.Context, ownerID, content string) (*core.Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	rec := &record{
		ID:      ulid.Make().String(),
		OwnerID: ownerID,
		Content: content,
		Version: core.Version(ulid.Make().String()),
	}
	log := logrus.WithField("document_id", rec.ID)

	if err := s.save(rec); err != nil {
		log.WithError(err).Error("Failed to create document")
		return nil, err
	}

	log.Info("Document created successfully")
	return &core.Document{ID: rec.ID, OwnerID: rec.OwnerID, Content: rec.Content, Version: rec.Version}, nil
}

func (s *fsStore) SetCollaborator(ctx context.Context, documentID, userID string, permission core.Permission) error {
	unlock := s.locks.Lock(documentID)
	defer unlock()

	rec, err := s.load(documentID)
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
	return s.save(rec)
}
