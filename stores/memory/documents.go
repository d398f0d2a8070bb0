package memory

import (
	"context"
	"fmt"
	"notes-collab/core"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type documentStore struct {
	mu            sync.RWMutex
	documents     map[string]core.Document
	collaborators map[string]map[string]core.Permission
	nextVersion   func() core.Version
}

func NewDocumentStore() *documentStore {
	return NewDocumentStoreWithVersions(func() core.Version {
		return core.Version(ulid.Make().String())
	})
}

// NewDocumentStoreWithVersions uses next to mint version stamps, e.g. a
// logical counter in tests.
func NewDocumentStoreWithVersions(next func() core.Version) *documentStore {
	return &documentStore{
		documents:     make(map[string]core.Document),
		collaborators: make(map[string]map[string]core.Permission),
		nextVersion:   next,
	}
}

func (s *documentStore) GetAccess(ctx context.Context, documentID, userID string) (core.Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return core.Access{}, nil
	}
	return core.Access{
		IsOwner:    doc.OwnerID == userID,
		Permission: s.collaborators[documentID][userID],
	}, nil
}

func (s *documentStore) Read(ctx context.Context, documentID string) (*core.Document, error) {
	log := logrus.WithField("document_id", documentID)

	s.mu.RLock()
	doc, ok := s.documents[documentID]
	s.mu.RUnlock()

	if !ok {
		log.Debug("Document with specified ID not found")
		return nil, fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
	}
	return &doc, nil
}

func (s *documentStore) CompareAndWrite(ctx context.Context, documentID string, expected core.Version, content string) (core.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return "", fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
	}
	if doc.Version != expected {
		return "", core.ErrVersionMismatch
	}

	doc.Content = content
	doc.Version = s.nextVersion()
	s.documents[documentID] = doc

	logrus.WithFields(logrus.Fields{
		"document_id": documentID,
		"version":     doc.Version,
		"data_length": len(content),
	}).Debug("Document written")
	return doc.Version, nil
}

func (s *documentStore) Create(ctx context.Context, ownerID, content string) (*core.Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	doc := core.Document{
		ID:      ulid.Make().String(),
		OwnerID: ownerID,
		Content: content,
	}

	s.mu.Lock()
	doc.Version = s.nextVersion()
	s.documents[doc.ID] = doc
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"data_length": len(content),
	}).Info("Document created successfully")
	return &doc, nil
}

func (s *documentStore) SetCollaborator(ctx context.Context, documentID, userID string, permission core.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[documentID]; !ok {
		return fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
	}
	if !permission.Valid() {
		delete(s.collaborators[documentID], userID)
		return nil
	}
	if s.collaborators[documentID] == nil {
		s.collaborators[documentID] = make(map[string]core.Permission)
	}
	s.collaborators[documentID][userID] = permission
	return nil
}

// Put stores doc as-is, replacing any previous state. Used to seed fixed
// ids and versions.
func (s *documentStore) Put(doc core.Document) {
	s.mu.Lock()
	s.documents[doc.ID] = doc
	s.mu.Unlock()
}
