package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"notes-collab/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

func NewDocumentStore(dataSourceName string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps writers from racing into SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	documentsTable := `CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		content TEXT NOT NULL,
		version TEXT NOT NULL
	);`
	if _, err = db.Exec(documentsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	collaboratorsTable := `CREATE TABLE IF NOT EXISTS collaborators (
		document_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		permission TEXT NOT NULL,
		PRIMARY KEY (document_id, user_id)
	);`
	if _, err = db.Exec(collaboratorsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create collaborators table: %w", err)
	}

	return &sqliteStore{db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) GetAccess(ctx context.Context, documentID, userID string) (core.Access, error) {
	var ownerID string
	var permission sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT d.owner_id, c.permission FROM documents d
		LEFT JOIN collaborators c ON c.document_id = d.id AND c.user_id = ?
		WHERE d.id = ?`,
		userID, documentID).Scan(&ownerID, &permission)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Access{}, nil
		}
		logrus.WithFields(logrus.Fields{
			"document_id": documentID,
			"user_id":     userID,
		}).WithError(err).Error("Failed to read access")
		return core.Access{}, err
	}

	return core.Access{
		IsOwner:    ownerID == userID,
		Permission: core.Permission(permission.String),
	}, nil
}

func (s *sqliteStore) Read(ctx context.Context, documentID string) (*core.Document, error) {
	log := logrus.WithField("document_id", documentID)
	log.Debug("Retrieving document by ID")

	doc := core.Document{ID: documentID}
	err := s.db.QueryRowContext(ctx,
		"SELECT owner_id, content, version FROM documents WHERE id = ?",
		documentID).Scan(&doc.OwnerID, &doc.Content, &doc.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve document")
		return nil, err
	}
	return &doc, nil
}

// CompareAndWrite relies on the WHERE clause for atomicity: the row is only
// updated while it still carries the expected version.
func (s *sqliteStore) CompareAndWrite(ctx context.Context, documentID string, expected core.Version, content string) (core.Version, error) {
	log := logrus.WithField("document_id", documentID)
	next := core.Version(ulid.Make().String())

	result, err := s.db.ExecContext(ctx,
		"UPDATE documents SET content = ?, version = ? WHERE id = ? AND version = ?",
		content, next, documentID, expected)
	if err != nil {
		log.WithError(err).Error("Failed to update document")
		return "", err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if rows == 1 {
		return next, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return "", core.ErrVersionMismatch
}

func (s *sqliteStore) Create(ctx context.Context, ownerID, content string) (*core.Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	doc := core.Document{
		ID:      ulid.Make().String(),
		OwnerID: ownerID,
		Content: content,
		Version: core.Version(ulid.Make().String()),
	}
	log := logrus.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"data_length": len(content),
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (id, owner_id, content, version) VALUES (?, ?, ?, ?)",
		doc.ID, doc.OwnerID, doc.Content, doc.Version)
	if err != nil {
		log.WithError(err).Error("Failed to create document")
		return nil, err
	}
	log.Info("Document created successfully")
	return &doc, nil
}

func (s *sqliteStore) SetCollaborator(ctx context.Context, documentID, userID string, permission core.Permission) error {
	log := logrus.WithFields(logrus.Fields{
		"document_id": documentID,
		"user_id":     userID,
		"permission":  permission,
	})

	if !permission.Valid() {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM collaborators WHERE document_id = ? AND user_id = ?",
			documentID, userID)
		return err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document with id %s: %w", documentID, core.ErrNotFound)
	}
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO collaborators (document_id, user_id, permission) VALUES (?, ?, ?) ON CONFLICT(document_id, user_id) DO UPDATE SET permission = ?",
		documentID, userID, permission, permission)
	if err != nil {
		log.WithError(err).Error("Failed to set collaborator")
		return err
	}
	log.Info("Collaborator updated successfully")
	return nil
}
