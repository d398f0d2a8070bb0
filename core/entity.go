package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrVersionMismatch is returned by CompareAndWrite when the expected
	// version no longer matches the stored one.
	ErrVersionMismatch = errors.New("version mismatch")
)

// Permission is the access level a collaborator record grants.
type Permission string

const (
	PermissionNone   Permission = ""
	PermissionViewer Permission = "VIEWER"
	PermissionEditor Permission = "EDITOR"
)

// Valid reports whether p is a grantable collaborator permission.
func (p Permission) Valid() bool {
	return p == PermissionViewer || p == PermissionEditor
}

// Version is an opaque token identifying one state of a document's content.
// Versions are compared by equality only.
type Version string

// Activity action kinds reported to the activity notifier.
const (
	ActionUpdate = "UPDATE"
	ActionJoin   = "JOIN"
	ActionLeave  = "LEAVE"
)

type (
	Identity struct {
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
	}

	// Access is the caller's relationship to a document. A zero Access means
	// no owner or collaborator record exists (or the document does not).
	Access struct {
		IsOwner    bool
		Permission Permission
	}

	Document struct {
		ID      string
		OwnerID string
		Content string
		Version Version
	}

	Activity struct {
		UserID     string    `json:"userId"`
		DocumentID string    `json:"documentId"`
		Action     string    `json:"action"`
		OccurredAt time.Time `json:"occurredAt"`
	}

	DocumentStore interface {
		GetAccess(ctx context.Context, documentID, userID string) (Access, error)
		Read(ctx context.Context, documentID string) (*Document, error)
		// CompareAndWrite replaces the content only if the stored version equals
		// expected, returning the new version. Returns ErrVersionMismatch otherwise.
		CompareAndWrite(ctx context.Context, documentID string, expected Version, content string) (Version, error)
	}

	// DocumentProvisioner seeds documents and collaborator records. Every
	// bundled store implements it alongside DocumentStore.
	DocumentProvisioner interface {
		Create(ctx context.Context, ownerID, content string) (*Document, error)
		SetCollaborator(ctx context.Context, documentID, userID string, permission Permission) error
	}

	IdentityVerifier interface {
		Verify(ctx context.Context, credential string) (Identity, error)
	}

	// ActivityNotifier receives fire-and-forget activity reports.
	ActivityNotifier interface {
		Notify(ctx context.Context, activity Activity)
	}
)

// CanView reports VIEWER-level access: owner or any collaborator record.
func (a Access) CanView() bool {
	return a.IsOwner || a.Permission.Valid()
}

// CanEdit reports owner or EDITOR access.
func (a Access) CanEdit() bool {
	return a.IsOwner || a.Permission == PermissionEditor
}
