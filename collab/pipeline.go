package collab

import (
	"context"
	"errors"
	"notes-collab/core"
	"notes-collab/keylock"
	"time"

	"github.com/sirupsen/logrus"
)

// Pipeline applies edit submissions with optimistic concurrency. Submissions
// for one document are serialized across read, compare, write and broadcast,
// so members observe applied edits in version order. The store's
// CompareAndWrite still decides the race when other processes write the
// same document.
type Pipeline struct {
	store        core.DocumentStore
	notifier     core.ActivityNotifier
	dispatcher   *Dispatcher
	storeTimeout time.Duration

	locks keylock.Map
}

func NewPipeline(store core.DocumentStore, notifier core.ActivityNotifier, dispatcher *Dispatcher, storeTimeout time.Duration) *Pipeline {
	return &Pipeline{
		store:        store,
		notifier:     notifier,
		dispatcher:   dispatcher,
		storeTimeout: storeTimeout,
	}
}

// SubmitEdit writes content over baseVersion on behalf of conn. On success
// the other room members receive editApplied and conn receives
// editConfirmed. A stale baseVersion sends editConflict to conn and returns
// a conflict error; nothing is written or broadcast.
func (p *Pipeline) SubmitEdit(ctx context.Context, conn *Connection, documentID, content string, baseVersion core.Version) error {
	identity, _ := conn.Identity()
	log := logrus.WithFields(logrus.Fields{
		"connection_id": conn.ID(),
		"user_id":       identity.UserID,
		"document_id":   documentID,
	})

	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	access, err := p.store.GetAccess(storeCtx, documentID, identity.UserID)
	cancel()
	if err != nil {
		log.WithError(err).Error("Failed to check document access")
		return newError(KindStoreFailure, "failed to update document")
	}
	if !access.CanEdit() {
		log.Info("Edit denied")
		return newError(KindPermissionDenied, "edit permission required for document %s", documentID)
	}

	unlock := p.locks.Lock(documentID)
	defer unlock()

	current, err := p.read(ctx, documentID)
	if errors.Is(err, core.ErrNotFound) {
		return newError(KindPermissionDenied, "edit permission required for document %s", documentID)
	}
	if err != nil {
		log.WithError(err).Error("Failed to read document")
		return newError(KindStoreFailure, "failed to update document")
	}
	if current.Version != baseVersion {
		return p.conflict(conn, current, log)
	}

	storeCtx, cancel = context.WithTimeout(ctx, p.storeTimeout)
	version, err := p.store.CompareAndWrite(storeCtx, documentID, baseVersion, content)
	cancel()
	if errors.Is(err, core.ErrVersionMismatch) {
		current, err = p.read(ctx, documentID)
		if err == nil {
			return p.conflict(conn, current, log)
		}
	}
	if err != nil {
		log.WithError(err).Error("Failed to write document")
		return newError(KindStoreFailure, "failed to update document")
	}

	notify(p.notifier, core.Activity{
		UserID:     identity.UserID,
		DocumentID: documentID,
		Action:     core.ActionUpdate,
		OccurredAt: time.Now(),
	})

	recipients := p.dispatcher.Broadcast(documentID, EventEditApplied, EditApplied{
		Content: content,
		Version: version,
		ByUser:  identity,
	}, conn)
	conn.emit(EventEditConfirmed, EditConfirmed{Version: version})

	log.WithFields(logrus.Fields{
		"version":    version,
		"recipients": recipients,
	}).Debug("Edit applied")
	return nil
}

func (p *Pipeline) read(ctx context.Context, documentID string) (*core.Document, error) {
	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	return p.store.Read(storeCtx, documentID)
}

func (p *Pipeline) conflict(conn *Connection, current *core.Document, log *logrus.Entry) error {
	conn.emit(EventEditConflict, EditConflict{
		CurrentContent: current.Content,
		CurrentVersion: current.Version,
	})
	log.WithField("current_version", current.Version).Info("Edit conflict")
	return newError(KindConflict, "document changed since base version")
}

// notify hands activity to the notifier without waiting for it.
func notify(n core.ActivityNotifier, activity core.Activity) {
	if n == nil {
		return
	}
	go n.Notify(context.Background(), activity)
}
