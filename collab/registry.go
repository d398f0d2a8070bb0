package collab

import (
	"context"
	"notes-collab/core"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Registry tracks which connections are in which document room.
//
// Lock order is room.mu before Registry.mu. The registry lock only guards
// the rooms map and is never held while waiting for a room lock, and no lock
// is held across a store call.
type Registry struct {
	store        core.DocumentStore
	notifier     core.ActivityNotifier
	storeTimeout time.Duration

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	id string

	mu      sync.Mutex
	members []*Connection
	// closed is set once the room has been removed from the registry; a
	// goroutine that locked a closed room must look it up again.
	closed bool
}

func NewRegistry(store core.DocumentStore, notifier core.ActivityNotifier, storeTimeout time.Duration) *Registry {
	return &Registry{
		store:        store,
		notifier:     notifier,
		storeTimeout: storeTimeout,
		rooms:        make(map[string]*room),
	}
}

// lockRoom returns the locked room for documentID, creating it if needed.
func (r *Registry) lockRoom(documentID string) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[documentID]
		if !ok {
			rm = &room{id: documentID}
			r.rooms[documentID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.closed {
			return rm
		}
		rm.mu.Unlock()
	}
}

// lookupRoom returns the locked room for documentID, or nil if it has no
// members.
func (r *Registry) lookupRoom(documentID string) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[documentID]
		r.mu.Unlock()
		if !ok {
			return nil
		}

		rm.mu.Lock()
		if !rm.closed {
			return rm
		}
		rm.mu.Unlock()
	}
}

// releaseRoom unlocks rm, dropping it from the registry if it is empty.
func (r *Registry) releaseRoom(rm *room) {
	if len(rm.members) == 0 {
		r.mu.Lock()
		if r.rooms[rm.id] == rm {
			delete(r.rooms, rm.id)
		}
		r.mu.Unlock()
		rm.closed = true
	}
	rm.mu.Unlock()
}

// Join adds conn to documentID's room after checking VIEWER-level access.
// A connection is in at most one room; joining another room leaves the
// current one first.
func (r *Registry) Join(ctx context.Context, conn *Connection, documentID string) error {
	identity, _ := conn.Identity()
	log := logrus.WithFields(logrus.Fields{
		"connection_id": conn.ID(),
		"user_id":       identity.UserID,
		"document_id":   documentID,
	})

	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	access, err := r.store.GetAccess(storeCtx, documentID, identity.UserID)
	cancel()
	if err != nil {
		log.WithError(err).Error("Failed to check document access")
		return newError(KindStoreFailure, "failed to join document")
	}
	if !access.CanView() {
		log.Info("Join denied")
		return newError(KindAccessDenied, "access denied to document %s", documentID)
	}

	conn.ops.Lock()
	defer conn.ops.Unlock()

	if conn.closed() {
		return nil
	}

	current := conn.Room()
	if current == documentID {
		rm := r.lockRoom(documentID)
		conn.emit(EventPresenceSnapshot, rm.presenceLocked())
		r.releaseRoom(rm)
		return nil
	}
	if current != "" {
		r.removeLocked(conn, current)
	}

	rm := r.lockRoom(documentID)
	rm.members = append(rm.members, conn)
	conn.setRoom(documentID)
	rm.broadcastLocked(EventPeerJoined, conn.presence(), conn)
	conn.emit(EventPresenceSnapshot, rm.presenceLocked())
	members := len(rm.members)
	r.releaseRoom(rm)

	log.WithField("members", members).Info("Connection joined room")
	r.notify(identity.UserID, documentID, core.ActionJoin)
	return nil
}

// Leave removes conn from documentID's room. It is a no-op if conn is not a
// member of that room.
func (r *Registry) Leave(conn *Connection, documentID string) {
	conn.ops.Lock()
	defer conn.ops.Unlock()

	if conn.Room() != documentID || documentID == "" {
		return
	}
	r.removeLocked(conn, documentID)
}

// OnDisconnect clears whatever room conn is in. It must run for every closed
// channel; calling it more than once is harmless.
func (r *Registry) OnDisconnect(conn *Connection) {
	conn.ops.Lock()
	defer conn.ops.Unlock()

	if documentID := conn.Room(); documentID != "" {
		r.removeLocked(conn, documentID)
	}
}

// removeLocked requires conn.ops to be held.
func (r *Registry) removeLocked(conn *Connection, documentID string) {
	rm := r.lockRoom(documentID)
	for i, member := range rm.members {
		if member == conn {
			rm.members = append(rm.members[:i], rm.members[i+1:]...)
			break
		}
	}
	conn.setRoom("")
	entry := conn.presence()
	rm.broadcastLocked(EventPeerLeft, entry, nil)
	members := len(rm.members)
	r.releaseRoom(rm)

	logrus.WithFields(logrus.Fields{
		"connection_id": conn.ID(),
		"user_id":       entry.UserID,
		"document_id":   documentID,
		"members":       members,
	}).Info("Connection left room")
	r.notify(entry.UserID, documentID, core.ActionLeave)
}

func (rm *room) presenceLocked() []PresenceEntry {
	entries := make([]PresenceEntry, 0, len(rm.members))
	for _, member := range rm.members {
		entries = append(entries, member.presence())
	}
	return entries
}

// Presence returns the members of documentID's room in join order.
func (r *Registry) Presence(documentID string) []PresenceEntry {
	rm := r.lookupRoom(documentID)
	if rm == nil {
		return []PresenceEntry{}
	}
	defer rm.mu.Unlock()
	return rm.presenceLocked()
}

type RoomInfo struct {
	DocumentID string `json:"documentId"`
	Members    int    `json:"members"`
}

// Rooms lists the rooms that currently have members, sorted by document id.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		rm.mu.Lock()
		if !rm.closed && len(rm.members) > 0 {
			infos = append(infos, RoomInfo{DocumentID: rm.id, Members: len(rm.members)})
		}
		rm.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DocumentID < infos[j].DocumentID })
	return infos
}

func (r *Registry) notify(userID, documentID, action string) {
	notify(r.notifier, core.Activity{
		UserID:     userID,
		DocumentID: documentID,
		Action:     action,
		OccurredAt: time.Now(),
	})
}
