package collab

import "github.com/sirupsen/logrus"

// Dispatcher delivers events to the members of a room. Delivery is
// at-most-once: a member that is gone by the time of the call is skipped and
// nothing is queued.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Broadcast sends event to every member of documentID's room except exclude
// (which may be nil) and returns the number of recipients.
func (d *Dispatcher) Broadcast(documentID, event string, payload any, exclude *Connection) int {
	rm := d.registry.lookupRoom(documentID)
	if rm == nil {
		return 0
	}
	defer rm.mu.Unlock()
	return rm.broadcastLocked(event, payload, exclude)
}

// CursorRelay forwards an ephemeral cursor position to the rest of the room.
// Positions from connections that are not in the room are dropped.
func (d *Dispatcher) CursorRelay(documentID string, conn *Connection, position any) int {
	if conn.Room() != documentID {
		logrus.WithFields(logrus.Fields{
			"connection_id": conn.ID(),
			"document_id":   documentID,
		}).Debug("Dropping cursor move for a room the connection is not in")
		return 0
	}

	identity, _ := conn.Identity()
	return d.Broadcast(documentID, EventCursorUpdate, CursorUpdate{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		Position:    position,
	}, conn)
}

func (rm *room) broadcastLocked(event string, payload any, exclude *Connection) int {
	sent := 0
	for _, member := range rm.members {
		if member == exclude {
			continue
		}
		member.emit(event, payload)
		sent++
	}
	return sent
}
