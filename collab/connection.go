package collab

import (
	"notes-collab/core"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sender is the transport side of a connection. Emit must not block on the
// peer; it is called while room state is locked.
type Sender interface {
	Emit(event string, payload any) error
	Close()
}

type connState int

const (
	statePending connState = iota
	stateAuthenticating
	stateAuthenticated
	stateClosed
)

// Connection is one authenticated (or authenticating) channel.
type Connection struct {
	id     string
	sender Sender

	// ops serializes room membership changes made on behalf of this
	// connection.
	ops sync.Mutex

	mu             sync.Mutex
	state          connState
	identity       core.Identity
	authDone       chan struct{}
	authTimer      *time.Timer
	room           string
	protocolErrors int
}

func newConnection(id string, sender Sender) *Connection {
	return &Connection{
		id:       id,
		sender:   sender,
		authDone: make(chan struct{}),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// Identity returns the verified identity and whether authentication has
// completed.
func (c *Connection) Identity() (core.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.state == stateAuthenticated
}

// Room returns the document id of the room the connection is in, or "".
func (c *Connection) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Connection) setRoom(documentID string) {
	c.mu.Lock()
	c.room = documentID
	c.mu.Unlock()
}

func (c *Connection) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

func (c *Connection) presence() PresenceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PresenceEntry{
		UserID:       c.identity.UserID,
		DisplayName:  c.identity.DisplayName,
		ConnectionID: c.id,
	}
}

func (c *Connection) emit(event string, payload any) {
	if err := c.sender.Emit(event, payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"connection_id": c.id,
			"event":         event,
		}).WithError(err).Debug("Failed to deliver event")
	}
}

func (c *Connection) fail(err *Error) {
	c.emit(EventError, err)
}
