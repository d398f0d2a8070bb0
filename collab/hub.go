package collab

import (
	"context"
	"errors"
	"notes-collab/core"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Options struct {
	// AuthTimeout bounds how long a new channel may stay unauthenticated.
	AuthTimeout time.Duration
	// StoreTimeout bounds every Document Store call.
	StoreTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 10 * time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	return o
}

// Hub is the connection gateway. It owns every live Connection, gates all
// events behind authentication and routes them to the registry, pipeline
// and dispatcher.
type Hub struct {
	verifier   core.IdentityVerifier
	registry   *Registry
	pipeline   *Pipeline
	dispatcher *Dispatcher
	opts       Options

	mu          sync.Mutex
	connections map[string]*Connection
}

func NewHub(store core.DocumentStore, verifier core.IdentityVerifier, notifier core.ActivityNotifier, opts Options) *Hub {
	opts = opts.withDefaults()
	registry := NewRegistry(store, notifier, opts.StoreTimeout)
	dispatcher := NewDispatcher(registry)
	return &Hub{
		verifier:    verifier,
		registry:    registry,
		pipeline:    NewPipeline(store, notifier, dispatcher, opts.StoreTimeout),
		dispatcher:  dispatcher,
		opts:        opts,
		connections: make(map[string]*Connection),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect registers a new unauthenticated channel. If it has not
// authenticated within AuthTimeout it is sent an authentication error and
// closed.
func (h *Hub) Connect(id string, sender Sender) *Connection {
	conn := newConnection(id, sender)

	h.mu.Lock()
	h.connections[id] = conn
	h.mu.Unlock()

	conn.mu.Lock()
	conn.authTimer = time.AfterFunc(h.opts.AuthTimeout, func() {
		h.expire(conn)
	})
	conn.mu.Unlock()

	logrus.WithField("connection_id", id).Debug("Connection opened")
	return conn
}

// Connection looks up a live connection by id.
func (h *Hub) Connection(id string) (*Connection, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.connections[id]
	return conn, ok
}

func (h *Hub) expire(conn *Connection) {
	conn.mu.Lock()
	switch conn.state {
	case stateAuthenticated, stateClosed:
		conn.mu.Unlock()
		return
	case stateAuthenticating:
		close(conn.authDone)
	}
	conn.state = stateClosed
	conn.mu.Unlock()

	logrus.WithField("connection_id", conn.ID()).Info("Authentication timed out")
	h.reject(conn, newError(KindAuthentication, "authentication timed out"))
}

// ConnectWithCredential registers a channel that presented credential in
// its handshake. Verification runs in the background; events that arrive
// meanwhile wait for its outcome.
func (h *Hub) ConnectWithCredential(id string, sender Sender, credential string) *Connection {
	conn := h.Connect(id, sender)
	if credential == "" {
		return conn
	}
	if err := h.beginAuth(conn); err == nil {
		go h.completeAuth(context.Background(), conn, credential)
	}
	return conn
}

// Authenticate verifies credential and binds the resulting identity to conn
// for the rest of its life. Any failure closes the channel.
func (h *Hub) Authenticate(ctx context.Context, conn *Connection, credential string) error {
	if err := h.beginAuth(conn); err != nil {
		return err
	}
	return h.completeAuth(ctx, conn, credential)
}

func (h *Hub) beginAuth(conn *Connection) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	switch conn.state {
	case stateClosed:
		return newError(KindAuthentication, "connection closed")
	case stateAuthenticating, stateAuthenticated:
		return newError(KindProtocol, "connection is already authenticated")
	}
	conn.state = stateAuthenticating
	return nil
}

func (h *Hub) completeAuth(ctx context.Context, conn *Connection, credential string) error {
	log := logrus.WithField("connection_id", conn.ID())

	verifyCtx, cancel := context.WithTimeout(ctx, h.opts.AuthTimeout)
	identity, err := h.verifier.Verify(verifyCtx, credential)
	cancel()
	if err == nil && identity.UserID == "" {
		err = newError(KindAuthentication, "unknown user")
	}
	if err != nil {
		log.WithError(err).Info("Authentication failed")
		authErr := newError(KindAuthentication, "authentication failed")
		if !conn.closed() {
			h.reject(conn, authErr)
		}
		return authErr
	}

	conn.mu.Lock()
	if conn.state != stateAuthenticating {
		// Timed out or disconnected while verifying.
		conn.mu.Unlock()
		return newError(KindAuthentication, "authentication timed out")
	}
	conn.state = stateAuthenticated
	conn.identity = identity
	conn.authTimer.Stop()
	close(conn.authDone)
	conn.mu.Unlock()

	conn.emit(EventAuthenticated, Authenticated{
		UserID:       identity.UserID,
		DisplayName:  identity.DisplayName,
		ConnectionID: conn.ID(),
	})
	log.WithField("user_id", identity.UserID).Info("Connection authenticated")
	return nil
}

// awaitAuth reports whether conn is authenticated, waiting for an
// authentication that is already in flight.
func (h *Hub) awaitAuth(ctx context.Context, conn *Connection) bool {
	conn.mu.Lock()
	state, done := conn.state, conn.authDone
	conn.mu.Unlock()

	switch state {
	case stateAuthenticated:
		return true
	case stateAuthenticating:
		select {
		case <-done:
		case <-ctx.Done():
			return false
		}
		_, ok := conn.Identity()
		return ok
	default:
		return false
	}
}

// Handle processes one inbound event. Errors are reported to conn as an
// error event (or editConflict for conflicts) and also returned so the
// transport can answer acks.
func (h *Hub) Handle(ctx context.Context, conn *Connection, event string, args []any) error {
	if event == EventAuthenticate {
		if _, authenticated := conn.Identity(); authenticated {
			err := newError(KindProtocol, "connection is already authenticated")
			h.report(conn, err)
			return err
		}
		var req AuthRequest
		if err := decodeArgs(args, []string{"token"}, &req); err != nil {
			h.reject(conn, newError(KindAuthentication, "missing credential"))
			return err
		}
		err := h.Authenticate(ctx, conn, req.Token)
		if KindOf(err) == KindProtocol {
			h.report(conn, err)
		}
		return err
	}

	if !h.awaitAuth(ctx, conn) {
		if conn.closed() {
			return newError(KindAuthentication, "connection closed")
		}
		err := newError(KindProtocol, "event %q received before authentication", event)
		h.reject(conn, err)
		return err
	}

	err := h.dispatch(ctx, conn, event, args)
	if err != nil {
		h.report(conn, err)
	}
	return err
}

func (h *Hub) dispatch(ctx context.Context, conn *Connection, event string, args []any) error {
	switch event {
	case EventJoin:
		var req DocumentRequest
		if err := decodeArgs(args, []string{"documentId"}, &req); err != nil {
			return err
		}
		return h.registry.Join(ctx, conn, req.DocumentID)

	case EventLeave:
		var req DocumentRequest
		if err := decodeArgs(args, []string{"documentId"}, &req); err != nil {
			return err
		}
		h.registry.Leave(conn, req.DocumentID)
		return nil

	case EventSubmitEdit:
		var req EditRequest
		if err := decodeArgs(args, []string{"documentId", "content", "baseVersion"}, &req); err != nil {
			return err
		}
		return h.pipeline.SubmitEdit(ctx, conn, req.DocumentID, *req.Content, core.Version(req.BaseVersion))

	case EventCursorMove:
		var req CursorRequest
		if err := decodeArgs(args, []string{"documentId", "position"}, &req); err != nil {
			return err
		}
		h.dispatcher.CursorRelay(req.DocumentID, conn, req.Position)
		return nil

	default:
		return newError(KindProtocol, "unknown event %q", event)
	}
}

// report sends err to conn. Conflicts were already answered with
// editConflict. Too many protocol errors close the channel.
func (h *Hub) report(conn *Connection, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = newError(KindStoreFailure, "%v", err)
	}
	if e.Kind == KindConflict {
		return
	}

	conn.fail(e)

	if e.Kind != KindProtocol {
		return
	}
	conn.mu.Lock()
	conn.protocolErrors++
	broken := conn.protocolErrors > MaxProtocolErrors
	conn.mu.Unlock()

	if broken {
		logrus.WithField("connection_id", conn.ID()).Warn("Closing connection after repeated protocol errors")
		h.closeConnection(conn)
	}
}

func (h *Hub) reject(conn *Connection, err *Error) {
	conn.fail(err)
	h.closeConnection(conn)
}

func (h *Hub) closeConnection(conn *Connection) {
	conn.sender.Close()
	h.Disconnect(conn)
}

// Disconnect discards conn, leaving its room. It runs for every closed
// channel, graceful or not, and is idempotent.
func (h *Hub) Disconnect(conn *Connection) {
	conn.mu.Lock()
	wasOpen := conn.state != stateClosed
	if conn.state == stateAuthenticating {
		close(conn.authDone)
	}
	conn.state = stateClosed
	if conn.authTimer != nil {
		conn.authTimer.Stop()
	}
	conn.mu.Unlock()

	h.registry.OnDisconnect(conn)

	h.mu.Lock()
	if h.connections[conn.ID()] == conn {
		delete(h.connections, conn.ID())
	}
	h.mu.Unlock()

	if wasOpen {
		logrus.WithField("connection_id", conn.ID()).Debug("Connection closed")
	}
}
