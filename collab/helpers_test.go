package collab

import (
	"context"
	"errors"
	"fmt"
	"notes-collab/core"
	"notes-collab/stores/memory"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	name    string
	payload any
}

type recordingSender struct {
	mu     sync.Mutex
	events []sentEvent
	closed bool
}

func (s *recordingSender) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sender closed")
	}
	s.events = append(s.events, sentEvent{name: event, payload: payload})
	return nil
}

func (s *recordingSender) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSender) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// received returns the payloads of every event named name, in order.
func (s *recordingSender) received(name string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, e := range s.events {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

type staticVerifier map[string]core.Identity

func (v staticVerifier) Verify(ctx context.Context, credential string) (core.Identity, error) {
	identity, ok := v[credential]
	if !ok {
		return core.Identity{}, errors.New("invalid credential")
	}
	return identity, nil
}

type blockingVerifier struct {
	release chan struct{}
	next    core.IdentityVerifier
}

func (v *blockingVerifier) Verify(ctx context.Context, credential string) (core.Identity, error) {
	select {
	case <-v.release:
	case <-ctx.Done():
		return core.Identity{}, ctx.Err()
	}
	return v.next.Verify(ctx, credential)
}

type recordingNotifier struct {
	activities chan core.Activity
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{activities: make(chan core.Activity, 256)}
}

func (n *recordingNotifier) Notify(ctx context.Context, activity core.Activity) {
	n.activities <- activity
}

// waitFor returns the next activity with the given action.
func (n *recordingNotifier) waitFor(t *testing.T, action string) core.Activity {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case a := <-n.activities:
			if a.Action == action {
				return a
			}
		case <-timeout:
			t.Fatalf("no %s activity received", action)
			return core.Activity{}
		}
	}
}

// faultyStore wraps a DocumentStore with injectable errors.
type faultyStore struct {
	core.DocumentStore
	accessErr error
	readErr   error
	writeErr  error
}

func (s *faultyStore) GetAccess(ctx context.Context, documentID, userID string) (core.Access, error) {
	if s.accessErr != nil {
		return core.Access{}, s.accessErr
	}
	return s.DocumentStore.GetAccess(ctx, documentID, userID)
}

func (s *faultyStore) Read(ctx context.Context, documentID string) (*core.Document, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.DocumentStore.Read(ctx, documentID)
}

func (s *faultyStore) CompareAndWrite(ctx context.Context, documentID string, expected core.Version, content string) (core.Version, error) {
	if s.writeErr != nil {
		return "", s.writeErr
	}
	return s.DocumentStore.CompareAndWrite(ctx, documentID, expected, content)
}

var testUsers = staticVerifier{
	"alice-token": {UserID: "alice", DisplayName: "Alice"},
	"bob-token":   {UserID: "bob", DisplayName: "Bob"},
	"carol-token": {UserID: "carol", DisplayName: "Carol"},
	"vera-token":  {UserID: "vera", DisplayName: "Vera"},
}

// seedStore returns a store holding doc1 ("hello" at v1) owned by alice,
// with bob as EDITOR and vera as VIEWER. New versions are v2, v3, ...
func seedStore(t *testing.T) core.DocumentStore {
	t.Helper()
	var n int32 = 1
	store := memory.NewDocumentStoreWithVersions(func() core.Version {
		return core.Version(fmt.Sprintf("v%d", atomic.AddInt32(&n, 1)))
	})
	store.Put(core.Document{ID: "doc1", OwnerID: "alice", Content: "hello", Version: "v1"})
	store.Put(core.Document{ID: "doc2", OwnerID: "alice", Content: "other", Version: "v1"})

	ctx := context.Background()
	require.NoError(t, store.SetCollaborator(ctx, "doc1", "bob", core.PermissionEditor))
	require.NoError(t, store.SetCollaborator(ctx, "doc1", "vera", core.PermissionViewer))
	require.NoError(t, store.SetCollaborator(ctx, "doc2", "bob", core.PermissionEditor))
	return store
}

type harness struct {
	hub      *Hub
	store    core.DocumentStore
	notifier *recordingNotifier
}

func newHarness(t *testing.T, store core.DocumentStore, opts Options) *harness {
	t.Helper()
	notifier := newRecordingNotifier()
	return &harness{
		hub:      NewHub(store, testUsers, notifier, opts),
		store:    store,
		notifier: notifier,
	}
}

func (h *harness) connect(t *testing.T, id, token string) (*Connection, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	conn := h.hub.Connect(id, sender)
	require.NoError(t, h.hub.Handle(context.Background(), conn, EventAuthenticate, []any{token}))
	return conn, sender
}

func (h *harness) join(t *testing.T, conn *Connection, documentID string) {
	t.Helper()
	require.NoError(t, h.hub.Handle(context.Background(), conn, EventJoin, []any{documentID}))
}

func lastError(t *testing.T, s *recordingSender) *Error {
	t.Helper()
	errs := s.received(EventError)
	require.NotEmpty(t, errs, "expected an error event")
	e, ok := errs[len(errs)-1].(*Error)
	require.True(t, ok)
	return e
}
